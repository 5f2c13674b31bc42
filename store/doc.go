// Package store implements an embedded, single-file key-value store for
// string keys and JSON-serializable values, with optional per-key TTL,
// buffered commits and on-demand compaction. A store file is exclusive to one
// process on the host; within that process the handle is safe for concurrent
// use.
//
// Handles are created only through Open, which acquires the process lock and
// rebuilds the in-memory index from disk:
//
//	s, err := store.Open("users", store.WithDirectory("/var/data"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	err = s.Create("alice", map[string]int{"visits": 1}, 0)
//	raw, err := s.Read("alice")
//	err = s.Delete("alice")
package store
