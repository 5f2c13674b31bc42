// Package index holds the in-memory key directory: key to the location and
// state of its most recent committed record. It has no persistence of its own
// and is rebuilt from the store file on open.
//
// The index is not internally synchronized. The store facade guards it and
// the transaction buffer under one mutex so reads always observe a consistent
// merged view.
package index

import (
	"time"

	"github.com/dolthub/swiss"
)

// Entry locates a committed live record in the store file.
type Entry struct {
	Offset int64
	Size   int64 // encoded record size
	Expiry int64 // unix nanoseconds, 0 = no expiry
}

// Expired reports whether the entry's expiry has passed at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return e.Expiry != 0 && now.UnixNano() >= e.Expiry
}

type Index struct {
	m *swiss.Map[string, Entry]
}

func New(capacity uint32) *Index {
	return &Index{m: swiss.NewMap[string, Entry](capacity)}
}

// Get returns the entry for key. Callers decide how to treat expiry.
func (idx *Index) Get(key string) (Entry, bool) {
	return idx.m.Get(key)
}

func (idx *Index) Put(key string, e Entry) {
	idx.m.Put(key, e)
}

// Delete removes the key; committed tombstones are applied this way.
func (idx *Index) Delete(key string) {
	idx.m.Delete(key)
}

func (idx *Index) Len() int {
	return idx.m.Count()
}

// Range calls fn for every entry until fn returns false.
func (idx *Index) Range(fn func(key string, e Entry) bool) {
	idx.m.Iter(func(k string, e Entry) (stop bool) {
		return !fn(k, e)
	})
}
