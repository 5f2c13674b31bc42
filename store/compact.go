package store

import (
	"fmt"
	"os"
	"time"

	"github.com/kvcask/kvcask/internal/record"
	"github.com/kvcask/kvcask/internal/storefile"
)

const compactSuffix = ".compact"

// Optimize rewrites the store file keeping only live records, reclaiming the
// space held by tombstones, superseded versions and expired keys. The buffer
// is force-committed first, then the surviving records are streamed in file
// order into a sibling file which atomically replaces the original.
//
// This is a full-file copy and blocks every other operation on the handle
// until it finishes. It is never invoked automatically.
func (s *Store) Optimize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if err := s.commitLocked(); err != nil {
		return err
	}

	before := s.file.Used()
	if err := s.rewriteLocked(); err != nil {
		// Rewrite failures retire the handle: the file set may be part-way
		// through the swap and a fresh Open re-validates it.
		s.failed = true
		return err
	}

	s.log.Info().Str("path", s.path).
		Int64("before", before).Int64("after", s.file.Used()).Msg("store optimized")
	return nil
}

func (s *Store) rewriteLocked() error {
	tmpPath := s.path + compactSuffix
	// A leftover from an interrupted optimize is dead weight.
	_ = os.Remove(tmpPath)

	tmp, _, err := storefile.Open(tmpPath, s.file.Limits())
	if err != nil {
		return fmt.Errorf("create compaction file: %w", err)
	}

	now := time.Now()
	err = s.file.Scan(func(rec *record.Record, offset int64) error {
		if rec.Tombstone() {
			return nil
		}
		// Only the record the index currently points at is live; earlier
		// versions of the key and expired entries are dropped.
		entry, ok := s.idx.Get(string(rec.Key))
		if !ok || entry.Offset != offset || entry.Expired(now) {
			return nil
		}
		_, aerr := tmp.Append(rec)
		return aerr
	})
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("rewrite store file: %w", err)
	}

	if err := tmp.FlushHeader(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync compaction file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close compaction file: %w", err)
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("swap compacted file: %w", err)
	}

	file, _, err := storefile.Open(s.path, s.file.Limits())
	if err != nil {
		return fmt.Errorf("reopen compacted file: %w", err)
	}
	s.file = file
	return s.loadIndex()
}
