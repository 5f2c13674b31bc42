package store

import (
	"context"
	"time"

	"github.com/kvcask/kvcask/internal/index"
	"github.com/kvcask/kvcask/internal/record"
)

// reapLoop sweeps expired keys into tombstones on the reap interval. The
// tombstones travel through the transaction buffer like user-issued deletes,
// so they order after everything enqueued before the sweep. Reads never wait
// for the sweep: the merged view already treats expired entries as absent.
func (s *Store) reapLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reapExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) reapExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.failed {
		return
	}

	now := time.Now()
	var expiredKeys []string
	s.idx.Range(func(key string, e index.Entry) bool {
		if !e.Expired(now) {
			return true
		}
		// A pending op already supersedes the committed record; the commit
		// of that op settles the key's fate.
		if _, ok := s.buf.latest(key); ok {
			return true
		}
		expiredKeys = append(expiredKeys, key)
		return true
	})

	if len(expiredKeys) == 0 {
		return
	}

	for _, key := range expiredKeys {
		s.buf.append(pendingOp{
			kind: opDelete,
			key:  key,
			size: int64(record.HeaderSize + len(key)),
		})
	}
	s.log.Debug().Int("keys", len(expiredKeys)).Str("path", s.path).Msg("reaped expired keys")

	if err := s.maybeCommitLocked(); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("commit of reaped keys failed")
	}
}
