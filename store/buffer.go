package store

import (
	"fmt"
	"time"

	"github.com/kvcask/kvcask/internal/index"
	"github.com/kvcask/kvcask/internal/record"
)

type opKind uint8

const (
	opCreate opKind = iota + 1
	opDelete
)

// pendingOp is one enqueued mutation. payload holds the bytes exactly as they
// will be written (compressed if the compressed flag is set), so a pending
// create can serve reads before it is committed.
type pendingOp struct {
	kind       opKind
	key        string
	payload    []byte
	expiry     int64
	compressed bool
	size       int64 // encoded record size, tombstones included
}

// txBuffer is the ordered list of pending operations plus a per-key overlay
// for O(1) merged-view lookups. It is guarded by the store's mutex.
type txBuffer struct {
	ops   []pendingOp
	byKey map[string]int // key -> index of its latest op
	bytes int64
}

func newTxBuffer() txBuffer {
	return txBuffer{byKey: make(map[string]int)}
}

func (b *txBuffer) append(op pendingOp) {
	b.ops = append(b.ops, op)
	b.byKey[op.key] = len(b.ops) - 1
	b.bytes += op.size
}

// latest returns the most recent pending op for key, if any.
func (b *txBuffer) latest(key string) (*pendingOp, bool) {
	i, ok := b.byKey[key]
	if !ok {
		return nil, false
	}
	return &b.ops[i], true
}

func (b *txBuffer) len() int { return len(b.ops) }

// take hands the pending list to the committer and clears the buffer.
func (b *txBuffer) take() []pendingOp {
	ops := b.ops
	b.ops = nil
	b.byKey = make(map[string]int)
	b.bytes = 0
	return ops
}

// commitLocked drains the buffer into the store file and index, in enqueue
// order: later ops may depend on earlier ones (delete then recreate of the
// same key within one buffer). The index is updated only after the physical
// append of that operation succeeds. Any append failure retires the handle;
// the records written before the failure remain a valid prefix.
//
// Callers must hold the write lock.
func (s *Store) commitLocked() error {
	if s.buf.len() == 0 {
		return nil
	}

	for _, op := range s.buf.take() {
		var rec *record.Record
		if op.kind == opCreate {
			rec = record.New(op.key, op.payload, op.expiry, op.compressed)
		} else {
			rec = record.NewTombstone(op.key)
		}

		offset, err := s.file.Append(rec)
		if err != nil {
			s.failed = true
			return fmt.Errorf("commit %q: %w", op.key, err)
		}

		if op.kind == opCreate {
			s.idx.Put(op.key, index.Entry{
				Offset: offset,
				Size:   rec.Size(),
				Expiry: op.expiry,
			})
		} else {
			s.idx.Delete(op.key)
		}
	}

	if err := s.file.FlushHeader(); err != nil {
		s.failed = true
		return err
	}
	if err := s.file.Sync(); err != nil {
		s.failed = true
		return fmt.Errorf("sync after commit: %w", err)
	}
	return nil
}

// maybeCommitLocked commits when a pending-count or pending-bytes threshold
// has been crossed. The age threshold is handled by the background committer.
func (s *Store) maybeCommitLocked() error {
	if s.buf.len() >= s.cfg.MaxPendingOps || s.buf.bytes >= s.cfg.MaxPendingBytes {
		return s.commitLocked()
	}
	return nil
}

// lookupLocked resolves a key through the merged view: the latest pending op
// overlays the committed index, and expired state is treated as absent.
// Callers must hold at least the read lock.
func (s *Store) lookupLocked(key string, now time.Time) (pending *pendingOp, entry index.Entry, live bool) {
	if op, ok := s.buf.latest(key); ok {
		if op.kind == opCreate && !expired(op.expiry, now) {
			return op, index.Entry{}, true
		}
		return nil, index.Entry{}, false
	}

	if e, ok := s.idx.Get(key); ok && !e.Expired(now) {
		return nil, e, true
	}
	return nil, index.Entry{}, false
}

func expired(expiry int64, now time.Time) bool {
	return expiry != 0 && now.UnixNano() >= expiry
}
