package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/phuslu/log"

	"github.com/kvcask/kvcask/errdef"
	"github.com/kvcask/kvcask/internal/index"
	"github.com/kvcask/kvcask/internal/lock"
	"github.com/kvcask/kvcask/internal/record"
	"github.com/kvcask/kvcask/internal/storefile"
)

// Store is a live handle to a store file. Handles come only from Open; the
// zero value is unusable.
type Store struct {
	cfg  *Config
	path string
	log  log.Logger

	// mu guards file, idx, buf and the lifecycle flags as one unit: many
	// concurrent readers, one writer for enqueue/commit/compaction.
	mu     sync.RWMutex
	file   *storefile.File
	idx    *index.Index
	buf    txBuffer
	closed bool
	failed bool

	flock  *lock.Lock
	cancel context.CancelFunc
	wg     sync.WaitGroup

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// Open opens the named store, creating its file if it does not exist. It
// acquires the host-wide process lock for the file (failing fast with
// ErrLockBusy if another handle holds it), rebuilds the index by scanning the
// file, and starts the background committer and TTL reaper.
func Open(name string, opts ...Option) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("store name must not be empty")
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	path := filepath.Join(cfg.Directory, name)

	flock, err := lock.Acquire(path)
	if err != nil {
		return nil, err
	}

	file, created, err := storefile.Open(path, storefile.Limits{
		MaxFileSize:  cfg.MaxFileSize,
		MaxKeySize:   cfg.MaxKeySize,
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		flock.Release()
		return nil, err
	}

	zenc, err := zstd.NewWriter(nil)
	if err != nil {
		file.Close()
		flock.Release()
		return nil, fmt.Errorf("init compressor: %w", err)
	}
	// The decoder is always needed: a file written with compression on must
	// stay readable after reopening with it off.
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		file.Close()
		flock.Release()
		return nil, fmt.Errorf("init decompressor: %w", err)
	}

	s := &Store{
		cfg:   cfg,
		path:  path,
		log:   cfg.Logger,
		file:  file,
		buf:   newTxBuffer(),
		flock: flock,
		zenc:  zenc,
		zdec:  zdec,
	}

	if err := s.loadIndex(); err != nil {
		file.Close()
		flock.Release()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go s.commitLoop(ctx)
	go s.reapLoop(ctx)

	s.log.Info().Str("path", path).Bool("created", created).
		Int("keys", s.idx.Len()).Msg("store opened")
	return s, nil
}

// loadIndex rebuilds the index from the store file: records are replayed in
// file order, so the latest record for a key wins and tombstones erase
// earlier creates. The live-record counter is recomputed from the scan, since
// the persisted counters may be stale after a crash.
func (s *Store) loadIndex() error {
	idx := index.New(1 << 10)
	err := s.file.Scan(func(rec *record.Record, offset int64) error {
		key := string(rec.Key)
		if rec.Tombstone() {
			idx.Delete(key)
			return nil
		}
		idx.Put(key, index.Entry{
			Offset: offset,
			Size:   rec.Size(),
			Expiry: rec.Expiry,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	s.idx = idx
	s.file.SetCount(int64(idx.Len()))
	return nil
}

// Create stores value under key, optionally expiring after ttl. A zero ttl
// means the key never expires. The value is serialized to JSON; its size
// limit applies to the serialized bytes. Validation happens against the
// merged view before anything is buffered.
func (s *Store) Create(key string, value any, ttl time.Duration) error {
	if ttl < 0 {
		return errdef.ErrInvalidTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize value: %w", err)
	}

	var expiry int64
	if ttl > 0 {
		expiry = time.Now().Add(ttl).UnixNano()
	}

	stored := payload
	compressed := false
	if s.cfg.Compression {
		stored = s.zenc.EncodeAll(payload, nil)
		compressed = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}

	limits := s.file.Limits()
	if len(key) > limits.MaxKeySize {
		return fmt.Errorf("%w: key is %d bytes, limit %d", errdef.ErrKeyTooLarge, len(key), limits.MaxKeySize)
	}
	if len(payload) > limits.MaxValueSize {
		return fmt.Errorf("%w: value is %d bytes, limit %d", errdef.ErrValueTooLarge, len(payload), limits.MaxValueSize)
	}

	if _, _, live := s.lookupLocked(key, time.Now()); live {
		return fmt.Errorf("%w: %q", errdef.ErrKeyExists, key)
	}

	size := int64(record.HeaderSize + len(key) + len(stored))
	if s.file.Used()+s.buf.bytes+size > limits.MaxFileSize {
		return errdef.ErrCapacityExceeded
	}

	s.buf.append(pendingOp{
		kind:       opCreate,
		key:        key,
		payload:    stored,
		expiry:     expiry,
		compressed: compressed,
		size:       size,
	})
	return s.maybeCommitLocked()
}

// Read returns the value stored under key as raw JSON. Pending creates are
// visible before they are committed; tombstoned, expired and unknown keys
// report ErrKeyNotFound.
func (s *Store) Read(key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}

	pending, entry, live := s.lookupLocked(key, time.Now())
	if !live {
		return nil, fmt.Errorf("%w: %q", errdef.ErrKeyNotFound, key)
	}

	if pending != nil {
		return s.payloadBytes(pending.payload, pending.compressed)
	}

	rec, err := s.file.ReadRecordAt(entry.Offset, entry.Size)
	if err != nil {
		return nil, err
	}
	return s.payloadBytes(rec.Value, rec.Compressed())
}

func (s *Store) payloadBytes(stored []byte, compressed bool) (json.RawMessage, error) {
	if compressed {
		payload, err := s.zdec.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress value: %w", err)
		}
		return payload, nil
	}
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, nil
}

// Delete removes key by enqueueing a tombstone. The key must be live in the
// merged view.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}

	if _, _, live := s.lookupLocked(key, time.Now()); !live {
		return fmt.Errorf("%w: %q", errdef.ErrKeyNotFound, key)
	}

	s.buf.append(pendingOp{
		kind: opDelete,
		key:  key,
		size: int64(record.HeaderSize + len(key)),
	})
	return s.maybeCommitLocked()
}

// Keys returns the live keys of the merged view, sorted.
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}

	now := time.Now()
	keys := make([]string, 0, s.idx.Len())
	s.idx.Range(func(key string, e index.Entry) bool {
		if _, ok := s.buf.latest(key); ok {
			return true // the overlay decides below
		}
		if !e.Expired(now) {
			keys = append(keys, key)
		}
		return true
	})
	for key, i := range s.buf.byKey {
		op := s.buf.ops[i]
		if op.kind == opCreate && !expired(op.expiry, now) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of live keys in the merged view.
func (s *Store) Len() (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Sync force-commits the buffer. Useful before handing the file to a backup.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	return s.commitLocked()
}

// Close flushes the buffer, stops the background goroutines, closes the file
// and releases the process lock. The handle is unusable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errdef.ErrStoreClosed
	}

	var firstErr error
	if !s.failed {
		firstErr = s.commitLocked()
	}
	s.closed = true

	if err := s.file.FlushHeader(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.file.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.flock.Release()

	s.zenc.Close()
	s.zdec.Close()

	s.log.Info().Str("path", s.path).Msg("store closed")
	return firstErr
}

// usableLocked gates every operation: after Close or a fatal I/O error the
// handle fails fast instead of touching shared state.
func (s *Store) usableLocked() error {
	if s.closed {
		return errdef.ErrStoreClosed
	}
	if s.failed {
		return errdef.ErrStoreFailed
	}
	return nil
}

// commitLoop flushes a non-empty buffer on the commit interval, so buffered
// mutations never age past it even when the thresholds are not reached. It
// never blocks callers; commit errors cannot be surfaced to one, so they are
// logged and the handle is retired by commitLocked.
func (s *Store) commitLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CommitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if !s.closed && !s.failed {
				if err := s.commitLocked(); err != nil {
					s.log.Error().Err(err).Str("path", s.path).Msg("periodic commit failed")
				}
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
