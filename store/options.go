package store

import (
	"io"
	"time"

	"github.com/phuslu/log"
)

// Config carries the tunables fixed at Open time. Size limits are persisted
// into the store file header on creation; when an existing file is opened its
// persisted limits win, since they describe data already on disk.
type Config struct {
	// Directory is where store files live. A store named "users" in
	// directory "/var/data" persists to /var/data/users, with the process
	// lock at /var/data/users.lock.
	Directory string

	MaxFileSize  int64 // bytes, header included
	MaxKeySize   int   // bytes
	MaxValueSize int   // bytes, measured on the serialized JSON

	// Commit buffering. Exceeding either threshold forces a synchronous
	// commit; CommitInterval bounds how long a non-empty buffer may age
	// before the background committer flushes it.
	MaxPendingOps   int
	MaxPendingBytes int64
	CommitInterval  time.Duration

	// ReapInterval is how often expired keys are swept into tombstones.
	ReapInterval time.Duration

	// Compression transparently zstd-compresses payloads on disk. Files
	// written with compression stay readable with it off; the flag only
	// governs new records.
	Compression bool

	Logger log.Logger
}

// DefaultConfig returns the defaults: 1 GiB file, 32-byte keys, 16 KiB
// serialized values, commit at 128 ops / 256 KiB / 5s, reap every second.
func DefaultConfig() *Config {
	return &Config{
		Directory:       ".",
		MaxFileSize:     1 << 30,
		MaxKeySize:      32,
		MaxValueSize:    16 << 10,
		MaxPendingOps:   128,
		MaxPendingBytes: 256 << 10,
		CommitInterval:  5 * time.Second,
		ReapInterval:    time.Second,
		Logger:          log.Logger{Writer: &log.IOWriter{Writer: io.Discard}},
	}
}

type Option func(*Config)

func WithDirectory(dir string) Option {
	return func(c *Config) {
		c.Directory = dir
	}
}

func WithMaxFileSize(size int64) Option {
	return func(c *Config) {
		c.MaxFileSize = size
	}
}

func WithMaxKeySize(size int) Option {
	return func(c *Config) {
		c.MaxKeySize = size
	}
}

func WithMaxValueSize(size int) Option {
	return func(c *Config) {
		c.MaxValueSize = size
	}
}

func WithMaxPendingOps(n int) Option {
	return func(c *Config) {
		c.MaxPendingOps = n
	}
}

func WithMaxPendingBytes(n int64) Option {
	return func(c *Config) {
		c.MaxPendingBytes = n
	}
}

func WithCommitInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.CommitInterval = interval
	}
}

func WithReapInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.ReapInterval = interval
	}
}

func WithCompression(enabled bool) Option {
	return func(c *Config) {
		c.Compression = enabled
	}
}

func WithLogger(logger log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
