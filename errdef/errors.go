// Package errdef defines the error values surfaced by kvcask. Callers are
// expected to match them with errors.Is; the store wraps them with context
// where useful.
package errdef

import "errors"

var (
	// ErrLockBusy is returned by Open when another process already holds the
	// store file.
	ErrLockBusy = errors.New("store file is locked by another process")

	// ErrKeyTooLarge / ErrValueTooLarge are returned by Create before any
	// buffering when a size limit is violated.
	ErrKeyTooLarge   = errors.New("key exceeds the configured key size limit")
	ErrValueTooLarge = errors.New("serialized value exceeds the configured value size limit")

	// ErrCapacityExceeded is returned by Create when committing the record
	// would push the store file past its configured size limit.
	ErrCapacityExceeded = errors.New("store file is at its configured capacity")

	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidTTL is returned by Create for a negative ttl.
	ErrInvalidTTL = errors.New("ttl must not be negative")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrStoreFailed is returned after an unrecoverable I/O failure has
	// retired the handle. A fresh Open is required.
	ErrStoreFailed = errors.New("store handle retired after I/O failure")

	// Codec / file level errors.
	ErrBadMagic         = errors.New("not a kvcask store file")
	ErrBadVersion       = errors.New("unsupported store file version")
	ErrBadHeader        = errors.New("corrupt store file header")
	ErrChecksumMismatch = errors.New("record checksum mismatch")
	ErrTruncatedRecord  = errors.New("truncated record")
)
