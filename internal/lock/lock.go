// Package lock provides host-local, per-file process exclusivity for store
// files. Exactly one Lock may be held for a given path at a time, across all
// processes on the host; a second Acquire fails fast with ErrLockBusy.
package lock

import (
	"os"
	"sync"
)

// The lock file lives next to the store file it guards.
const lockSuffix = ".lock"

// Lock is a held process lock. It is released by Release or implicitly by
// process termination.
type Lock struct {
	file *os.File
	once sync.Once
}

// Release drops the lock. It is idempotent.
func (l *Lock) Release() {
	l.once.Do(l.release)
}
