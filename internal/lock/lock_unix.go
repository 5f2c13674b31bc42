//go:build unix

package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kvcask/kvcask/errdef"
)

// Acquire takes an exclusive, non-blocking advisory lock on the sidecar lock
// file for a store file. If another holder exists the call fails immediately
// with ErrLockBusy; it never waits.
//
// On Unix systems this uses flock(2). flock locks belong to the open file
// description, so a second Acquire for the same path conflicts even from
// within the same process. The returned Lock keeps the file handle open for
// the lifetime of the lock.
func Acquire(storePath string) (*Lock, error) {
	lockPath := storePath + lockSuffix

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", errdef.ErrLockBusy, lockPath)
	}

	return &Lock{file: f}, nil
}

func (l *Lock) release() {
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
}
