//go:build windows

package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"

	"github.com/kvcask/kvcask/errdef"
)

// Acquire takes an exclusive, non-blocking lock on the sidecar lock file for
// a store file. If another holder exists the call fails immediately with
// ErrLockBusy; it never waits.
//
// On Windows this uses LockFileEx with LOCKFILE_FAIL_IMMEDIATELY. Unlike an
// O_EXCL marker file, the lock dies with the process, so a crashed holder
// does not wedge the store.
func Acquire(storePath string) (*Lock, error) {
	lockPath := storePath + lockSuffix

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ol := new(windows.Overlapped)
	err = windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", errdef.ErrLockBusy, lockPath)
	}

	return &Lock{file: f}, nil
}

func (l *Lock) release() {
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, ol)
	_ = l.file.Close()
}
