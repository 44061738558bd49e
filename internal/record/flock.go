package record

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LockSuffix is appended to a record path to name its lock file.
const LockSuffix = ".lock"

// FileLock provides cross-process mutual exclusion using flock(2) on a
// sibling lock file. Every read-modify-write of a record holds it.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns the lock guarding the record at recordPath. The lock
// file is recordPath + ".lock".
func NewFileLock(recordPath string) *FileLock {
	return &FileLock{path: recordPath + LockSuffix}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

func (fl *FileLock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

// Lock acquires an exclusive lock, blocking until available.
func (fl *FileLock) Lock() error {
	f, err := fl.open()
	if err != nil {
		return err
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("flock %s: %w", fl.path, err)
	}
	fl.file = f
	return nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	f := fl.file
	fl.file = nil
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("funlock %s: %w", fl.path, err)
	}
	return f.Close()
}

// WithLock runs fn while holding the lock for recordPath.
func WithLock(recordPath string, fn func() error) error {
	fl := NewFileLock(recordPath)
	if err := fl.Lock(); err != nil {
		return err
	}
	defer fl.Unlock()
	return fn()
}
