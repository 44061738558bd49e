package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLock_LockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.json")
	fl := NewFileLock(path)

	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := os.Stat(path + LockSuffix); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "task.json"))
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock without Lock should not error: %v", err)
	}
}

func TestFileLock_Contended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.json")
	holder := NewFileLock(path)
	if err := holder.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// flock locks belong to the open file description, so a second open in
	// the same process contends with the first.
	acquired := make(chan error, 1)
	go func() {
		other := NewFileLock(path)
		if err := other.Lock(); err != nil {
			acquired <- err
			return
		}
		acquired <- other.Unlock()
	}()

	select {
	case err := <-acquired:
		t.Fatalf("second Lock returned while the lock was held: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if err := holder.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("second Lock: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second Lock never acquired after release")
	}
}

func TestWithLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.json")
	if err := WithLock(path, func() error { return nil }); err != nil {
		t.Fatalf("WithLock = %v", err)
	}
	// The lock is released afterwards.
	fl := NewFileLock(path)
	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock after WithLock: %v", err)
	}
	_ = fl.Unlock()
}
