// Package claim provides exclusive, TTL-bounded leases on tasks so that at
// most one orchestrator process drives a task at a time.
//
// Two backends implement Leaser. FileLeaser (the default) creates
// claims/<task>.lock with O_EXCL. SQLiteLeaser keeps the same semantics in a
// leases table. In both, a live claim is always honoured and a claim older
// than its TTL is reclaimable whether or not its owner is still alive;
// there is no renewal.
package claim

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/iskng/metagent/internal/errors"
)

// DefaultTTL is the lease lifetime used by run, run-next and run-queue.
const DefaultTTL = time.Hour

// ErrClaimed is returned by Acquire when another live holder owns the task.
var ErrClaimed = errors.ErrClaimed

// Lease is a held claim. Release is idempotent and only removes the claim
// while it still belongs to this holder.
type Lease interface {
	Task() string
	Release() error
}

// Leaser hands out leases on tasks.
type Leaser interface {
	Acquire(ctx context.Context, task string, ttl time.Duration) (Lease, error)
	IsActive(task string) (bool, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

func claimedError(task string) error {
	return errors.Conflict("task", task, ErrClaimed)
}

// expired reports whether a claim started at start with the given ttl is
// past its lifetime at now.
func expired(start time.Time, ttl time.Duration, now time.Time) bool {
	return now.Sub(start) >= ttl
}

// processAlive reports whether pid exists on this host. EPERM means the
// process exists but belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
