package claim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iskng/metagent/internal/logging"
	"github.com/iskng/metagent/internal/record"
	"github.com/iskng/metagent/internal/state"
)

// Record is the JSON content of claims/<task>.lock.
type Record struct {
	Task       string `json:"task"`
	Agent      string `json:"agent"`
	PID        int    `json:"pid"`
	Host       string `json:"host"`
	StartedAt  string `json:"started_at"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// FileLeaser stores one claim file per task in a claims directory.
type FileLeaser struct {
	dir    string
	agent  string
	pid    int
	host   string
	now    func() time.Time
	logger *logging.Logger
}

// NewFileLeaser returns a leaser writing claims under dir for the named
// agent. The logger may be nil.
func NewFileLeaser(dir, agent string, logger *logging.Logger) *FileLeaser {
	return &FileLeaser{
		dir:    dir,
		agent:  agent,
		pid:    os.Getpid(),
		host:   hostname(),
		now:    time.Now,
		logger: logger,
	}
}

// Path returns the claim file for task.
func (l *FileLeaser) Path(task string) string {
	return filepath.Join(l.dir, task+".lock")
}

// Acquire creates the claim file for task. An existing claim that is stale
// is removed and creation is retried once.
func (l *FileLeaser) Acquire(ctx context.Context, task string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := l.Path(task)
	rec := Record{
		Task:       task,
		Agent:      l.agent,
		PID:        l.pid,
		Host:       l.host,
		StartedAt:  state.FormatTime(l.now()),
		TTLSeconds: int64(ttl / time.Second),
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := record.CreateExclusive(path, rec)
		if err == nil {
			if l.logger != nil {
				l.logger.Info("claim acquired", "task", task, "pid", l.pid)
			}
			return &fileLease{leaser: l, task: task, path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create claim %s: %w", path, err)
		}
		if attempt > 0 {
			break
		}
		stale, existing := l.stale(path, ttl)
		if !stale {
			if l.logger != nil {
				l.logger.Debug("claim held", "task", task, "pid", existing.PID, "host", existing.Host)
			}
			return nil, claimedError(task)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale claim: %w", err)
		}
		if l.logger != nil {
			l.logger.Info("stale claim recovered", "task", task, "old_pid", existing.PID, "old_host", existing.Host)
		}
	}
	return nil, claimedError(task)
}

// IsActive reports whether task has a live claim.
func (l *FileLeaser) IsActive(task string) (bool, error) {
	path := l.Path(task)
	if !record.Exists(path) {
		return false, nil
	}
	stale, _ := l.stale(path, 0)
	return !stale, nil
}

// Close is a no-op.
func (l *FileLeaser) Close() error { return nil }

// stale inspects the claim at path. A readable claim is stale once its own
// ttl has elapsed, or when it was taken on this host by a process that no
// longer exists. An unreadable claim is only stale when its mtime is older
// than fallbackTTL (or its own recorded ttl when that is unknown).
func (l *FileLeaser) stale(path string, fallbackTTL time.Duration) (bool, Record) {
	now := l.now()
	data, err := os.ReadFile(path)
	if err != nil {
		return os.IsNotExist(err), Record{}
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return l.staleByMtime(path, fallbackTTL, now), Record{}
	}
	ttl := time.Duration(rec.TTLSeconds) * time.Second
	start, err := state.ParseTime(rec.StartedAt)
	if err != nil {
		return l.staleByMtime(path, fallbackTTL, now), rec
	}
	if ttl > 0 && expired(start, ttl, now) {
		return true, rec
	}
	if rec.Host == l.host && !processAlive(rec.PID) {
		return true, rec
	}
	return false, rec
}

func (l *FileLeaser) staleByMtime(path string, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	info, err := os.Stat(path)
	if err != nil {
		return os.IsNotExist(err)
	}
	return expired(info.ModTime(), ttl, now)
}

type fileLease struct {
	leaser *FileLeaser
	task   string
	path   string
}

func (f *fileLease) Task() string { return f.task }

// Release removes the claim file if it still records our pid and host.
func (f *fileLease) Release() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	if rec.PID != f.leaser.pid || rec.Host != f.leaser.host {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if f.leaser.logger != nil {
		f.leaser.logger.Info("claim released", "task", f.task)
	}
	return nil
}
