package claim

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/iskng/metagent/internal/errors"
)

func newFileLeaser(t *testing.T) *FileLeaser {
	t.Helper()
	return NewFileLeaser(filepath.Join(t.TempDir(), "claims"), "code", nil)
}

func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}
	return cmd.Process.Pid
}

func TestFileLeaser_Exclusive(t *testing.T) {
	l := newFileLeaser(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "auth", time.Hour)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lease.Task() != "auth" {
		t.Errorf("Task() = %s", lease.Task())
	}

	_, err = l.Acquire(ctx, "auth", time.Hour)
	if !errors.Is(err, ErrClaimed) {
		t.Fatalf("second Acquire() error = %v, want ErrClaimed", err)
	}
	if errors.KindOf(err) != errors.KindConflict {
		t.Errorf("KindOf() = %v, want conflict", errors.KindOf(err))
	}

	active, err := l.IsActive("auth")
	if err != nil || !active {
		t.Errorf("IsActive() = %v, %v", active, err)
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lease.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
	if active, _ := l.IsActive("auth"); active {
		t.Error("claim still active after release")
	}
	if _, err := l.Acquire(ctx, "auth", time.Hour); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestFileLeaser_ClaimFileFields(t *testing.T) {
	l := newFileLeaser(t)
	if _, err := l.Acquire(context.Background(), "auth", time.Hour); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(l.Path("auth"))
	if err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Task != "auth" || rec.Agent != "code" || rec.PID != os.Getpid() || rec.TTLSeconds != 3600 {
		t.Errorf("claim record = %+v", rec)
	}
}

func TestFileLeaser_TTLExpiry(t *testing.T) {
	l := newFileLeaser(t)
	ctx := context.Background()
	if _, err := l.Acquire(ctx, "auth", time.Minute); err != nil {
		t.Fatal(err)
	}

	// A live owner is still reclaimed once the ttl has elapsed.
	start := time.Now()
	l.now = func() time.Time { return start.Add(time.Minute + time.Second) }
	if active, _ := l.IsActive("auth"); active {
		t.Error("expired claim reported active")
	}
	if _, err := l.Acquire(ctx, "auth", time.Minute); err != nil {
		t.Fatalf("Acquire() on expired claim error = %v", err)
	}
}

func TestFileLeaser_DeadOwner(t *testing.T) {
	l := newFileLeaser(t)
	host, _ := os.Hostname()
	rec := Record{
		Task:       "auth",
		Agent:      "code",
		PID:        deadPID(t),
		Host:       host,
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
		TTLSeconds: 3600,
	}
	writeClaim(t, l.Path("auth"), rec)

	if _, err := l.Acquire(context.Background(), "auth", time.Hour); err != nil {
		t.Fatalf("Acquire() over dead owner error = %v", err)
	}
}

func TestFileLeaser_OtherHostNotReclaimedBeforeTTL(t *testing.T) {
	l := newFileLeaser(t)
	rec := Record{
		Task:       "auth",
		PID:        deadPID(t),
		Host:       "some-other-host",
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
		TTLSeconds: 3600,
	}
	writeClaim(t, l.Path("auth"), rec)

	if _, err := l.Acquire(context.Background(), "auth", time.Hour); !errors.Is(err, ErrClaimed) {
		t.Errorf("Acquire() error = %v, want ErrClaimed", err)
	}
}

func TestFileLeaser_MalformedClaim(t *testing.T) {
	l := newFileLeaser(t)
	path := l.Path("auth")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Acquire(context.Background(), "auth", time.Hour); !errors.Is(err, ErrClaimed) {
		t.Fatalf("fresh malformed claim: error = %v, want ErrClaimed", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Acquire(context.Background(), "auth", time.Hour); err != nil {
		t.Errorf("old malformed claim: error = %v", err)
	}
}

func TestFileLease_ReleaseOnlyOwn(t *testing.T) {
	l := newFileLeaser(t)
	lease, err := l.Acquire(context.Background(), "auth", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	writeClaim(t, l.Path("auth"), Record{Task: "auth", PID: os.Getpid() + 1, Host: "elsewhere"})

	if err := lease.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(l.Path("auth")); err != nil {
		t.Error("Release removed a claim owned by someone else")
	}
}

func TestFileLeaser_CanceledContext(t *testing.T) {
	l := newFileLeaser(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, "auth", time.Hour); err == nil {
		t.Error("Acquire() with canceled context should fail")
	}
}

func TestSQLiteLeaser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "claims", LeaseDBFile)
	first, err := NewSQLiteLeaser(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteLeaser() error = %v", err)
	}
	defer first.Close()
	second, err := NewSQLiteLeaser(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteLeaser() error = %v", err)
	}
	defer second.Close()

	ctx := context.Background()
	lease, err := first.Acquire(ctx, "auth", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := second.Acquire(ctx, "auth", time.Minute); !errors.Is(err, ErrClaimed) {
		t.Fatalf("second Acquire() error = %v, want ErrClaimed", err)
	}
	if active, err := second.IsActive("auth"); err != nil || !active {
		t.Errorf("IsActive() = %v, %v", active, err)
	}

	start := time.Now()
	second.now = func() time.Time { return start.Add(2 * time.Minute) }
	if active, _ := second.IsActive("auth"); active {
		t.Error("expired lease reported active")
	}
	stolen, err := second.Acquire(ctx, "auth", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() on expired lease error = %v", err)
	}

	// The original holder no longer owns the row.
	if err := lease.Release(); err != nil {
		t.Fatal(err)
	}
	if active, _ := second.IsActive("auth"); !active {
		t.Error("stale holder's release removed the new lease")
	}
	if err := stolen.Release(); err != nil {
		t.Fatal(err)
	}
	if active, _ := second.IsActive("auth"); active {
		t.Error("lease still active after release")
	}
}

func TestOpen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "code")
	l, err := Open("", root, nil)
	if err != nil {
		t.Fatal(err)
	}
	fl, ok := l.(*FileLeaser)
	if !ok {
		t.Fatalf("Open(\"\") = %T, want *FileLeaser", l)
	}
	if fl.agent != "code" {
		t.Errorf("agent = %s, want code", fl.agent)
	}

	sl, err := Open(BackendSQLite, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sl.Close()
	if _, ok := sl.(*SQLiteLeaser); !ok {
		t.Errorf("Open(sqlite) = %T", sl)
	}

	if _, err := Open("redis", root, nil); err == nil {
		t.Error("Open() should reject unknown backends")
	}
}

func TestExpiredBoundary(t *testing.T) {
	start := time.Now()
	if !expired(start, time.Minute, start.Add(time.Minute)) {
		t.Error("claim should be stale exactly at ttl")
	}
	if expired(start, time.Minute, start.Add(59*time.Second)) {
		t.Error("claim should be live before ttl")
	}
}

func writeClaim(t *testing.T, path string, rec Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}
