package claim

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iskng/metagent/internal/logging"
)

// LeaseDBFile is the database file name inside the claims directory.
const LeaseDBFile = "leases.db"

// SQLiteLeaser keeps claims in a leases table keyed by task.
type SQLiteLeaser struct {
	db     *sql.DB
	pid    int
	host   string
	now    func() time.Time
	logger *logging.Logger
}

// NewSQLiteLeaser opens (and migrates) the lease database at dbPath.
func NewSQLiteLeaser(dbPath string, logger *logging.Logger) (*SQLiteLeaser, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create lease directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open lease db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &SQLiteLeaser{db: db, pid: os.Getpid(), host: hostname(), now: time.Now, logger: logger}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate lease db: %w", err)
	}
	return l, nil
}

func (l *SQLiteLeaser) migrate() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS leases (
		task TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		pid INTEGER NOT NULL,
		host TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`)
	return err
}

// Acquire inserts a lease row for task. The insert is attempted first so the
// transaction holds the write lock before any existing row is inspected; an
// expired row, or one left by a dead process on this host, is replaced.
func (l *SQLiteLeaser) Acquire(ctx context.Context, task string, ttl time.Duration) (Lease, error) {
	now := l.now()
	holder := uuid.New().String()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lease tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := func() (bool, error) {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO leases (task, holder_id, pid, host, started_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
			task, holder, l.pid, l.host, now.Unix(), now.Add(ttl).Unix())
		if err != nil {
			return false, fmt.Errorf("insert lease: %w", err)
		}
		n, err := res.RowsAffected()
		return n == 1, err
	}

	ok, err := insert()
	if err != nil {
		return nil, err
	}
	if !ok {
		var (
			oldHolder, oldHost string
			oldPID             int
			expiresAt          int64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT holder_id, pid, host, expires_at FROM leases WHERE task = ?`, task,
		).Scan(&oldHolder, &oldPID, &oldHost, &expiresAt)
		if err != nil {
			return nil, fmt.Errorf("query lease: %w", err)
		}
		stale := now.Unix() >= expiresAt || (oldHost == l.host && !processAlive(oldPID))
		if !stale {
			return nil, claimedError(task)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM leases WHERE task = ? AND holder_id = ?`, task, oldHolder); err != nil {
			return nil, fmt.Errorf("delete stale lease: %w", err)
		}
		if l.logger != nil {
			l.logger.Info("stale claim recovered", "task", task, "old_pid", oldPID, "old_host", oldHost)
		}
		if ok, err = insert(); err != nil {
			return nil, err
		}
		if !ok {
			return nil, claimedError(task)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease: %w", err)
	}
	if l.logger != nil {
		l.logger.Info("claim acquired", "task", task, "holder", holder)
	}
	return &sqliteLease{leaser: l, task: task, holder: holder}, nil
}

// IsActive reports whether task has an unexpired lease whose holder is not
// known to be dead.
func (l *SQLiteLeaser) IsActive(task string) (bool, error) {
	var (
		pid       int
		host      string
		expiresAt int64
	)
	err := l.db.QueryRow(`SELECT pid, host, expires_at FROM leases WHERE task = ?`, task).Scan(&pid, &host, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query lease: %w", err)
	}
	if l.now().Unix() >= expiresAt {
		return false, nil
	}
	if host == l.host && !processAlive(pid) {
		return false, nil
	}
	return true, nil
}

// Close closes the database.
func (l *SQLiteLeaser) Close() error {
	return l.db.Close()
}

type sqliteLease struct {
	leaser *SQLiteLeaser
	task   string
	holder string
}

func (s *sqliteLease) Task() string { return s.task }

// Release deletes the row only while it carries our holder id.
func (s *sqliteLease) Release() error {
	if _, err := s.leaser.db.Exec(`DELETE FROM leases WHERE task = ? AND holder_id = ?`, s.task, s.holder); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
