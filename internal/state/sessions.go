package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/record"
)

// SessionEnv names the session id exported to the agent process.
const SessionEnv = "METAGENT_SESSION"

// CreateSession persists a Running session for one stage attempt.
func (s *Store) CreateSession(id, agent string, task *string, stage string, pid int, host, repoRoot string) (Session, error) {
	sess := Session{
		SessionID: id,
		Task:      task,
		Agent:     agent,
		Stage:     stage,
		Status:    SessionRunning,
		StartedAt: NowISO(),
		PID:       pid,
		Host:      host,
		RepoRoot:  repoRoot,
	}
	if err := record.Save(s.SessionPath(id), sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// LoadSession reads a session record.
func (s *Store) LoadSession(id string) (Session, error) {
	sess, err := record.Load[Session](s.SessionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, errors.NotFoundf("session", "Session not found: %s", id)
		}
		return Session{}, err
	}
	return sess, nil
}

// UpdateSession applies fn under the session lock. A change of status out
// of Finished or Failed is rejected and nothing is written.
func (s *Store) UpdateSession(id string, fn func(*Session) error) (Session, error) {
	path := s.SessionPath(id)
	if !record.Exists(path) {
		return Session{}, errors.NotFoundf("session", "Session not found: %s", id)
	}
	return record.Update(path, func(sess *Session) error {
		before := sess.Status
		if err := fn(sess); err != nil {
			return err
		}
		if before.Terminal() && sess.Status != before {
			return terminalError(id, before, sess.Status)
		}
		return nil
	})
}

// ListSessions returns all session records ordered by start time.
func (s *Store) ListSessions() ([]Session, error) {
	dir := filepath.Join(s.root, SessionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var out []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := s.SessionPath(e.Name())
		if !record.Exists(path) {
			continue
		}
		sess, err := record.Load[Session](path)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

// ResolveSessionID picks the session a finish call refers to: the explicit
// id, then $METAGENT_SESSION, then the only Running session.
func (s *Store) ResolveSessionID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(SessionEnv); env != "" {
		return env, nil
	}
	sessions, err := s.ListSessions()
	if err != nil {
		return "", err
	}
	var running []string
	for _, sess := range sessions {
		if sess.Status == SessionRunning {
			running = append(running, sess.SessionID)
		}
	}
	if len(running) == 1 {
		return running[0], nil
	}
	return "", fmt.Errorf("%w: METAGENT_SESSION not set and no unique active session found", errors.ErrNoSession)
}

// HasActiveSession reports whether a Running session references task.
func (s *Store) HasActiveSession(task string) (bool, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return false, err
	}
	for _, sess := range sessions {
		if sess.Status == SessionRunning && sess.TaskName() == task {
			return true, nil
		}
	}
	return false, nil
}

// History collapses the task's sessions into consecutive stage runs, for
// example "spec->planning->build(3x)->review". It is empty when the task
// has no sessions.
func (s *Store) History(task string) (string, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return "", err
	}
	var parts []string
	current, count := "", 0
	flush := func() {
		if count == 0 {
			return
		}
		if count > 1 {
			parts = append(parts, fmt.Sprintf("%s(%dx)", current, count))
		} else {
			parts = append(parts, current)
		}
	}
	for _, sess := range sessions {
		if sess.TaskName() != task {
			continue
		}
		if count > 0 && sess.Stage == current {
			count++
			continue
		}
		flush()
		current, count = sess.Stage, 1
	}
	flush()
	return strings.Join(parts, "->"), nil
}
