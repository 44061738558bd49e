package state

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/iskng/metagent/internal/errors"
)

// SessionStatus is the lifecycle status of a session. Running is the only
// non-terminal status.
type SessionStatus string

const (
	SessionRunning  SessionStatus = "running"
	SessionFinished SessionStatus = "finished"
	SessionFailed   SessionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionFinished || s == SessionFailed
}

// Session is the persisted record at sessions/<id>/session.json. One
// session is one agent process invocation.
type Session struct {
	SessionID  string        `json:"session_id"`
	Task       *string       `json:"task"`
	Agent      string        `json:"agent"`
	Stage      string        `json:"stage"`
	Status     SessionStatus `json:"status"`
	StartedAt  string        `json:"started_at"`
	FinishedAt *string       `json:"finished_at"`
	NextStage  *string       `json:"next_stage"`
	PID        int           `json:"pid"`
	Host       string        `json:"host"`
	RepoRoot   string        `json:"repo_root"`
}

// TaskName returns the task reference or "".
func (s Session) TaskName() string {
	if s.Task == nil {
		return ""
	}
	return *s.Task
}

// Transition moves the session to status to. Finished and Failed are final;
// repeating the current terminal status is allowed so finish is idempotent.
func (s *Session) Transition(to SessionStatus) error {
	if s.Status.Terminal() && s.Status != to {
		return terminalError(s.SessionID, s.Status, to)
	}
	s.Status = to
	return nil
}

var sessionCounter atomic.Uint64

// NewSessionID returns <unix-seconds>-<pid>-<counter>. The counter keeps two
// sessions started by one process within the same second distinct.
func NewSessionID() string {
	n := sessionCounter.Add(1) - 1
	return fmt.Sprintf("%d-%d-%d", time.Now().Unix(), os.Getpid(), n)
}

func terminalError(id string, from, to SessionStatus) error {
	return &errors.Error{
		Kind:    errors.KindInvalidState,
		Message: fmt.Sprintf("session %s is %s and cannot become %s", id, from, to),
		Err:     errors.ErrSessionTerminal,
	}
}
