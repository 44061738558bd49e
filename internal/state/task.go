package state

import (
	"fmt"
	"strings"
)

// TaskStatus is the scheduling status of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusRunning    TaskStatus = "running"
	StatusIncomplete TaskStatus = "incomplete"
	StatusFailed     TaskStatus = "failed"
	StatusCompleted  TaskStatus = "completed"
	StatusIssues     TaskStatus = "issues"
)

// ParseTaskStatus accepts any case.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch v := TaskStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case StatusPending, StatusRunning, StatusIncomplete, StatusFailed, StatusCompleted, StatusIssues:
		return v, nil
	}
	return "", fmt.Errorf("invalid task status: %s", s)
}

// Symbol is the single-glyph marker used in queue listings.
func (s TaskStatus) Symbol() string {
	switch s {
	case StatusPending:
		return "○"
	case StatusRunning:
		return "●"
	case StatusIncomplete:
		return "◐"
	case StatusFailed:
		return "✗"
	case StatusCompleted:
		return "✓"
	case StatusIssues:
		return "!"
	}
	return "?"
}

// Task is the persisted record at tasks/<name>/task.json.
type Task struct {
	Task        string     `json:"task"`
	Agent       string     `json:"agent"`
	Stage       string     `json:"stage"`
	Status      TaskStatus `json:"status"`
	Held        bool       `json:"held,omitempty"`
	QueueRank   *int64     `json:"queue_rank,omitempty"`
	AddedAt     string     `json:"added_at"`
	UpdatedAt   string     `json:"updated_at"`
	LastSession *string    `json:"last_session"`
	LastError   *string    `json:"last_error"`
	Description *string    `json:"description,omitempty"`
}

// Schedulable reports whether the status allows the task to be picked.
func (t Task) Schedulable() bool {
	switch t.Status {
	case StatusPending, StatusIncomplete, StatusIssues:
		return true
	}
	return false
}

// Active reports whether a stage attempt could still be addressing the
// task; finish uses it to infer the task for a stage.
func (t Task) Active() bool {
	return t.Status == StatusRunning || t.Schedulable()
}

// MarkRunning sets Running unless the task carries Issues, which must
// survive so the next prompt includes the issue context.
func (t *Task) MarkRunning(now string) {
	if t.Status != StatusIssues {
		t.Status = StatusRunning
	}
	t.UpdatedAt = now
}

// Ptr returns a pointer to v, for the optional record fields.
func Ptr[T any](v T) *T {
	return &v
}
