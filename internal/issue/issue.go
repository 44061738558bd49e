// Package issue tracks review findings as markdown files with a frontmatter
// header under <agent root>/issues/<id>.md. Issues may be assigned to a
// task; open issues on a task keep it out of the completed state.
package issue

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iskng/metagent/internal/state"
)

// Issue is one tracked finding.
type Issue struct {
	ID        string
	Title     string
	Status    Status
	Priority  Priority
	Task      *string
	Type      Type
	Source    Source
	CreatedAt string
	UpdatedAt string
	File      *string
	Body      *string
}

// TaskName returns the assigned task or "".
func (i Issue) TaskName() string {
	if i.Task == nil {
		return ""
	}
	return *i.Task
}

// Open reports whether the issue is still open.
func (i Issue) Open() bool { return i.Status == StatusOpen }

var idCounter atomic.Uint64

// NewID returns <unix-seconds>-<pid>-<counter>.
func NewID() string {
	n := idCounter.Add(1) - 1
	return fmt.Sprintf("%d-%d-%d", time.Now().Unix(), os.Getpid(), n)
}

// New builds an issue with a fresh id and both timestamps set to now. Empty
// task, file and body are treated as unset.
func New(title string, status Status, priority Priority, task string, typ Type, source Source, file, body string) Issue {
	now := state.NowISO()
	return Issue{
		ID:        NewID(),
		Title:     strings.TrimSpace(title),
		Status:    status,
		Priority:  priority,
		Task:      optional(task),
		Type:      typ,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
		File:      optional(file),
		Body:      optional(body),
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	return &s
}

// AppendResolution appends a "## Resolution" section to body. Blank text
// leaves body unchanged.
func AppendResolution(body *string, text string) string {
	result := ""
	if body != nil {
		result = *body
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return result
	}
	if result != "" {
		result += "\n\n"
	}
	result += "## Resolution\n" + text
	return strings.TrimSpace(result)
}
