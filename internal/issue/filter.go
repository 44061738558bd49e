package issue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/iskng/metagent/internal/errors"
)

// StatusFilter selects open, resolved or all issues.
type StatusFilter string

const (
	FilterOpen     StatusFilter = "open"
	FilterResolved StatusFilter = "resolved"
	FilterAll      StatusFilter = "all"
)

// ParseStatusFilter accepts open, resolved and all in any case.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch v := StatusFilter(strings.ToLower(strings.TrimSpace(s))); v {
	case FilterOpen, FilterResolved, FilterAll:
		return v, nil
	}
	return "", fmt.Errorf("Invalid status filter: %s", s)
}

// Filter narrows an issue listing. Zero-valued fields match everything
// except Status, which defaults to open.
type Filter struct {
	Status     StatusFilter
	Task       string
	Unassigned bool
	Type       Type
	Priority   Priority
	Source     Source
	// File is a glob matched against the issue's file path, "/" separated.
	File string
}

// Validate rejects contradictory filters and malformed file patterns.
func (f Filter) Validate() error {
	if f.Task != "" && f.Unassigned {
		return errors.Validation("Use --task or --unassigned, not both")
	}
	if f.File != "" {
		if _, err := glob.Compile(f.File, '/'); err != nil {
			return errors.Validation("Invalid file pattern '%s': %v", f.File, err)
		}
	}
	return nil
}

// Apply returns the issues matching f, preserving order.
func (f Filter) Apply(issues []Issue) ([]Issue, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var pattern glob.Glob
	if f.File != "" {
		pattern = glob.MustCompile(f.File, '/')
	}
	status := f.Status
	if status == "" {
		status = FilterOpen
	}

	var out []Issue
	for _, i := range issues {
		if f.Unassigned {
			if i.Task != nil {
				continue
			}
		} else if f.Task != "" && i.TaskName() != f.Task {
			continue
		}
		if f.Type != "" && i.Type != f.Type {
			continue
		}
		if f.Priority != "" && i.Priority != f.Priority {
			continue
		}
		if f.Source != "" && i.Source != f.Source {
			continue
		}
		if pattern != nil && (i.File == nil || !pattern.Match(*i.File)) {
			continue
		}
		switch status {
		case FilterOpen:
			if i.Status != StatusOpen {
				continue
			}
		case FilterResolved:
			if i.Status != StatusResolved {
				continue
			}
		}
		out = append(out, i)
	}
	return out, nil
}

// Sort orders open before resolved, then by priority, creation time and id.
func Sort(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		x, y := issues[a], issues[b]
		if x.Status.weight() != y.Status.weight() {
			return x.Status.weight() < y.Status.weight()
		}
		if x.Priority.Weight() != y.Priority.Weight() {
			return x.Priority.Weight() < y.Priority.Weight()
		}
		if x.CreatedAt != y.CreatedAt {
			return x.CreatedAt < y.CreatedAt
		}
		return x.ID < y.ID
	})
}

// Counts tallies open issues by task.
type Counts struct {
	PerTask    map[string]int
	Unassigned int
}

// CountOpen counts open issues per assigned task and unassigned.
func CountOpen(issues []Issue) Counts {
	c := Counts{PerTask: map[string]int{}}
	for _, i := range issues {
		if !i.Open() {
			continue
		}
		if i.Task == nil {
			c.Unassigned++
		} else {
			c.PerTask[*i.Task]++
		}
	}
	return c
}

// HasOpen reports whether task has any open issue.
func HasOpen(issues []Issue, task string) bool {
	for _, i := range issues {
		if i.Open() && i.TaskName() == task {
			return true
		}
	}
	return false
}
