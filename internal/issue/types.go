package issue

import (
	"fmt"
	"strings"
)

// Status is open or resolved.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// ParseStatus accepts any case.
func ParseStatus(s string) (Status, error) {
	switch v := Status(strings.ToLower(strings.TrimSpace(s))); v {
	case StatusOpen, StatusResolved:
		return v, nil
	}
	return "", fmt.Errorf("Invalid issue status: %s", strings.TrimSpace(s))
}

func (s Status) weight() int {
	if s == StatusOpen {
		return 0
	}
	return 1
}

// Priority ranges from P0 (most urgent) to P3.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

// ParsePriority accepts "P1", "p1" and "1".
func ParsePriority(s string) (Priority, error) {
	token := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "p")
	switch token {
	case "0", "1", "2", "3":
		return Priority("P" + token), nil
	}
	return "", fmt.Errorf("Invalid priority: %s", token)
}

// Weight orders priorities, lowest first.
func (p Priority) Weight() int {
	switch p {
	case P0:
		return 0
	case P1:
		return 1
	case P2:
		return 2
	default:
		return 3
	}
}

// Type classifies what an issue is about. Spec issues route a task back to
// spec review; every other type routes it to build.
type Type string

const (
	TypeSpec  Type = "spec"
	TypeBuild Type = "build"
	TypeBug   Type = "bug"
	TypeTest  Type = "test"
	TypePerf  Type = "perf"
	TypeOther Type = "other"
)

// ParseType accepts any case and "performance" for perf.
func ParseType(s string) (Type, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "spec", "build", "bug", "test", "perf", "other":
		return Type(v), nil
	case "performance":
		return TypePerf, nil
	default:
		return "", fmt.Errorf("Invalid issue type: %s", v)
	}
}

// Source records who filed an issue.
type Source string

const (
	SourceReview Source = "review"
	SourceDebug  Source = "debug"
	SourceSubmit Source = "submit"
	SourceManual Source = "manual"
)

// ParseSource accepts any case.
func ParseSource(s string) (Source, error) {
	switch v := Source(strings.ToLower(strings.TrimSpace(s))); v {
	case SourceReview, SourceDebug, SourceSubmit, SourceManual:
		return v, nil
	}
	return "", fmt.Errorf("Invalid issue source: %s", strings.TrimSpace(s))
}
