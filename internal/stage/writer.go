package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Writer is the long-form writing agent: init, plan, write, edit.
type Writer struct{}

var writerNext = map[string]string{
	"init":  "plan",
	"plan":  "write",
	"write": "edit",
	"edit":  Completed,
}

var writerPrompts = map[string]string{
	"init":  "INIT_PROMPT.md",
	"plan":  "PLANNING_PROMPT.md",
	"write": "PROMPT.md",
	"edit":  "EDITOR_PROMPT.md",
}

func (Writer) Name() string { return "writer" }

func (Writer) Stages() []string {
	return []string{"init", "plan", "write", "edit", Completed}
}

func (Writer) InitialStage() string { return "init" }

func (Writer) Next(stage string) (string, bool) {
	next, ok := writerNext[stage]
	return next, ok
}

func (Writer) HandoffStage() (string, bool) { return "", false }

func (Writer) QueueStages() []string { return []string{"write", "edit"} }

func (Writer) FinishStages() []string { return []string{"init", "plan", "write", "edit"} }

func (Writer) Label(stage string) string {
	switch stage {
	case "init":
		return "Init"
	case "plan":
		return "Plan"
	case "write":
		return "Write"
	case "edit":
		return "Edit"
	case Completed:
		return "Completed"
	}
	return stage
}

func (Writer) DefaultModel(string) (string, bool) { return "", false }

func (Writer) BuildStage() string { return "write" }

func (Writer) IssueStage(string) (string, bool) { return "", false }

func (Writer) SupportsIssues() bool { return false }

func (Writer) ReviewStage() (string, bool) { return "", false }

func (Writer) PromptFile(stage string, _ bool) (string, bool) {
	name, ok := writerPrompts[stage]
	return name, ok
}

func (Writer) PlanFile() string { return "editorial_plan.md" }

func (Writer) Scaffold(dir, task string) error {
	for _, sub := range []string{"content", "outline", "style", "research"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}
	plan := fmt.Sprintf(`# Editorial Plan - %s

> Generated: %s
> Status: Awaiting project setup

## Current Task

Run /writer-init to set up the project.

## Section Status

| Section | Status | Progress | Notes |
|---------|--------|----------|-------|
| (sections added after init) | - | - | - |

## Issues & Blockers

(none yet)
`, task, time.Now().UTC().Format("2006-01-02"))
	return os.WriteFile(filepath.Join(dir, "editorial_plan.md"), []byte(plan), 0644)
}
