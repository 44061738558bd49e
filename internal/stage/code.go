package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Code is the software agent: spec, plan, build, review.
type Code struct{}

var codeStages = []string{"spec", "spec-review", "spec-review-issues", "planning", "build", "review", Completed}

var codeNext = map[string]string{
	"spec":               "planning",
	"spec-review":        "planning",
	"spec-review-issues": "planning",
	"planning":           "build",
	"build":              "review",
	"review":             Completed,
	Task:                 Completed,
}

var codeLabels = map[string]string{
	"spec":               "Spec",
	"spec-review":        "Spec Review",
	"spec-review-issues": "Spec Review Issues",
	"planning":           "Planning",
	"build":              "Build",
	"review":             "Review",
	Completed:            "Completed",
}

var codePrompts = map[string]string{
	"spec-review":        "SPEC_REVIEW_PROMPT.md",
	"spec-review-issues": "SPEC_REVIEW_ISSUES_PROMPT.md",
	"planning":           "PLANNING_PROMPT.md",
	"build":              "BUILD_PROMPT.md",
	"review":             "REVIEW_PROMPT.md",
}

func (Code) Name() string { return "code" }

func (Code) Stages() []string { return append([]string(nil), codeStages...) }

func (Code) InitialStage() string { return "spec" }

func (Code) Next(stage string) (string, bool) {
	next, ok := codeNext[stage]
	return next, ok
}

func (Code) HandoffStage() (string, bool) { return "build", true }

func (Code) QueueStages() []string {
	return []string{"spec-review-issues", "build", "review"}
}

func (Code) FinishStages() []string {
	return []string{"spec", "spec-review", "spec-review-issues", "planning", "build", "review", Task}
}

func (Code) Label(stage string) string {
	if label, ok := codeLabels[stage]; ok {
		return label
	}
	return stage
}

// DefaultModel runs every working stage on codex.
func (Code) DefaultModel(stage string) (string, bool) {
	if stage == Completed || !Contains(Code{}, stage) {
		return "", false
	}
	return "codex", true
}

func (Code) BuildStage() string { return "build" }

func (Code) IssueStage(issueType string) (string, bool) {
	if issueType == "spec" {
		return "spec-review-issues", true
	}
	return "build", true
}

func (Code) SupportsIssues() bool { return true }

func (Code) ReviewStage() (string, bool) { return "review", true }

func (Code) PromptFile(stage string, hasTask bool) (string, bool) {
	if stage == "spec" {
		if hasTask {
			return "SPEC_EXISTING_TASK_PROMPT.md", true
		}
		return "SPEC_PROMPT.md", true
	}
	name, ok := codePrompts[stage]
	return name, ok
}

func (Code) PlanFile() string { return "plan.md" }

// Scaffold writes empty spec sections (kept if present) and a fresh plan.
func (Code) Scaffold(dir, task string) error {
	specDir := filepath.Join(dir, "spec")
	if err := os.MkdirAll(specDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", specDir, err)
	}
	sections := []struct{ file, title string }{
		{"overview.md", "Overview"},
		{"types.md", "Types"},
		{"modules.md", "Modules"},
		{"errors.md", "Errors"},
	}
	for _, s := range sections {
		path := filepath.Join(specDir, s.file)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte("# "+s.title+"\n\n"), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	plan := fmt.Sprintf("# Implementation Plan - %s\n\n> Generated: %s\n> Status: PENDING_SPEC\n\n- [ ] (tasks will be added during planning phase)\n",
		task, time.Now().UTC().Format("2006-01-02"))
	return os.WriteFile(filepath.Join(dir, "plan.md"), []byte(plan), 0644)
}
