// Package stage defines the per-agent stage graphs. A Kind answers every
// question the rest of metagent asks about stages, so no other package
// branches on the agent name.
package stage

import (
	"slices"

	"github.com/iskng/metagent/internal/errors"
)

// Completed is the terminal stage shared by every kind.
const Completed = "completed"

// Task is the pseudo-stage accepted by finish for a single ad-hoc session.
const Task = "task"

// Kind is the strategy interface implemented once per agent kind.
type Kind interface {
	// Name is the agent directory name under .agents/.
	Name() string
	// Stages lists every real stage in pipeline order, terminal last.
	Stages() []string
	InitialStage() string
	// Next returns the default successor of stage.
	Next(stage string) (string, bool)
	// HandoffStage is where interactive start hands the task over to the
	// queue. ok is false when the kind has none.
	HandoffStage() (string, bool)
	// QueueStages lists the stages run-queue processes, in priority order.
	QueueStages() []string
	// FinishStages lists the stages an agent may name when calling finish.
	FinishStages() []string
	Label(stage string) string
	// DefaultModel is the model a stage runs with when the user did not
	// choose one explicitly. ok is false to fall back to the user's default.
	DefaultModel(stage string) (string, bool)
	// BuildStage is where issue-bearing tasks are rescheduled to.
	BuildStage() string
	// IssueStage is the stage a task returns to when an issue of the given
	// type is filed against it. ok is false when the kind has no issue flow.
	IssueStage(issueType string) (string, bool)
	SupportsIssues() bool
	// ReviewStage is the stage whose finish may redirect the task.
	ReviewStage() (string, bool)
	// PromptFile names the prompt template for stage.
	PromptFile(stage string, hasTask bool) (string, bool)
	// PlanFile is the checklist file inside a task directory.
	PlanFile() string
	// Scaffold creates the kind's initial files in a new task directory.
	Scaffold(dir, task string) error
}

// Lookup returns the Kind registered under name.
func Lookup(name string) (Kind, error) {
	switch name {
	case "code":
		return Code{}, nil
	case "writer":
		return Writer{}, nil
	default:
		return nil, errors.Validation("Unknown agent: %s", name)
	}
}

// Names lists the registered kind names.
func Names() []string {
	return []string{"code", "writer"}
}

// Contains reports whether stage is one of k's real stages.
func Contains(k Kind, stage string) bool {
	return slices.Contains(k.Stages(), stage)
}

// IsQueueStage reports whether run-queue processes stage.
func IsQueueStage(k Kind, stage string) bool {
	return slices.Contains(k.QueueStages(), stage)
}

// ValidateStage rejects names outside k's stage list.
func ValidateStage(k Kind, stage string) error {
	if !Contains(k, stage) {
		return errors.UnknownStage(stage)
	}
	return nil
}

// ValidateFinishStage rejects stages finish does not accept.
func ValidateFinishStage(k Kind, stage string) error {
	if !slices.Contains(k.FinishStages(), stage) {
		return errors.UnknownStage(stage)
	}
	return nil
}

// ValidateIssueStage rejects unknown stages and the terminal stage as an
// issue destination.
func ValidateIssueStage(k Kind, stage string) error {
	if err := ValidateStage(k, stage); err != nil {
		return err
	}
	if stage == Completed {
		return errors.Validation("Issues cannot target the completed stage")
	}
	return nil
}
