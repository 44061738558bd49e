// Package model selects which external agent CLI runs a stage and how it
// is invoked.
package model

import (
	"os"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
)

// Model is an external agent CLI.
type Model string

const (
	Claude Model = "claude"
	Codex  Model = "codex"
)

// Default is used when neither the flag, the environment nor the stage
// picks a model.
const Default = Claude

// Env names the environment variable holding an explicit model choice.
const Env = "METAGENT_MODEL"

// Parse accepts "claude" or "codex".
func Parse(s string) (Model, error) {
	switch Model(s) {
	case Claude, Codex:
		return Model(s), nil
	}
	return "", errors.Validation("Unknown model: %s", s)
}

// Command returns the executable and the arguments that precede the prompt.
// Both CLIs are run without interactive permission prompts.
func (m Model) Command() (string, []string) {
	switch m {
	case Codex:
		return "codex", []string{"--dangerously-bypass-approvals-and-sandbox"}
	default:
		return "claude", []string{"--dangerously-skip-permissions"}
	}
}

// Choice is the model requested by the user. Explicit is set when the
// model came from a flag or the environment; Force lets an explicit choice
// override the codex requirement for tasks carrying issues.
type Choice struct {
	Model    Model
	Explicit bool
	Force    bool
}

// NewChoice resolves the requested model from the flag value, then
// $METAGENT_MODEL, then Default.
func NewChoice(flag string, force bool) (Choice, error) {
	value := flag
	if value == "" {
		value = os.Getenv(Env)
	}
	if value == "" {
		return Choice{Model: Default, Force: force}, nil
	}
	m, err := Parse(value)
	if err != nil {
		return Choice{}, err
	}
	return Choice{Model: m, Explicit: true, Force: force}, nil
}

// Resolve picks the model for one stage attempt. Tasks carrying issues run
// on codex unless the user explicitly forced another model. Otherwise an
// explicit choice wins, then the kind's default for the stage, then the
// requested model.
func Resolve(c Choice, k stage.Kind, stg string, status state.TaskStatus) Model {
	if status == state.StatusIssues && !(c.Force && c.Explicit) {
		return Codex
	}
	if c.Explicit {
		return c.Model
	}
	if name, ok := k.DefaultModel(stg); ok {
		if m, err := Parse(name); err == nil {
			return m
		}
	}
	if c.Model == "" {
		return Default
	}
	return c.Model
}
