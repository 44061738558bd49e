// Package orchestrator implements the metagent commands on top of the
// task, session, claim and issue stores. Each exported method corresponds
// to one CLI subcommand and writes its user-facing output to the writer
// given in Options; diagnostics go to the structured log.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/iskng/metagent/internal/claim"
	"github.com/iskng/metagent/internal/config"
	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/issue"
	"github.com/iskng/metagent/internal/logging"
	"github.com/iskng/metagent/internal/model"
	"github.com/iskng/metagent/internal/prompt"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
	"github.com/iskng/metagent/internal/supervisor"
)

// StageRunner runs one stage attempt. *supervisor.Supervisor is the
// production implementation.
type StageRunner interface {
	RunStage(ctx context.Context, req supervisor.StageRequest) (supervisor.Outcome, error)
}

// Options configures an Orchestrator.
type Options struct {
	Kind     stage.Kind
	RepoRoot string
	Config   *config.Config
	Choice   model.Choice
	// Logger overrides the log file under <agent root>/logs.
	Logger *logging.Logger
	Out    io.Writer
	Err    io.Writer
}

// Orchestrator drives tasks for one agent kind in one repository.
type Orchestrator struct {
	kind      stage.Kind
	repoRoot  string
	agentRoot string
	cfg       *config.Config
	choice    model.Choice

	tasks   *state.Store
	issues  *issue.Store
	leaser  claim.Leaser
	runner  StageRunner
	prompts *prompt.Loader

	logger    *logging.Logger
	ownLogger bool
	out       io.Writer
	errOut    io.Writer
}

// New opens the agent root under opts.RepoRoot. The agent must have been
// initialized with Init.
func New(opts Options) (*Orchestrator, error) {
	if opts.Kind == nil {
		return nil, fmt.Errorf("agent kind is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	agentRoot, err := state.AgentRoot(opts.RepoRoot, opts.Kind.Name())
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		kind:      opts.Kind,
		repoRoot:  opts.RepoRoot,
		agentRoot: agentRoot,
		cfg:       cfg,
		choice:    opts.Choice,
		tasks:     state.NewStore(agentRoot),
		logger:    opts.Logger,
		out:       opts.Out,
		errOut:    opts.Err,
	}
	if o.out == nil {
		o.out = os.Stdout
	}
	if o.errOut == nil {
		o.errOut = os.Stderr
	}
	if o.logger == nil {
		o.logger, err = openLogger(agentRoot, cfg.Logging)
		if err != nil {
			return nil, err
		}
		o.ownLogger = true
	}
	o.logger = o.logger.WithAgent(opts.Kind.Name())

	o.issues = issue.NewStore(agentRoot, o.logger)
	o.issues.SetWarningOutput(o.errOut)

	o.leaser, err = claim.Open(cfg.Claims.Backend, agentRoot, o.logger)
	if err != nil {
		o.closeLogger()
		return nil, err
	}

	o.prompts = prompt.NewLoader(opts.Kind, cfg.Prompts.ResolveDir(opts.Kind.Name()))

	sup := supervisor.New(o.tasks, opts.Kind.Name(), opts.RepoRoot, supervisor.Options{
		PollInterval:      cfg.Supervisor.PollInterval(),
		InterruptAttempts: cfg.Supervisor.InterruptAttempts,
		InterruptWait:     cfg.Supervisor.InterruptWait(),
		TerminateWait:     cfg.Supervisor.TerminateWait(),
		KillWait:          cfg.Supervisor.KillWait(),
		WatchSessions:     cfg.Supervisor.WatchSessions,
	}, o.logger)
	o.runner = sup

	return o, nil
}

func openLogger(agentRoot string, cfg config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	path := filepath.Join(agentRoot, state.LogsDir, logging.FileName)
	return logging.NewLogger(path, cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

// SetRunner replaces the stage runner.
func (o *Orchestrator) SetRunner(r StageRunner) { o.runner = r }

// AgentRoot returns .agents/<agent> inside the repository.
func (o *Orchestrator) AgentRoot() string { return o.agentRoot }

// Tasks returns the task and session store.
func (o *Orchestrator) Tasks() *state.Store { return o.tasks }

// Issues returns the issue store.
func (o *Orchestrator) Issues() *issue.Store { return o.issues }

// Close releases the claim backend and the log file.
func (o *Orchestrator) Close() error {
	err := o.leaser.Close()
	if cerr := o.closeLogger(); err == nil {
		err = cerr
	}
	return err
}

func (o *Orchestrator) closeLogger() error {
	if !o.ownLogger {
		return nil
	}
	return o.logger.Close()
}

func (o *Orchestrator) ttl() time.Duration {
	if ttl := o.cfg.Claims.TTL(); ttl > 0 {
		return ttl
	}
	return claim.DefaultTTL
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}

func (o *Orchestrator) println(args ...any) {
	fmt.Fprintln(o.out, args...)
}

// Init creates .agents/<agent>/ under repoRoot with its tasks directory and,
// for kinds that track issues, its issues directory.
func Init(repoRoot string, k stage.Kind, out io.Writer) error {
	agentDir := filepath.Join(repoRoot, state.AgentsDir, k.Name())
	dirs := []string{filepath.Join(agentDir, state.TasksDir)}
	if k.SupportsIssues() {
		dirs = append(dirs, filepath.Join(agentDir, state.IssuesDir))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	fmt.Fprintf(out, "Initialized %s agent in %s\n", k.Name(), repoRoot)
	return nil
}

// ensureIssues rejects issue commands for kinds without issue tracking.
func (o *Orchestrator) ensureIssues() error {
	if !o.kind.SupportsIssues() {
		return errors.Validation("Issue tracking is only supported for the code agent")
	}
	return nil
}

func (o *Orchestrator) requireTask(name string) error {
	if err := state.ValidateTaskName(name); err != nil {
		return err
	}
	if !o.tasks.TaskExists(name) {
		return errors.NotFoundf("task", "Task '%s' not found", name)
	}
	return nil
}
