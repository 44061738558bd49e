package orchestrator

import (
	"context"
	"fmt"

	"github.com/iskng/metagent/internal/claim"
	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/model"
	"github.com/iskng/metagent/internal/prompt"
	"github.com/iskng/metagent/internal/queue"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
	"github.com/iskng/metagent/internal/supervisor"
)

// runStage renders the prompt for stg and hands it to the stage runner.
// task may be empty for the interactive first stage of start.
func (o *Orchestrator) runStage(ctx context.Context, task, stg, focus string, mode prompt.FinishMode) (supervisor.Outcome, error) {
	var status state.TaskStatus
	if task != "" {
		if t, err := o.tasks.LoadTask(task); err == nil {
			status = t.Status
		}
	}
	open := false
	if task != "" {
		var err error
		if open, err = o.hasOpenIssues(task); err != nil {
			fmt.Fprintf(o.errOut, "Warning: failed to load issues: %v\n", err)
			open = false
		}
	}
	effective := status
	if open {
		effective = state.StatusIssues
	}
	m := model.Resolve(o.choice, o.kind, stg, effective)

	tmpl, err := o.prompts.Load(stg, task != "")
	if err != nil {
		return supervisor.Outcome{}, err
	}

	review, hasReview := o.kind.ReviewStage()
	isReview := hasReview && stg == review

	render := func(sessionID string) (string, error) {
		pc := prompt.Context{
			Repo:        o.repoRoot,
			Task:        task,
			Session:     sessionID,
			Parallelism: prompt.ParallelismText(m),
			Focus:       focus,
		}
		if !isReview {
			pc.IssuesHeader, pc.IssuesMode = prompt.IssuesText(o.kind, effective == state.StatusIssues, task)
		} else {
			pc.ReviewFinishInstructions = prompt.ReviewFinishInstructions(mode, o.kind.Name(), o.repoRoot, task, sessionID)
		}
		return prompt.Render(tmpl, pc), nil
	}

	command, args := m.Command()
	o.logger.WithTask(task).Info("running stage", "stage", stg, "model", string(m))
	return o.runner.RunStage(ctx, supervisor.StageRequest{
		Task:    task,
		Stage:   stg,
		Command: command,
		Args:    args,
		Prompt:  render,
	})
}

// acquire claims task. A claim held by another live process is reported
// as ok=false with a nil error.
func (o *Orchestrator) acquire(ctx context.Context, task string) (claim.Lease, bool, error) {
	lease, err := o.leaser.Acquire(ctx, task, o.ttl())
	if err != nil {
		if errors.Is(err, claim.ErrClaimed) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return lease, true, nil
}

func (o *Orchestrator) release(lease claim.Lease) {
	if lease == nil {
		return
	}
	if err := lease.Release(); err != nil {
		o.logger.WithTask(lease.Task()).Warn("failed to release claim", "error", err.Error())
	}
}

// reconcile demotes Running tasks whose orchestrator has gone away.
func (o *Orchestrator) reconcile() error {
	demoted, err := o.tasks.Reconcile(stage.Completed, o.leaser.IsActive)
	for _, name := range demoted {
		o.logger.WithTask(name).Info("stale running task marked incomplete")
	}
	return err
}

func (o *Orchestrator) setStatus(task string, status state.TaskStatus) error {
	_, err := o.tasks.UpdateTask(task, func(t *state.Task) error {
		t.Status = status
		t.UpdatedAt = state.NowISO()
		return nil
	})
	return err
}

// activateHeld clears the held flag when set and says so.
func (o *Orchestrator) activateHeld(t state.Task) error {
	if !t.Held {
		return nil
	}
	if _, err := o.tasks.UpdateTask(t.Task, func(t *state.Task) error {
		t.Held = false
		t.UpdatedAt = state.NowISO()
		return nil
	}); err != nil {
		return err
	}
	o.printf("Activating held task '%s'\n", t.Task)
	return nil
}

func (o *Orchestrator) markRunning(task string) error {
	_, err := o.tasks.UpdateTask(task, func(t *state.Task) error {
		t.MarkRunning(state.NowISO())
		return nil
	})
	return err
}

// Run drives one task through its stages until it completes, the agent
// exits without finishing, or metagent is interrupted. Both of the latter
// leave the task incomplete.
func (o *Orchestrator) Run(ctx context.Context, name string) error {
	if err := state.ValidateTaskName(name); err != nil {
		return err
	}
	if !o.tasks.TaskExists(name) {
		return errors.NotFoundf("task", "Task '%s' not found. Run 'metagent queue %s' to add it first.", name, name)
	}
	if err := o.reconcile(); err != nil {
		return err
	}
	lease, ok, err := o.acquire(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.InvalidState("Task '%s' is already claimed.", name)
	}
	defer o.release(lease)

	for {
		t, err := o.tasks.LoadTask(name)
		if err != nil {
			return err
		}
		if t.Stage == stage.Completed {
			o.printf("Task '%s' completed.\n", name)
			return nil
		}
		if err := o.activateHeld(t); err != nil {
			return err
		}
		if err := o.markRunning(name); err != nil {
			return err
		}

		outcome, err := o.runStage(ctx, name, t.Stage, "", prompt.FinishQueue)
		if err != nil {
			return err
		}
		switch outcome.Kind {
		case supervisor.Finished:
			continue
		case supervisor.Interrupted:
			return o.setStatus(name, state.StatusIncomplete)
		default:
			if err := o.setStatus(name, state.StatusIncomplete); err != nil {
				return err
			}
			o.printf("Session ended. Run 'metagent run %s' to continue.\n", name)
			return nil
		}
	}
}

// RunNext runs a single stage: of the named task, or of the next eligible
// task in the queue. An agent exiting without finishing fails the task.
func (o *Orchestrator) RunNext(ctx context.Context, name string) error {
	tasks, err := o.tasks.ListTasks()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		o.println("No tasks")
		return nil
	}
	if err := o.reconcile(); err != nil {
		return err
	}

	var t state.Task
	if name != "" {
		if err := o.requireTask(name); err != nil {
			return err
		}
		if t, err = o.tasks.LoadTask(name); err != nil {
			return err
		}
		if t.Stage == stage.Completed {
			o.printf("Task '%s' completed.\n", name)
			return nil
		}
		if t.Status == state.StatusRunning {
			return errors.InvalidState("Task '%s' is currently running", name)
		}
	} else {
		if tasks, err = o.tasks.ListTasks(); err != nil {
			return err
		}
		next, ok := queue.NextEligible(o.kind, tasks)
		if !ok {
			o.println("No eligible tasks.")
			return nil
		}
		t = next
	}

	lease, ok, err := o.acquire(ctx, t.Task)
	if err != nil {
		return err
	}
	if !ok {
		o.printf("Task '%s' is already claimed.\n", t.Task)
		return nil
	}
	defer o.release(lease)

	if err := o.activateHeld(t); err != nil {
		return err
	}
	if err := o.prepare(t); err != nil {
		return err
	}

	outcome, err := o.runStage(ctx, t.Task, t.Stage, "", prompt.FinishQueue)
	if err != nil {
		return err
	}
	switch outcome.Kind {
	case supervisor.Interrupted:
		return o.setStatus(t.Task, state.StatusIncomplete)
	case supervisor.NoFinish:
		return o.setStatus(t.Task, state.StatusFailed)
	}
	return nil
}

// prepare marks t running and persists a stage chosen by the scheduler that
// differs from the record, which happens when a completed task with open
// issues is picked up again at the build stage.
func (o *Orchestrator) prepare(t state.Task) error {
	_, err := o.tasks.UpdateTask(t.Task, func(rec *state.Task) error {
		if rec.Stage != t.Stage {
			rec.Stage = t.Stage
		}
		rec.MarkRunning(state.NowISO())
		return nil
	})
	return err
}

// RunQueue keeps running queue-stage tasks until none is eligible. The
// current task keeps its claim across stages. A task bounced from review
// back to build loopLimit times in a row is moved to the backlog.
func (o *Orchestrator) RunQueue(ctx context.Context, loopLimit int) error {
	tasks, err := o.tasks.ListTasks()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		o.println("No tasks")
		return nil
	}
	if err := o.reconcile(); err != nil {
		return err
	}

	review, _ := o.kind.ReviewStage()
	guard := queue.NewLoopGuard(loopLimit, review, o.kind.BuildStage())

	var current string
	var lease claim.Lease
	drop := func() {
		o.release(lease)
		lease = nil
		current = ""
	}
	defer drop()

	// Tasks claimed by another process are skipped for the rest of the run.
	skipped := map[string]bool{}

	for {
		if current != "" {
			t, err := o.tasks.LoadTask(current)
			if errors.Is(err, errors.ErrTaskNotFound) {
				drop()
				continue
			}
			if err != nil {
				return err
			}
			if t.Held || t.Stage == stage.Completed {
				drop()
				continue
			}
			if !stage.IsQueueStage(o.kind, t.Stage) {
				o.printf("Task '%s' moved to stage '%s' (not handled by run-queue).\n", t.Task, t.Stage)
				return nil
			}
			if err := o.markRunning(current); err != nil {
				return err
			}

			outcome, err := o.runStage(ctx, current, t.Stage, "", prompt.FinishQueue)
			if err != nil {
				return err
			}
			switch outcome.Kind {
			case supervisor.Interrupted:
				return o.setStatus(current, state.StatusIncomplete)
			case supervisor.NoFinish:
				return o.setStatus(current, state.StatusFailed)
			}

			after, err := o.tasks.LoadTask(current)
			if errors.Is(err, errors.ErrTaskNotFound) {
				drop()
				continue
			}
			if err != nil {
				return err
			}
			if guard.Observe(current, t.Stage, after.Stage) {
				if _, err := o.tasks.UpdateTask(current, func(t *state.Task) error {
					t.Held = true
					t.UpdatedAt = state.NowISO()
					return nil
				}); err != nil {
					return err
				}
				o.logger.WithTask(current).Warn("loop limit reached", "limit", guard.EffectiveLimit())
				o.printf("Task '%s' exceeded review/build loop limit (%d); moving to backlog.\n", current, guard.EffectiveLimit())
				drop()
			}
			continue
		}

		all, err := o.tasks.ListTasks()
		if err != nil {
			return err
		}
		var candidates []state.Task
		for _, t := range all {
			if !skipped[t.Task] {
				candidates = append(candidates, t)
			}
		}
		next, ok := queue.NextEligible(o.kind, candidates)
		if !ok {
			o.println("Queue processing complete.")
			return nil
		}

		l, ok, err := o.acquire(ctx, next.Task)
		if err != nil {
			return err
		}
		if !ok {
			o.logger.WithTask(next.Task).Info("skipping task claimed elsewhere")
			skipped[next.Task] = true
			continue
		}
		if err := o.prepare(next); err != nil {
			o.release(l)
			return err
		}
		lease = l
		current = next.Task
		guard.Reset()
	}
}

// Start runs the interactive pipeline from the kind's initial stage. The
// first stage usually creates the task; its name is taken from the
// finished session. Start stops when the task reaches the hand-off stage
// or completes.
func (o *Orchestrator) Start(ctx context.Context) error {
	var task string
	var lease claim.Lease
	defer func() { o.release(lease) }()

	stg := o.kind.InitialStage()
	handoff, hasHandoff := o.kind.HandoffStage()

	for {
		if task != "" && o.tasks.TaskExists(task) {
			if err := o.markRunning(task); err != nil {
				return err
			}
		}

		outcome, err := o.runStage(ctx, task, stg, "", prompt.FinishQueue)
		if err != nil {
			return err
		}

		switch outcome.Kind {
		case supervisor.Finished:
			if task == "" {
				task = outcome.Session.TaskName()
				if task != "" {
					l, ok, err := o.acquire(ctx, task)
					if err != nil {
						return err
					}
					if !ok {
						return errors.InvalidState("Task '%s' is already claimed.", task)
					}
					lease = l
				}
			}
			next := ""
			if outcome.Session.NextStage != nil {
				next = *outcome.Session.NextStage
			} else if n, ok := o.kind.Next(stg); ok {
				next = n
			}
			if next == "" {
				return errors.InvalidState("No next stage provided.")
			}
			if hasHandoff && next == handoff {
				if task != "" {
					o.printf("Task '%s' is ready.\n", task)
					o.printf("Run 'metagent run %s' or 'metagent run-queue' to start.\n", task)
				}
				return nil
			}
			if next == stage.Completed {
				o.println("Task completed.")
				return nil
			}
			stg = next

		case supervisor.Interrupted:
			if task != "" && o.tasks.TaskExists(task) {
				return o.setStatus(task, state.StatusIncomplete)
			}
			return nil

		default:
			if task == "" {
				return errors.InvalidState("Interview ended without creating a task")
			}
			if o.tasks.TaskExists(task) {
				if err := o.setStatus(task, state.StatusFailed); err != nil {
					return err
				}
			}
			return errors.InvalidState("Task '%s' exited without completing stage %s", task, stg)
		}
	}
}

// Review runs a manual review of task with an optional focus area. The
// review prompt tells the agent not to finish, so the task's stage is left
// alone.
func (o *Orchestrator) Review(ctx context.Context, name, focus string) error {
	review, ok := o.kind.ReviewStage()
	if !ok {
		return errors.Validation("Review is not supported for the %s agent", o.kind.Name())
	}
	return o.runOnce(ctx, name, review, prompt.FocusSection(focus), prompt.FinishManual)
}

// SpecReview runs the spec review stage of task once.
func (o *Orchestrator) SpecReview(ctx context.Context, name string) error {
	const specReview = "spec-review"
	if !stage.Contains(o.kind, specReview) {
		return errors.UnknownStage(specReview)
	}
	return o.runOnce(ctx, name, specReview, "", prompt.FinishQueue)
}

func (o *Orchestrator) runOnce(ctx context.Context, name, stg, focus string, mode prompt.FinishMode) error {
	if err := o.requireTask(name); err != nil {
		return err
	}
	lease, ok, err := o.acquire(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.InvalidState("Task '%s' is already claimed.", name)
	}
	defer o.release(lease)

	_, err = o.runStage(ctx, name, stg, focus, mode)
	return err
}
