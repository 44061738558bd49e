package orchestrator

import (
	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
)

// FinishRequest is what an agent reports through metagent finish. Stage
// defaults to the "task" pseudo-stage.
type FinishRequest struct {
	Stage     string
	Next      string
	SessionID string
	Task      string
}

// Finish marks the calling session finished and advances its task. The
// next stage is the explicit one, completed for the task pseudo-stage, or
// the kind's successor. A task with open issues is never completed; it is
// sent to the build stage instead. It returns the stage the task moved to.
func (o *Orchestrator) Finish(req FinishRequest) (string, error) {
	stg := req.Stage
	if stg == "" {
		stg = stage.Task
	}
	if err := stage.ValidateFinishStage(o.kind, stg); err != nil {
		return "", err
	}
	if req.Next != "" && !stage.Contains(o.kind, req.Next) {
		return "", errors.Validation("Unknown next stage: %s", req.Next)
	}

	sessionID, err := o.tasks.ResolveSessionID(req.SessionID)
	if err != nil {
		return "", err
	}
	sess, err := o.tasks.LoadSession(sessionID)
	if err != nil {
		return "", err
	}

	task := req.Task
	if task == "" {
		task = sess.TaskName()
	}
	if stg != stage.Task && task == "" {
		task, err = o.tasks.FindUniqueTask(stg)
		if err != nil {
			return "", err
		}
		if task == "" {
			return "", errors.InvalidState("METAGENT_TASK not set and no unique task found for stage '%s'", stg)
		}
	}

	next := req.Next
	if next == "" {
		if stg == stage.Task {
			next = stage.Completed
		} else {
			n, ok := o.kind.Next(stg)
			if !ok {
				return "", errors.InvalidState("No next stage for %s", stg)
			}
			next = n
		}
	}

	if _, err := o.tasks.UpdateSession(sessionID, func(s *state.Session) error {
		if err := s.Transition(state.SessionFinished); err != nil {
			return err
		}
		s.FinishedAt = state.Ptr(state.NowISO())
		s.NextStage = state.Ptr(next)
		if task != "" {
			s.Task = state.Ptr(task)
		}
		return nil
	}); err != nil {
		return "", err
	}

	log := o.logger.WithSession(sessionID).WithStage(stg)
	if task == "" {
		log.Info("session finished", "next", next)
		o.printf("Advanced stage to %s\n", next)
		return next, nil
	}

	open, err := o.hasOpenIssues(task)
	if err != nil {
		return "", err
	}
	if open && next == stage.Completed {
		next = o.kind.BuildStage()
	}

	if !o.tasks.TaskExists(task) {
		return "", errors.NotFoundf("task", "Task '%s' not found", task)
	}
	if _, err := o.tasks.UpdateTask(task, func(t *state.Task) error {
		t.Stage = next
		t.UpdatedAt = state.NowISO()
		t.LastSession = state.Ptr(sessionID)
		t.Status = o.nextStatus(stg, req.Next != "", next, open)
		return nil
	}); err != nil {
		return "", err
	}

	log.WithTask(task).Info("session finished", "next", next, "open_issues", open)
	o.printf("Advanced stage to %s\n", next)
	return next, nil
}

// nextStatus is the task status after finishing stg. Open issues always
// win. A review that explicitly redirects the task marks it issues, except
// when it goes back to the spec issue stage, which starts pending.
func (o *Orchestrator) nextStatus(stg string, explicitNext bool, next string, open bool) state.TaskStatus {
	if open {
		return state.StatusIssues
	}
	if next == stage.Completed {
		return state.StatusCompleted
	}
	if review, ok := o.kind.ReviewStage(); ok && stg == review && explicitNext {
		if specIssues, ok := o.kind.IssueStage("spec"); ok && next == specIssues {
			return state.StatusPending
		}
		return state.StatusIssues
	}
	return state.StatusPending
}
