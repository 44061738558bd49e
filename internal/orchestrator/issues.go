package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/issue"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
	"github.com/iskng/metagent/internal/styles"
)

// AddIssueRequest holds the fields of a new issue. Empty Priority, Type and
// Source select P2, build and manual.
type AddIssueRequest struct {
	Title    string
	Task     string
	Priority string
	Type     string
	Source   string
	File     string
	// Stage overrides where the task is sent back to.
	Stage string
	Body  string
}

// AddIssue files an open issue. When it is assigned to a task the task is
// marked issues and, if it had completed or a stage is given, moved back.
func (o *Orchestrator) AddIssue(req AddIssueRequest) (issue.Issue, error) {
	if err := o.ensureIssues(); err != nil {
		return issue.Issue{}, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return issue.Issue{}, errors.Validation("Issue title cannot be empty")
	}

	priority := issue.P2
	if req.Priority != "" {
		p, err := issue.ParsePriority(req.Priority)
		if err != nil {
			return issue.Issue{}, err
		}
		priority = p
	}
	typ := issue.TypeBuild
	if req.Type != "" {
		t, err := issue.ParseType(req.Type)
		if err != nil {
			return issue.Issue{}, err
		}
		typ = t
	}
	source := issue.SourceManual
	if req.Source != "" {
		s, err := issue.ParseSource(req.Source)
		if err != nil {
			return issue.Issue{}, err
		}
		source = s
	}

	if req.Task != "" {
		if err := o.requireTask(req.Task); err != nil {
			return issue.Issue{}, err
		}
		if req.Stage != "" {
			if err := stage.ValidateIssueStage(o.kind, req.Stage); err != nil {
				return issue.Issue{}, err
			}
		}
	}

	i := issue.New(req.Title, issue.StatusOpen, priority, req.Task, typ, source, req.File, strings.TrimSpace(req.Body))
	if err := o.issues.Save(i); err != nil {
		return issue.Issue{}, err
	}
	o.logger.Info("issue created", "issue", i.ID, "task", req.Task, "priority", string(priority), "type", string(typ))

	if req.Task != "" {
		if err := o.returnTaskForIssue(req.Task, req.Stage, typ); err != nil {
			return i, err
		}
	}

	o.printf("Created issue %s\n", i.ID)
	return i, nil
}

// returnTaskForIssue marks task as carrying issues. An explicit stage wins;
// otherwise a completed task goes back to the kind's stage for the issue
// type.
func (o *Orchestrator) returnTaskForIssue(task, override string, typ issue.Type) error {
	fallback, hasFallback := o.kind.IssueStage(string(typ))
	_, err := o.tasks.UpdateTask(task, func(t *state.Task) error {
		switch {
		case override != "":
			t.Stage = override
		case t.Stage == stage.Completed && hasFallback:
			t.Stage = fallback
		}
		t.Status = state.StatusIssues
		t.UpdatedAt = state.NowISO()
		return nil
	})
	if err == nil {
		o.logger.WithTask(task).Info("task returned for issues")
	}
	return err
}

// ResolveIssue marks an issue resolved, appending the resolution text to
// its body, and refreshes the assigned task's status.
func (o *Orchestrator) ResolveIssue(id, resolution string) error {
	if err := o.ensureIssues(); err != nil {
		return err
	}
	i, err := o.issues.Update(id, func(i *issue.Issue) error {
		i.Status = issue.StatusResolved
		if resolution != "" {
			body := issue.AppendResolution(i.Body, resolution)
			i.Body = &body
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.logger.Info("issue resolved", "issue", id, "task", i.TaskName())

	if task := i.TaskName(); task != "" {
		if err := o.SyncTaskStatus(task); err != nil {
			return err
		}
	}
	o.printf("Resolved issue %s\n", id)
	return nil
}

// AssignIssue attaches an issue to task. Open issues send the task back as
// AddIssue does; resolved issues are only relabelled.
func (o *Orchestrator) AssignIssue(id, task, stg string) error {
	if err := o.ensureIssues(); err != nil {
		return err
	}
	if err := o.requireTask(task); err != nil {
		return err
	}
	if stg != "" {
		if err := stage.ValidateIssueStage(o.kind, stg); err != nil {
			return err
		}
	}
	var prev string
	i, err := o.issues.Update(id, func(i *issue.Issue) error {
		prev = i.TaskName()
		i.Task = state.Ptr(task)
		return nil
	})
	if err != nil {
		return err
	}
	o.logger.WithTask(task).Info("issue assigned", "issue", id, "previous_task", prev)

	if !i.Open() {
		o.printf("Assigned resolved issue %s to %s\n", id, task)
		return nil
	}
	if err := o.returnTaskForIssue(task, stg, i.Type); err != nil {
		return err
	}
	// The previous owner may have lost its last open issue.
	if prev != "" && prev != task && o.tasks.TaskExists(prev) {
		if err := o.SyncTaskStatus(prev); err != nil {
			return err
		}
	}
	o.printf("Assigned issue %s to %s\n", id, task)
	return nil
}

// ShowIssue prints the issue file as stored.
func (o *Orchestrator) ShowIssue(id string) error {
	if err := o.ensureIssues(); err != nil {
		return err
	}
	if !o.issues.Exists(id) {
		return errors.NotFoundf("issue", "Issue '%s' not found (run `metagent issues` to list IDs)", id)
	}
	data, err := os.ReadFile(o.issues.Path(id))
	if err != nil {
		return fmt.Errorf("failed to read issue %s: %w", id, err)
	}
	o.println(string(data))
	return nil
}

// ListIssues prints the issues matching f in priority order.
func (o *Orchestrator) ListIssues(f issue.Filter) error {
	if err := o.ensureIssues(); err != nil {
		return err
	}
	if f.Task != "" {
		if err := state.ValidateTaskName(f.Task); err != nil {
			return err
		}
	}
	if f.Status == "" {
		f.Status = issue.FilterOpen
	}
	all, err := o.issues.List()
	if err != nil {
		return err
	}
	issues, err := f.Apply(all)
	if err != nil {
		return err
	}
	issue.Sort(issues)

	if len(issues) == 0 {
		o.println(styles.Dim("No issues"))
		return nil
	}

	heading := "Issues"
	switch f.Status {
	case issue.FilterOpen:
		heading = "Open issues"
	case issue.FilterResolved:
		heading = "Resolved issues"
	}
	o.printf("%s:\n", heading)
	for n, i := range issues {
		task := i.TaskName()
		if task == "" {
			task = "unassigned"
		}
		o.printf("  id: %s\n", i.ID)
		o.printf("  [%s] %s: %s\n", i.Priority, task, i.Title)
		if f.Status == issue.FilterAll {
			o.printf("      status: %s\n", i.Status)
		}
		if n+1 < len(issues) {
			o.println()
		}
	}
	return nil
}

// SyncTaskStatus recomputes a task's status from its open issues: issues
// while any is open, completed at the terminal stage, and pending when the
// last issue of an unfinished task is resolved.
func (o *Orchestrator) SyncTaskStatus(task string) error {
	if !o.tasks.TaskExists(task) {
		return errors.NotFoundf("task", "Task '%s' not found", task)
	}
	open, err := o.hasOpenIssues(task)
	if err != nil {
		return err
	}
	_, err = o.tasks.UpdateTask(task, func(t *state.Task) error {
		switch {
		case open:
			t.Status = state.StatusIssues
		case t.Stage == stage.Completed:
			t.Status = state.StatusCompleted
		case t.Status == state.StatusIssues:
			t.Status = state.StatusPending
		}
		t.UpdatedAt = state.NowISO()
		return nil
	})
	return err
}

// hasOpenIssues reports whether any open issue is assigned to task. Kinds
// without issue tracking never have any.
func (o *Orchestrator) hasOpenIssues(task string) (bool, error) {
	if !o.kind.SupportsIssues() {
		return false, nil
	}
	issues, err := o.issues.List()
	if err != nil {
		return false, err
	}
	return issue.HasOpen(issues, task), nil
}
