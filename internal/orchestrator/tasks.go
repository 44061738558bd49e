package orchestrator

import (
	"fmt"
	"os"
	"sort"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/issue"
	"github.com/iskng/metagent/internal/queue"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
	"github.com/iskng/metagent/internal/styles"
)

// completedShown bounds the completed section of the queue view.
const completedShown = 10

// CreateTask scaffolds a task directory and registers it at the kind's
// initial stage. For an existing task only the description is updated,
// when one is given, and the current record is reported.
func (o *Orchestrator) CreateTask(name string, hold bool, description *string) (state.Task, error) {
	if err := state.ValidateTaskName(name); err != nil {
		return state.Task{}, err
	}
	dir := o.tasks.TaskDir(name)

	if o.tasks.TaskExists(name) {
		if description != nil {
			if _, err := o.tasks.UpdateTask(name, func(t *state.Task) error {
				t.Description = description
				t.UpdatedAt = state.NowISO()
				return nil
			}); err != nil {
				return state.Task{}, err
			}
		}
		t, err := o.tasks.LoadTask(name)
		if err != nil {
			return state.Task{}, err
		}
		o.printf("Task '%s' already exists\n", name)
		o.printf("  Stage: %s\n", t.Stage)
		if t.Held {
			o.println("  Status: held (backlog)")
		}
		if t.Description != nil {
			o.printf("  Description: %s\n", *t.Description)
		} else {
			o.println("  Description: (none)")
		}
		history, err := o.tasks.History(name)
		if err != nil {
			return t, err
		}
		if history == "" {
			o.println("  History: (none yet)")
		} else {
			o.printf("  History: %s\n", history)
		}
		o.printf("  Directory: %s\n", dir)
		return t, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return state.Task{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := o.kind.Scaffold(dir, name); err != nil {
		return state.Task{}, err
	}
	t, err := o.tasks.CreateTask(o.kind.Name(), name, o.kind.InitialStage(), state.NowISO(), hold, description)
	if err != nil {
		return state.Task{}, err
	}
	o.logger.WithTask(name).Info("task created", "stage", t.Stage, "held", hold)

	o.printf("Created task: %s\n", name)
	o.printf("  Directory: %s\n", dir)
	o.printf("  Stage: %s\n", t.Stage)
	if hold {
		o.println("  Status: held (backlog)")
	}
	if description != nil {
		o.printf("  Description: %s\n", *description)
	}
	return t, nil
}

// Queue registers state for an existing task directory that has no record
// yet. With an empty name it prints the queue view instead.
func (o *Orchestrator) Queue(name string) error {
	if name == "" {
		return o.QueueView()
	}
	if err := state.ValidateTaskName(name); err != nil {
		return err
	}
	if o.tasks.TaskExists(name) {
		t, err := o.tasks.LoadTask(name)
		if err != nil {
			return err
		}
		o.printf("Task '%s' already exists\n", name)
		o.printf("  Stage: %s\n", t.Stage)
		if t.Held {
			o.println("  Status: held (backlog)")
		}
		return nil
	}
	if info, err := os.Stat(o.tasks.TaskDir(name)); err != nil || !info.IsDir() {
		return errors.NotFoundf("task", "Task '%s' not found. Create it with 'metagent task %s'", name, name)
	}
	if _, err := o.tasks.CreateTask(o.kind.Name(), name, o.kind.InitialStage(), state.NowISO(), false, nil); err != nil {
		return err
	}
	o.printf("Queued '%s' (stage: %s)\n", name, o.kind.InitialStage())
	return nil
}

// openCounts loads open issue counts for listings. A failure is reported
// as a warning and treated as no issues.
func (o *Orchestrator) openCounts() issue.Counts {
	if !o.kind.SupportsIssues() {
		return issue.Counts{PerTask: map[string]int{}}
	}
	issues, err := o.issues.List()
	if err != nil {
		fmt.Fprintf(o.errOut, "Warning: failed to load issues: %v\n", err)
		return issue.Counts{PerTask: map[string]int{}}
	}
	return issue.CountOpen(issues)
}

func (o *Orchestrator) taskLine(t state.Task, counts issue.Counts, dim bool) string {
	name := t.Task
	if dim {
		name = styles.Dim(name)
	}
	line := fmt.Sprintf("  %s %s", styles.Status(t.Status), name)
	if n := counts.PerTask[t.Task]; n > 0 {
		line += fmt.Sprintf(" [issues: %d]", n)
	}
	return line
}

// QueueView prints every task grouped by stage, then recently completed
// tasks, then the backlog of held tasks.
func (o *Orchestrator) QueueView() error {
	tasks, err := o.tasks.ListTasks()
	if err != nil {
		return err
	}
	unregistered, err := o.tasks.UnregisteredTaskDirs()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		o.println(styles.Dim("No tasks"))
		o.printUnregistered(unregistered)
		return nil
	}

	counts := o.openCounts()
	if counts.Unassigned > 0 {
		o.printf("Unassigned issues: %d (run 'metagent issues --unassigned')\n", counts.Unassigned)
	}

	o.println(styles.Bold.Render("Tasks:"))
	for _, stg := range o.kind.Stages() {
		if stg == stage.Completed {
			continue
		}
		atStage := queue.AtStage(o.kind, stg, tasks, false)
		if len(atStage) == 0 {
			continue
		}
		o.printf("%s:\n", o.kind.Label(stg))
		for _, t := range atStage {
			o.println(o.taskLine(t, counts, false))
		}
		o.println()
	}

	var completed []state.Task
	for _, t := range tasks {
		if !t.Held && t.Stage == stage.Completed {
			completed = append(completed, t)
		}
	}
	if len(completed) > 0 {
		sortByUpdatedDesc(completed)
		o.printf("%s:\n", styles.Dim(o.kind.Label(stage.Completed)))
		for i, t := range completed {
			if i == completedShown {
				break
			}
			o.println(o.taskLine(t, counts, true))
		}
		if len(completed) > completedShown {
			o.printf("  ... and %d more\n", len(completed)-completedShown)
		}
	}

	var backlog []state.Task
	for _, t := range tasks {
		if t.Held {
			backlog = append(backlog, t)
		}
	}
	if len(backlog) > 0 {
		sortByAdded(backlog)
		o.println("\nBacklog:")
		for _, t := range backlog {
			o.printf("%s (stage: %s)\n", o.taskLine(t, counts, false), o.kind.Label(t.Stage))
		}
	}
	o.printUnregistered(unregistered)
	return nil
}

// printUnregistered lists task directories created by hand that have no
// task.json yet.
func (o *Orchestrator) printUnregistered(names []string) {
	if len(names) == 0 {
		return
	}
	o.println("\nNot queued:")
	for _, name := range names {
		o.printf("  %s %s\n", name, styles.Dim(fmt.Sprintf("(run 'metagent queue %s')", name)))
	}
}

// Hold moves a task to the backlog. Running tasks cannot be held.
func (o *Orchestrator) Hold(name string) error {
	if err := o.requireTask(name); err != nil {
		return err
	}
	if _, err := o.tasks.UpdateTask(name, func(t *state.Task) error {
		if t.Status == state.StatusRunning {
			return errors.InvalidState("Task '%s' is running. Finish it before holding.", name)
		}
		t.Held = true
		t.UpdatedAt = state.NowISO()
		return nil
	}); err != nil {
		return err
	}
	o.logger.WithTask(name).Info("task held")
	o.printf("Held '%s'\n", name)
	return nil
}

// Activate returns a held task to the queue and refreshes its status from
// its open issues.
func (o *Orchestrator) Activate(name string) error {
	if err := o.requireTask(name); err != nil {
		return err
	}
	if _, err := o.tasks.UpdateTask(name, func(t *state.Task) error {
		t.Held = false
		t.UpdatedAt = state.NowISO()
		return nil
	}); err != nil {
		return err
	}
	if err := o.SyncTaskStatus(name); err != nil {
		return err
	}
	o.logger.WithTask(name).Info("task activated")
	o.printf("Activated '%s'\n", name)
	return nil
}

// Delete removes a task directory. Open issues assigned to the task block
// deletion unless force is set, in which case they are unassigned first.
// A missing task is reported, not an error.
func (o *Orchestrator) Delete(name string, force bool) error {
	if err := state.ValidateTaskName(name); err != nil {
		return err
	}
	if _, err := os.Stat(o.tasks.TaskDir(name)); err != nil {
		o.printf("Task '%s' not found\n", name)
		return nil
	}

	var open []issue.Issue
	if o.kind.SupportsIssues() {
		issues, err := o.issues.List()
		if err != nil {
			return err
		}
		for _, i := range issues {
			if i.Open() && i.TaskName() == name {
				open = append(open, i)
			}
		}
	}

	if len(open) > 0 && !force {
		return errors.InvalidState("Task '%s' has open issues (%d). Re-run with --force to delete and unassign them.", name, len(open))
	}
	for _, i := range open {
		if _, err := o.issues.Update(i.ID, func(is *issue.Issue) error {
			is.Task = nil
			return nil
		}); err != nil {
			return err
		}
	}

	if err := o.tasks.DeleteTask(name); err != nil {
		return err
	}
	o.logger.WithTask(name).Info("task deleted", "unassigned_issues", len(open))
	o.printf("Removed '%s'\n", name)
	return nil
}

// SetStage moves a task to stage. When status is empty it is derived:
// issues if the task has open issues, completed at the terminal stage,
// pending otherwise.
func (o *Orchestrator) SetStage(name, stg, status string) error {
	if err := state.ValidateTaskName(name); err != nil {
		return err
	}
	if err := stage.ValidateStage(o.kind, stg); err != nil {
		return err
	}
	if !o.tasks.TaskExists(name) {
		return errors.NotFoundf("task", "Task '%s' not found", name)
	}

	var resolved state.TaskStatus
	if status != "" {
		var err error
		if resolved, err = state.ParseTaskStatus(status); err != nil {
			return err
		}
	} else {
		open, err := o.hasOpenIssues(name)
		if err != nil {
			return err
		}
		switch {
		case open:
			resolved = state.StatusIssues
		case stg == stage.Completed:
			resolved = state.StatusCompleted
		default:
			resolved = state.StatusPending
		}
	}

	if _, err := o.tasks.UpdateTask(name, func(t *state.Task) error {
		t.Stage = stg
		t.Status = resolved
		t.UpdatedAt = state.NowISO()
		return nil
	}); err != nil {
		return err
	}
	o.logger.WithTask(name).Info("stage set", "stage", stg, "status", string(resolved))
	o.printf("Set '%s' to stage '%s' (status: %s)\n", name, stg, resolved)
	return nil
}

// Reorder moves a build-stage task to a 1-based position in the build
// queue and prints the resulting order.
func (o *Orchestrator) Reorder(name string, position int) error {
	if err := state.ValidateTaskName(name); err != nil {
		return err
	}
	pos, err := queue.Reorder(o.tasks, o.kind, name, position)
	if err != nil {
		return err
	}
	build := o.kind.BuildStage()
	o.printf("Reordered '%s' to position %d in %s queue.\n", name, pos, build)

	tasks, err := o.tasks.ListTasks()
	if err != nil {
		return err
	}
	counts := o.openCounts()
	o.printf("%s:\n", o.kind.Label(build))
	for _, t := range queue.AtStage(o.kind, build, tasks, false) {
		o.println(o.taskLine(t, counts, false))
	}
	return nil
}

// History prints the collapsed stage history of a task.
func (o *Orchestrator) History(name string) error {
	if err := o.requireTask(name); err != nil {
		return err
	}
	history, err := o.tasks.History(name)
	if err != nil {
		return err
	}
	if history == "" {
		o.printf("%s: (none yet)\n", name)
		return nil
	}
	o.printf("%s: %s\n", name, history)
	return nil
}

func sortByAdded(tasks []state.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].AddedAt < tasks[j].AddedAt })
}

func sortByUpdatedDesc(tasks []state.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].UpdatedAt > tasks[j].UpdatedAt })
}
