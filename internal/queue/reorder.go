package queue

import (
	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
)

// Reorder moves task to the 1-based position in the build queue, clamped to
// the end, and renumbers the queue 1..n. Only ranks that change are
// written. It returns the position the task ended up at.
func Reorder(store *state.Store, k stage.Kind, task string, position int) (int, error) {
	if err := state.ValidateTaskName(task); err != nil {
		return 0, err
	}
	if position < 1 {
		return 0, errors.InvalidState("Position must be 1 or greater")
	}
	target, err := store.LoadTask(task)
	if err != nil {
		return 0, err
	}
	build := k.BuildStage()
	if target.Stage != build {
		return 0, errors.InvalidState("Reorder is only supported for %s stage tasks", build)
	}
	if target.Held {
		return 0, errors.InvalidState("Task '%s' is held. Activate it before reordering.", task)
	}

	all, err := store.ListTasks()
	if err != nil {
		return 0, err
	}
	queue := AtStage(k, build, all, false)
	if len(queue) == 0 {
		return 0, errors.InvalidState("No %s tasks to reorder", build)
	}

	current := -1
	for i, t := range queue {
		if t.Task == task {
			current = i
			break
		}
	}
	if current < 0 {
		return 0, errors.InvalidState("Task '%s' is not in the %s queue", task, build)
	}

	ordered := make([]state.Task, 0, len(queue))
	ordered = append(ordered, queue[:current]...)
	ordered = append(ordered, queue[current+1:]...)
	insert := position - 1
	if insert > len(ordered) {
		insert = len(ordered)
	}
	ordered = append(ordered[:insert], append([]state.Task{target}, ordered[insert:]...)...)

	for i, t := range ordered {
		newRank := int64(i + 1)
		if t.QueueRank != nil && *t.QueueRank == newRank {
			continue
		}
		if _, err := store.UpdateTask(t.Task, func(rec *state.Task) error {
			rec.QueueRank = state.Ptr(newRank)
			rec.UpdatedAt = state.NowISO()
			return nil
		}); err != nil {
			return 0, err
		}
	}
	return insert + 1, nil
}
