// Package queue decides which task runs next and maintains the explicit
// ordering of the build queue.
package queue

import (
	"math"
	"sort"

	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
)

func rank(t state.Task) int64 {
	if t.QueueRank == nil {
		return math.MaxInt64
	}
	return *t.QueueRank
}

// Order sorts tasks at stg in queue order, in place. The build stage is
// ordered by queue_rank (unranked last) then added_at; every other stage by
// added_at alone.
func Order(k stage.Kind, stg string, tasks []state.Task) {
	if stg == k.BuildStage() {
		sort.SliceStable(tasks, func(i, j int) bool {
			ri, rj := rank(tasks[i]), rank(tasks[j])
			if ri != rj {
				return ri < rj
			}
			return tasks[i].AddedAt < tasks[j].AddedAt
		})
		return
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].AddedAt < tasks[j].AddedAt
	})
}

// AtStage returns the tasks at stg, optionally including held ones, in
// queue order.
func AtStage(k stage.Kind, stg string, tasks []state.Task, includeHeld bool) []state.Task {
	var out []state.Task
	for _, t := range tasks {
		if t.Stage == stg && (includeHeld || !t.Held) {
			out = append(out, t)
		}
	}
	Order(k, stg, out)
	return out
}

// NextEligible picks the next task to run. Queue stages are scanned in
// priority order and the first stage with a non-held pending, incomplete
// or issues task wins. When none qualifies, a non-held task already at the
// terminal stage but still carrying Issues is returned with its stage
// rewritten to the build stage, so review findings filed after completion
// are still worked.
func NextEligible(k stage.Kind, tasks []state.Task) (state.Task, bool) {
	for _, stg := range k.QueueStages() {
		var candidates []state.Task
		for _, t := range tasks {
			if !t.Held && t.Stage == stg && t.Schedulable() {
				candidates = append(candidates, t)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		Order(k, stg, candidates)
		return candidates[0], true
	}

	var stranded []state.Task
	for _, t := range tasks {
		if !t.Held && t.Stage == stage.Completed && t.Status == state.StatusIssues {
			stranded = append(stranded, t)
		}
	}
	if len(stranded) == 0 {
		return state.Task{}, false
	}
	sort.SliceStable(stranded, func(i, j int) bool { return stranded[i].AddedAt < stranded[j].AddedAt })
	t := stranded[0]
	t.Stage = k.BuildStage()
	return t, true
}
