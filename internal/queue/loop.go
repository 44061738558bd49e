package queue

// DefaultLoopLimit bounds review→build round trips when no limit is set.
const DefaultLoopLimit = 100

// LoopGuard counts how often the task currently being driven is sent back
// from review to build. Once the count reaches the limit the task should be
// moved to the backlog so the queue can make progress.
type LoopGuard struct {
	Limit  int
	review string
	build  string
	task   string
	rounds int
}

// NewLoopGuard returns a guard counting review→build transitions, where a
// limit of 0 selects DefaultLoopLimit.
func NewLoopGuard(limit int, review, build string) *LoopGuard {
	return &LoopGuard{Limit: limit, review: review, build: build}
}

// EffectiveLimit returns the limit in force.
func (g *LoopGuard) EffectiveLimit() int {
	if g.Limit <= 0 {
		return DefaultLoopLimit
	}
	return g.Limit
}

// Observe records a finished stage of task that moved it from one stage to
// another. It reports true when the round trips for task have reached the
// limit; the count then starts over.
func (g *LoopGuard) Observe(task, from, to string) bool {
	if task != g.task {
		g.task = task
		g.rounds = 0
	}
	if g.review == "" || from != g.review || to != g.build {
		return false
	}
	g.rounds++
	if g.rounds >= g.EffectiveLimit() {
		g.rounds = 0
		return true
	}
	return false
}

// Reset forgets the current task.
func (g *LoopGuard) Reset() {
	g.task = ""
	g.rounds = 0
}

// Rounds returns the round trips counted for the current task.
func (g *LoopGuard) Rounds() int { return g.rounds }
