package queue

import (
	"strings"
	"testing"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
)

func task(name, stg string, status state.TaskStatus, added string) state.Task {
	return state.Task{Task: name, Agent: "code", Stage: stg, Status: status, AddedAt: added, UpdatedAt: added}
}

func names(tasks []state.Task) string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.Task)
	}
	return strings.Join(out, ",")
}

func TestOrder_BuildUsesRank(t *testing.T) {
	a := task("a", "build", state.StatusPending, "2026-01-01T00:00:01Z")
	b := task("b", "build", state.StatusPending, "2026-01-01T00:00:02Z")
	c := task("c", "build", state.StatusPending, "2026-01-01T00:00:03Z")
	c.QueueRank = state.Ptr(int64(1))
	b.QueueRank = state.Ptr(int64(2))

	tasks := []state.Task{a, b, c}
	Order(stage.Code{}, "build", tasks)
	if got := names(tasks); got != "c,b,a" {
		t.Errorf("Order(build) = %s, want c,b,a", got)
	}

	review := []state.Task{c, a, b}
	Order(stage.Code{}, "review", review)
	if got := names(review); got != "a,b,c" {
		t.Errorf("Order(review) = %s, want a,b,c", got)
	}
}

func TestNextEligible(t *testing.T) {
	k := stage.Code{}
	held := task("held", "spec-review-issues", state.StatusPending, "1")
	held.Held = true

	tests := []struct {
		name      string
		tasks     []state.Task
		want      string
		wantStage string
		wantOK    bool
	}{
		{
			name:   "empty",
			wantOK: false,
		},
		{
			name: "queue stage priority",
			tasks: []state.Task{
				task("r", "review", state.StatusPending, "1"),
				task("b", "build", state.StatusPending, "2"),
				task("s", "spec-review-issues", state.StatusIncomplete, "3"),
			},
			want: "s", wantStage: "spec-review-issues", wantOK: true,
		},
		{
			name: "skips held running and failed",
			tasks: []state.Task{
				held,
				task("run", "build", state.StatusRunning, "1"),
				task("fail", "build", state.StatusFailed, "1"),
				task("ok", "review", state.StatusIssues, "9"),
			},
			want: "ok", wantStage: "review", wantOK: true,
		},
		{
			name: "non-queue stages ignored",
			tasks: []state.Task{
				task("spec", "spec", state.StatusPending, "1"),
				task("plan", "planning", state.StatusPending, "1"),
			},
			wantOK: false,
		},
		{
			name: "completed with issues rewritten to build",
			tasks: []state.Task{
				task("done", stage.Completed, state.StatusCompleted, "1"),
				task("stranded", stage.Completed, state.StatusIssues, "2"),
			},
			want: "stranded", wantStage: "build", wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextEligible(k, tt.tasks)
			if ok != tt.wantOK {
				t.Fatalf("NextEligible() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Task != tt.want || got.Stage != tt.wantStage {
				t.Errorf("NextEligible() = %s@%s, want %s@%s", got.Task, got.Stage, tt.want, tt.wantStage)
			}
		})
	}
}

func TestNextEligible_Writer(t *testing.T) {
	tasks := []state.Task{
		task("draft", "write", state.StatusPending, "2"),
		task("polish", "edit", state.StatusPending, "1"),
	}
	got, ok := NextEligible(stage.Writer{}, tasks)
	if !ok || got.Task != "draft" {
		t.Errorf("NextEligible(writer) = %v, %v", got.Task, ok)
	}
}

func newStore(t *testing.T, tasks ...state.Task) *state.Store {
	t.Helper()
	s := state.NewStore(t.TempDir())
	for _, tk := range tasks {
		if _, err := s.CreateTask(tk.Agent, tk.Task, tk.Stage, tk.AddedAt, tk.Held, nil); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func buildOrder(t *testing.T, s *state.Store) string {
	t.Helper()
	all, err := s.ListTasks()
	if err != nil {
		t.Fatal(err)
	}
	return names(AtStage(stage.Code{}, "build", all, false))
}

func TestReorder_CBA(t *testing.T) {
	s := newStore(t,
		task("a", "build", state.StatusPending, "2026-01-01T00:00:01Z"),
		task("b", "build", state.StatusPending, "2026-01-01T00:00:02Z"),
		task("c", "build", state.StatusPending, "2026-01-01T00:00:03Z"),
	)

	pos, err := Reorder(s, stage.Code{}, "c", 1)
	if err != nil || pos != 1 {
		t.Fatalf("Reorder(c, 1) = %d, %v", pos, err)
	}
	pos, err = Reorder(s, stage.Code{}, "b", 2)
	if err != nil || pos != 2 {
		t.Fatalf("Reorder(b, 2) = %d, %v", pos, err)
	}
	if got := buildOrder(t, s); got != "c,b,a" {
		t.Errorf("build order = %s, want c,b,a", got)
	}

	all, _ := s.ListTasks()
	for _, tk := range all {
		if tk.QueueRank == nil {
			t.Errorf("%s has no rank", tk.Task)
		}
	}

	got, ok := NextEligible(stage.Code{}, all)
	if !ok || got.Task != "c" {
		t.Errorf("NextEligible() = %s, want c", got.Task)
	}
}

func TestReorder_ClampsToEnd(t *testing.T) {
	s := newStore(t,
		task("a", "build", state.StatusPending, "1"),
		task("b", "build", state.StatusPending, "2"),
	)
	pos, err := Reorder(s, stage.Code{}, "a", 10)
	if err != nil || pos != 2 {
		t.Fatalf("Reorder() = %d, %v, want 2", pos, err)
	}
	if got := buildOrder(t, s); got != "b,a" {
		t.Errorf("build order = %s, want b,a", got)
	}
}

func TestReorder_Errors(t *testing.T) {
	heldTask := task("held", "build", state.StatusPending, "3")
	heldTask.Held = true
	s := newStore(t,
		task("a", "build", state.StatusPending, "1"),
		task("spec", "spec", state.StatusPending, "2"),
		heldTask,
	)
	tests := []struct {
		name     string
		task     string
		position int
		want     string
	}{
		{"zero position", "a", 0, "Position must be 1 or greater"},
		{"wrong stage", "spec", 1, "Reorder is only supported for build stage tasks"},
		{"held", "held", 1, "Task 'held' is held. Activate it before reordering."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reorder(s, stage.Code{}, tt.task, tt.position)
			if err == nil || err.Error() != tt.want {
				t.Fatalf("Reorder() error = %v, want %q", err, tt.want)
			}
			if errors.KindOf(err) != errors.KindInvalidState {
				t.Errorf("KindOf() = %v", errors.KindOf(err))
			}
		})
	}

	if _, err := Reorder(s, stage.Code{}, "missing", 1); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("missing task error = %v", err)
	}
}

func TestLoopGuard(t *testing.T) {
	g := NewLoopGuard(2, "review", "build")

	if g.Observe("a", "build", "review") {
		t.Error("build→review must not count")
	}
	if g.Observe("a", "review", "build") {
		t.Error("first round trip should not trip the guard")
	}
	if !g.Observe("a", "review", "build") {
		t.Error("second round trip should trip the guard at limit 2")
	}
	if g.Rounds() != 0 {
		t.Errorf("Rounds() = %d after tripping, want 0", g.Rounds())
	}

	g.Observe("a", "review", "build")
	if g.Observe("b", "review", "build") {
		t.Error("switching task should restart the count")
	}
	if g.Rounds() != 1 {
		t.Errorf("Rounds() = %d, want 1", g.Rounds())
	}
	g.Reset()
	if g.Rounds() != 0 {
		t.Error("Reset() should clear the count")
	}
}

func TestLoopGuard_ZeroLimitDefaults(t *testing.T) {
	g := NewLoopGuard(0, "review", "build")
	if g.EffectiveLimit() != DefaultLoopLimit {
		t.Fatalf("EffectiveLimit() = %d", g.EffectiveLimit())
	}
	for i := 1; i < DefaultLoopLimit; i++ {
		if g.Observe("a", "review", "build") {
			t.Fatalf("tripped after %d rounds", i)
		}
	}
	if !g.Observe("a", "review", "build") {
		t.Error("should trip at the default limit")
	}
}

func TestLoopGuard_NoReviewStage(t *testing.T) {
	g := NewLoopGuard(1, "", "write")
	if g.Observe("a", "", "write") {
		t.Error("kinds without a review stage never trip")
	}
}
