package orchestrator

import (
	"path/filepath"

	"github.com/iskng/metagent/internal/plan"
	"github.com/iskng/metagent/internal/styles"
)

// Plan prints the parsed checklist of a task.
func (o *Orchestrator) Plan(name string) error {
	if err := o.requireTask(name); err != nil {
		return err
	}
	file := o.kind.PlanFile()
	path := filepath.Join(o.tasks.TaskDir(name), file)
	p, err := plan.Load(path, file, name)
	if err != nil {
		return err
	}
	plan.Write(o.out, p, name, path, styles.Dim)
	return nil
}
