package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/record"
)

// Store reads and writes task and session records under one agent root.
type Store struct {
	root string
}

// NewStore returns a store rooted at agentRoot (<repo>/.agents/<agent>).
func NewStore(agentRoot string) *Store {
	return &Store{root: agentRoot}
}

// Root returns the agent root.
func (s *Store) Root() string { return s.root }

func (s *Store) TaskDir(name string) string {
	return filepath.Join(s.root, TasksDir, name)
}

func (s *Store) TaskPath(name string) string {
	return filepath.Join(s.TaskDir(name), TaskFile)
}

func (s *Store) SessionDir(id string) string {
	return filepath.Join(s.root, SessionsDir, id)
}

func (s *Store) SessionPath(id string) string {
	return filepath.Join(s.SessionDir(id), SessionFile)
}

func (s *Store) ClaimPath(name string) string {
	return filepath.Join(s.root, ClaimsDir, name+".lock")
}

// CreateTask writes a new task record. It fails if the record already
// exists; callers wanting idempotent creation check TaskExists first.
func (s *Store) CreateTask(agent, name, stage, at string, held bool, description *string) (Task, error) {
	if err := ValidateTaskName(name); err != nil {
		return Task{}, err
	}
	t := Task{
		Task:        name,
		Agent:       agent,
		Stage:       stage,
		Status:      StatusPending,
		Held:        held,
		AddedAt:     at,
		UpdatedAt:   at,
		Description: description,
	}
	path := s.TaskPath(name)
	err := record.WithLock(path, func() error {
		if record.Exists(path) {
			return errors.InvalidState("task '%s' already exists", name)
		}
		return record.WriteJSON(path, t)
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// LoadTask reads a task record. A missing record is a NotFound error.
func (s *Store) LoadTask(name string) (Task, error) {
	t, err := record.Load[Task](s.TaskPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Task{}, errors.NotFoundf("task", "Task '%s' not found", name)
		}
		return Task{}, err
	}
	return t, nil
}

// TaskExists reports whether task.json exists for name.
func (s *Store) TaskExists(name string) bool {
	return record.Exists(s.TaskPath(name))
}

// UpdateTask applies fn to the task under its lock and returns the result.
func (s *Store) UpdateTask(name string, fn func(*Task) error) (Task, error) {
	if !s.TaskExists(name) {
		return Task{}, errors.NotFoundf("task", "Task '%s' not found", name)
	}
	return record.Update(s.TaskPath(name), fn)
}

// ListTasks returns every task with a task.json, sorted by name. A
// malformed record fails the whole listing.
func (s *Store) ListTasks() ([]Task, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, TasksDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	var tasks []Task
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := s.TaskPath(e.Name())
		if !record.Exists(path) {
			continue
		}
		t, err := record.Load[Task](path)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Task < tasks[j].Task })
	return tasks, nil
}

// UnregisteredTaskDirs lists task directories that have no task.json yet.
func (s *Store) UnregisteredTaskDirs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, TasksDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !record.Exists(s.TaskPath(e.Name())) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DeleteTask removes the task directory and everything in it.
func (s *Store) DeleteTask(name string) error {
	if err := ValidateTaskName(name); err != nil {
		return err
	}
	if err := os.RemoveAll(s.TaskDir(name)); err != nil {
		return fmt.Errorf("failed to remove task %s: %w", name, err)
	}
	return nil
}
