package state

// FindUniqueTask returns the only task at stage whose status means it could
// still be worked on, or "" when there is none or more than one.
func (s *Store) FindUniqueTask(stage string) (string, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return "", err
	}
	found := ""
	for _, t := range tasks {
		if t.Stage != stage || !t.Active() {
			continue
		}
		if found != "" {
			return "", nil
		}
		found = t.Task
	}
	return found, nil
}

// Reconcile demotes Running tasks left behind by a dead orchestrator. A
// Running task not at terminal stage with neither an active claim nor a
// Running session becomes Incomplete. It returns the demoted task names.
func (s *Store) Reconcile(terminal string, hasActiveClaim func(task string) (bool, error)) ([]string, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	var demoted []string
	for _, t := range tasks {
		if t.Status != StatusRunning || t.Stage == terminal {
			continue
		}
		if hasActiveClaim != nil {
			claimed, err := hasActiveClaim(t.Task)
			if err != nil {
				return demoted, err
			}
			if claimed {
				continue
			}
		}
		active, err := s.HasActiveSession(t.Task)
		if err != nil {
			return demoted, err
		}
		if active {
			continue
		}
		if _, err := s.UpdateTask(t.Task, func(task *Task) error {
			task.Status = StatusIncomplete
			task.UpdatedAt = NowISO()
			return nil
		}); err != nil {
			return demoted, err
		}
		demoted = append(demoted, t.Task)
	}
	return demoted, nil
}
