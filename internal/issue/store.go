package issue

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/logging"
	"github.com/iskng/metagent/internal/record"
	"github.com/iskng/metagent/internal/state"
)

// Ext is the issue file extension.
const Ext = ".md"

// Store reads and writes issue files in one directory.
type Store struct {
	dir    string
	warn   io.Writer
	logger *logging.Logger
}

// NewStore returns a store for <agentRoot>/issues. Skipped files are
// reported on stderr and to logger, which may be nil.
func NewStore(agentRoot string, logger *logging.Logger) *Store {
	return &Store{
		dir:    filepath.Join(agentRoot, state.IssuesDir),
		warn:   os.Stderr,
		logger: logger,
	}
}

// SetWarningOutput redirects the skipped-file warnings printed by List.
func (s *Store) SetWarningOutput(w io.Writer) { s.warn = w }

// Dir returns the issues directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+Ext)
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// Exists reports whether an issue file exists for id.
func (s *Store) Exists(id string) bool {
	return validID(id) && record.Exists(s.Path(id))
}

// Save writes the issue atomically.
func (s *Store) Save(i Issue) error {
	if !validID(i.ID) {
		return errors.Validation("Invalid issue id '%s'", i.ID)
	}
	data, err := Render(i)
	if err != nil {
		return err
	}
	return record.WriteFileAtomic(s.Path(i.ID), data)
}

// Load reads one issue. A missing file is a NotFound error.
func (s *Store) Load(id string) (Issue, error) {
	if !s.Exists(id) {
		return Issue{}, errors.NotFoundf("issue", "Issue '%s' not found (run `metagent issues` to list IDs)", id)
	}
	return s.load(s.Path(id))
}

func (s *Store) load(path string) (Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Issue{}, fmt.Errorf("failed to read issue %s: %w", path, err)
	}
	i, err := Parse(data)
	if err != nil {
		return Issue{}, fmt.Errorf("failed to parse issue %s: %w", path, err)
	}
	return i, nil
}

// Update applies fn to the issue and saves it, stamping updated_at.
func (s *Store) Update(id string, fn func(*Issue) error) (Issue, error) {
	if !validID(id) {
		return Issue{}, errors.NotFoundf("issue", "Issue '%s' not found (run `metagent issues` to list IDs)", id)
	}
	var out Issue
	err := record.WithLock(s.Path(id), func() error {
		i, err := s.Load(id)
		if err != nil {
			return err
		}
		if err := fn(&i); err != nil {
			return err
		}
		i.UpdatedAt = state.NowISO()
		out = i
		return s.Save(i)
	})
	return out, err
}

// List returns every readable issue. Files that fail to parse are reported
// and skipped.
func (s *Store) List() ([]Issue, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read issues directory %s: %w", s.dir, err)
	}
	var issues []Issue
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		i, err := s.load(filepath.Join(s.dir, e.Name()))
		if err != nil {
			if s.warn != nil {
				fmt.Fprintf(s.warn, "Warning: %v (skipping)\n", err)
			}
			if s.logger != nil {
				s.logger.Warn("skipping malformed issue", "file", e.Name(), "error", err.Error())
			}
			continue
		}
		issues = append(issues, i)
	}
	return issues, nil
}
