package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/iskng/metagent/internal/errors"
)

// Directory layout under <repo>/.agents/<agent>/.
const (
	AgentsDir   = ".agents"
	TasksDir    = "tasks"
	SessionsDir = "sessions"
	ClaimsDir   = "claims"
	IssuesDir   = "issues"
	LogsDir     = "logs"

	TaskFile    = "task.json"
	SessionFile = "session.json"
)

// RepoRootEnv overrides repository discovery.
const RepoRootEnv = "METAGENT_REPO_ROOT"

// FindRepoRoot returns $METAGENT_REPO_ROOT when set, otherwise the nearest
// ancestor of start containing .agents or .git.
func FindRepoRoot(start string) (string, error) {
	if root := os.Getenv(RepoRootEnv); root != "" {
		return root, nil
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range []string{AgentsDir, ".git"} {
			if info, err := os.Stat(filepath.Join(dir, marker)); err == nil && (info.IsDir() || marker == ".git") {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("No repo found (missing .agents/ or .git). Run 'metagent init' in a repo.")
		}
		dir = parent
	}
}

// AgentRoot returns <repo>/.agents/<agent>, failing when .agents does not
// exist yet.
func AgentRoot(repoRoot, agent string) (string, error) {
	agents := filepath.Join(repoRoot, AgentsDir)
	if info, err := os.Stat(agents); err != nil || !info.IsDir() {
		return "", errors.New(".agents/ not found in repo. Run 'metagent init' first.")
	}
	return filepath.Join(agents, agent), nil
}

// NowISO returns the current UTC time as RFC 3339 with second precision.
func NowISO() string {
	return FormatTime(time.Now())
}

// FormatTime renders t the way records store timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// ParseTime parses a record timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
