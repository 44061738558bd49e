package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iskng/metagent/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// resetFlags restores every flag to its default so values from an earlier
// Execute do not leak into the next one.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the root command with args and returns captured output
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	viper.Reset()
	bindFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// setupRepo points metagent at a fresh repository and config directory.
func setupRepo(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	t.Setenv(state.RepoRootEnv, repo)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("METAGENT_AGENT", "")
	t.Setenv("METAGENT_MODEL", "")
	t.Setenv(state.SessionEnv, "")
	t.Setenv("METAGENT_TASK", "")
	return repo
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(t, "", args...)
	if err != nil {
		t.Fatalf("metagent %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "metagent" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "metagent")
	}

	expected := []string{
		"init", "start", "task", "hold", "dequeue", "activate", "delete", "queue",
		"reorder", "run", "run-next", "run-queue", "finish", "set-stage", "review",
		"spec-review", "issues", "issue", "plan", "history", "config", "logs",
	}
	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, name := range expected {
		if !cmdMap[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

func TestAliases(t *testing.T) {
	tests := map[string]string{"q": "queue", "rn": "run-next", "rq": "run-queue"}
	for alias, want := range tests {
		c, _, err := rootCmd.Find([]string{alias})
		if err != nil {
			t.Errorf("Find(%s) error = %v", alias, err)
			continue
		}
		if c.Name() != want {
			t.Errorf("alias %s resolves to %s, want %s", alias, c.Name(), want)
		}
	}
}

func TestInitCommand(t *testing.T) {
	repo := setupRepo(t)

	out := mustExecute(t, "init")
	if !strings.Contains(out, "Initialized code agent in "+repo) {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(repo, ".agents", "code", "issues")); err != nil {
		t.Errorf("issues dir missing: %v", err)
	}
}

func TestCommandsRequireInit(t *testing.T) {
	setupRepo(t)
	if _, err := executeCommand(t, "", "queue"); err == nil || !strings.Contains(err.Error(), "metagent init") {
		t.Errorf("queue before init: err = %v", err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	setupRepo(t)
	mustExecute(t, "init")

	out := mustExecute(t, "task", "auth", "--description", "login flow")
	if !strings.Contains(out, "Created task: auth") || !strings.Contains(out, "Description: login flow") {
		t.Errorf("task output = %q", out)
	}

	out = mustExecute(t, "queue")
	if !strings.Contains(out, "Spec:") || !strings.Contains(out, "auth") {
		t.Errorf("queue output = %q", out)
	}

	mustExecute(t, "hold", "auth")
	out = mustExecute(t, "q")
	if !strings.Contains(out, "Backlog:") {
		t.Errorf("held task not in backlog: %q", out)
	}

	mustExecute(t, "activate", "auth")
	out = mustExecute(t, "set-stage", "auth", "build")
	if !strings.Contains(out, "Set 'auth' to stage 'build' (status: pending)") {
		t.Errorf("set-stage output = %q", out)
	}

	if _, err := executeCommand(t, "", "set-stage", "auth", "deploy"); err == nil || !strings.Contains(err.Error(), "Unknown stage: deploy") {
		t.Errorf("set-stage unknown stage: err = %v", err)
	}

	out = mustExecute(t, "delete", "auth")
	if !strings.Contains(out, "Removed 'auth'") {
		t.Errorf("delete output = %q", out)
	}
}

func TestReorderRejectsBadPosition(t *testing.T) {
	setupRepo(t)
	mustExecute(t, "init")
	if _, err := executeCommand(t, "", "reorder", "auth", "zero"); err == nil {
		t.Error("reorder with a non-numeric position should fail")
	}
}

func TestIssueCommands(t *testing.T) {
	setupRepo(t)
	mustExecute(t, "init")
	mustExecute(t, "task", "auth")

	out := mustExecute(t, "issue", "add", "--title", "token expiry", "--task", "auth", "--priority", "P1")
	if !strings.Contains(out, "Created issue ") {
		t.Fatalf("issue add output = %q", out)
	}

	out = mustExecute(t, "issues")
	if !strings.Contains(out, "Open issues:") || !strings.Contains(out, "[P1] auth: token expiry") {
		t.Errorf("issues output = %q", out)
	}

	out = mustExecute(t, "issue", "list", "--unassigned")
	if !strings.Contains(out, "No issues") {
		t.Errorf("unassigned listing = %q", out)
	}

	if _, err := executeCommand(t, "", "issues", "--task", "auth", "--unassigned"); err == nil {
		t.Error("--task with --unassigned should fail")
	}

	_, err := executeCommand(t, "body", "issue", "add", "--title", "x", "--body", "y", "--stdin-body")
	if err == nil || !strings.Contains(err.Error(), "Use --body or --stdin-body, not both") {
		t.Errorf("body conflict: err = %v", err)
	}

	out, err = executeCommand(t, "details from stdin\n", "issue", "add", "--title", "from stdin", "--stdin-body")
	if err != nil {
		t.Fatalf("issue add --stdin-body: %v", err)
	}
	id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "Created issue "))
	out = mustExecute(t, "issue", "show", id)
	if !strings.Contains(out, "details from stdin") {
		t.Errorf("issue show = %q", out)
	}
}

func TestFinishCommand(t *testing.T) {
	repo := setupRepo(t)
	mustExecute(t, "init")
	mustExecute(t, "task", "auth")

	store := state.NewStore(filepath.Join(repo, ".agents", "code"))
	id := state.NewSessionID()
	if _, err := store.CreateSession(id, "code", nil, "spec", os.Getpid(), "test", repo); err != nil {
		t.Fatal(err)
	}
	t.Setenv(state.SessionEnv, id)
	t.Setenv("METAGENT_TASK", "auth")

	out := mustExecute(t, "finish", "spec")
	if !strings.Contains(out, "Advanced stage to planning") {
		t.Errorf("finish output = %q", out)
	}
	task, err := store.LoadTask("auth")
	if err != nil {
		t.Fatal(err)
	}
	if task.Stage != "planning" {
		t.Errorf("stage = %s, want planning", task.Stage)
	}
}

func TestConfigSet(t *testing.T) {
	setupRepo(t)

	if _, err := executeCommand(t, "", "config", "set", "claims.backend", "redis"); err == nil {
		t.Error("invalid backend should be rejected")
	}
	if _, err := executeCommand(t, "", "config", "set", "nope", "1"); err == nil {
		t.Error("unknown key should be rejected")
	}

	out := mustExecute(t, "config", "set", "queue.loop_limit", "5")
	if !strings.Contains(out, "Set queue.loop_limit = 5") {
		t.Errorf("config set output = %q", out)
	}
	data, err := os.ReadFile(filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "metagent", "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "loop_limit: 5") {
		t.Errorf("config file = %s", data)
	}
}

func TestConfigInit(t *testing.T) {
	setupRepo(t)
	out := mustExecute(t, "config", "init")
	if !strings.Contains(out, "Created config file at") {
		t.Errorf("output = %q", out)
	}
	if _, err := executeCommand(t, "", "config", "init"); err == nil {
		t.Error("second config init should fail")
	}
	out = mustExecute(t, "config", "show")
	if !strings.Contains(out, "backend: file") {
		t.Errorf("config show = %q", out)
	}
}

func TestLogFilter(t *testing.T) {
	line := `{"time":"2026-01-02T10:00:00Z","level":"WARN","msg":"loop limit reached","task":"auth","limit":3}`

	tests := []struct {
		name   string
		filter logFilter
		want   bool
	}{
		{"no filter", logFilter{minLevel: -1}, true},
		{"task match", logFilter{minLevel: -1, task: "auth"}, true},
		{"task mismatch", logFilter{minLevel: -1, task: "other"}, false},
		{"level above", logFilter{minLevel: levelPriority("ERROR")}, false},
		{"level at", logFilter{minLevel: levelPriority("WARN")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatLine(line, tt.filter)
			if ok != tt.want {
				t.Fatalf("formatLine() ok = %v, want %v", ok, tt.want)
			}
			if ok && (!strings.Contains(got, "loop limit reached") || !strings.Contains(got, "3")) {
				t.Errorf("formatted = %q", got)
			}
		})
	}

	if got, ok := formatLine("not json", logFilter{minLevel: -1}); !ok || got != "not json" {
		t.Errorf("raw line = %q, %v", got, ok)
	}
}
