// Package prompt loads stage prompt templates and fills in their
// placeholders. Templates are read from the prompts directory when present;
// a generic bundled template is used otherwise.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iskng/metagent/internal/model"
	"github.com/iskng/metagent/internal/stage"
)

//go:embed templates/*.md
var bundled embed.FS

// DefaultDir returns ~/.metagent/<agent>.
func DefaultDir(agent string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".metagent", agent)
	}
	return filepath.Join(home, ".metagent", agent)
}

// Loader resolves stage templates for one agent kind.
type Loader struct {
	Dir  string
	Kind stage.Kind
}

// NewLoader returns a loader reading from dir, or DefaultDir when empty.
func NewLoader(k stage.Kind, dir string) *Loader {
	if dir == "" {
		dir = DefaultDir(k.Name())
	}
	return &Loader{Dir: dir, Kind: k}
}

// Load returns the template for stg. Absolute or nested prompt paths must
// exist; bare file names fall back to the bundled template.
func (l *Loader) Load(stg string, hasTask bool) (string, error) {
	name, ok := l.Kind.PromptFile(stg, hasTask)
	if !ok {
		return "", fmt.Errorf("No prompt for stage: %s", stg)
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		data, err := os.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("Prompt file not found: %s", name)
		}
		return string(data), nil
	}
	path := filepath.Join(l.Dir, name)
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}
	data, err := bundled.ReadFile("templates/stage.md")
	if err != nil {
		return "", fmt.Errorf("failed to read bundled prompt: %w", err)
	}
	return strings.NewReplacer(
		"{label}", l.Kind.Label(stg),
		"{agent}", l.Kind.Name(),
		"{stage}", stg,
	).Replace(string(data)), nil
}

// Context carries the values substituted into a template.
type Context struct {
	Repo                     string
	Task                     string
	Session                  string
	IssuesHeader             string
	IssuesMode               string
	ReviewFinishInstructions string
	Parallelism              string
	Focus                    string
}

// Render substitutes the placeholders in tmpl. {task} and {taskname} are
// left untouched when there is no task. When a task is set the result is
// prefixed with a "Task: <name>" line.
func Render(tmpl string, c Context) string {
	pairs := []string{
		"{session}", c.Session,
		"{repo}", c.Repo,
		"{issues_header}", c.IssuesHeader,
		"{issues_mode}", c.IssuesMode,
		"{review_finish_instructions}", c.ReviewFinishInstructions,
		"{parallelism_mode}", c.Parallelism,
		"{focus_section}", c.Focus,
	}
	if c.Task != "" {
		pairs = append(pairs, "{task}", c.Task, "{taskname}", c.Task)
	}
	out := strings.NewReplacer(pairs...).Replace(tmpl)
	if c.Task != "" {
		out = "Task: " + c.Task + "\n\n" + out
	}
	return out
}

// IssuesText returns the header and closing-rule lines injected when a
// code task returns with open issues. Both are empty otherwise.
func IssuesText(k stage.Kind, issues bool, task string) (header, mode string) {
	if !k.SupportsIssues() || !issues || task == "" {
		return "", ""
	}
	file := fmt.Sprintf("@.agents/%s/tasks/%s/issues.md", k.Name(), task)
	header = "0d. Check " + file + " - Open issues from review MUST be addressed first\n\n" +
		"1. **PRIORITY: Review Issues** - If issues.md exists with open issues, address those FIRST. " +
		"These are requirements clarifications or architectural decisions needed. " +
		"Update issue status to \"resolved\" when addressed."
	mode = "99999999999999. **REVIEW ISSUES:** This task returned from review with issues. " +
		"All issues in " + file + " must be resolved before finishing this phase."
	return header, mode
}

// ParallelismText returns subagent guidance for claude and "" otherwise.
func ParallelismText(m model.Model) string {
	if m != model.Claude {
		return ""
	}
	return strings.Join([]string{
		"## Parallelism",
		"- Use subagents liberally for research before implementing",
		"- Codebase search: up to 100 subagents",
		"- File reading: up to 100 subagents",
		"- File writing: up to 10 subagents (independent files only)",
		"- Build/test: 1 subagent only",
		"- plan.md updates: 1 subagent",
	}, "\n")
}

// FinishMode selects how a review stage is told to end.
type FinishMode int

const (
	// FinishQueue reviews signal the next stage with metagent finish.
	FinishQueue FinishMode = iota
	// FinishManual reviews only report.
	FinishManual
)

// ReviewFinishInstructions returns the closing step of a review prompt.
func ReviewFinishInstructions(mode FinishMode, agent, repo, task, session string) string {
	if mode == FinishManual {
		return "7. Manual review: do not run `metagent finish`. End after the report."
	}
	if task == "" {
		return ""
	}
	base := fmt.Sprintf("cd %q && METAGENT_TASK=%q metagent --agent %s finish review --session %q", repo, task, agent, session)
	return "7. Signal next stage:\n" +
		"- Spec issues exist (any open) or spec needs revision: `" + base + " --next spec-review-issues`\n" +
		"- Only build issues (no spec issues): `" + base + " --next build`\n" +
		"- Pass (no issues): `" + base + "`"
}

// FocusSection wraps a user-supplied review focus, or returns "".
func FocusSection(focus string) string {
	focus = strings.TrimSpace(focus)
	if focus == "" {
		return ""
	}
	return "## FOCUS AREA\n\nThe user has requested special attention to:\n> " + focus +
		"\n\nPrioritize investigating this area first, then continue with full review."
}
