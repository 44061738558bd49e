// Package plan inspects the checklist in a task's plan file.
//
// Two kinds of checklist lines are recognized. Canonical steps carry a
// priority, a complexity and a numeric id, as in
// "- [ ] [P1][M][T12] Wire the claim backend".
// Any other "- [ ] " or "- [x] " line is a plain checklist step. Duplicate
// canonical ids are reported as warnings rather than rejected.
package plan

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/iskng/metagent/internal/errors"
)

// Step is a single checklist line.
type Step struct {
	Line       int
	Done       bool
	Priority   string // P0..P3, canonical steps only
	Complexity string // S, M or L, canonical steps only
	ID         uint32 // canonical steps only
	Title      string
}

// Duplicate lists the lines that share a canonical id.
type Duplicate struct {
	ID    uint32
	Lines []int
}

// Plan is the parsed checklist of a plan file.
type Plan struct {
	Canonical  []Step
	Checklist  []Step
	Duplicates []Duplicate
}

// Empty reports whether no checklist lines were found.
func (p Plan) Empty() bool {
	return len(p.Canonical) == 0 && len(p.Checklist) == 0
}

// Counts returns the number of open and done steps across both kinds.
func (p Plan) Counts() (open, done int) {
	for _, steps := range [][]Step{p.Canonical, p.Checklist} {
		for _, s := range steps {
			if s.Done {
				done++
			} else {
				open++
			}
		}
	}
	return open, done
}

// Parse reads checklist steps from plan content. Line numbers are 1-based.
func Parse(content string) Plan {
	var p Plan
	ids := make(map[uint32][]int)

	for i, line := range strings.Split(content, "\n") {
		n := i + 1
		line = strings.TrimSuffix(line, "\r")
		if step, ok := parseCanonical(line, n); ok {
			ids[step.ID] = append(ids[step.ID], n)
			p.Canonical = append(p.Canonical, step)
			continue
		}
		if step, ok := parseChecklist(line, n); ok {
			p.Checklist = append(p.Checklist, step)
		}
	}

	for id, lines := range ids {
		if len(lines) > 1 {
			sort.Ints(lines)
			p.Duplicates = append(p.Duplicates, Duplicate{ID: id, Lines: lines})
		}
	}
	sort.Slice(p.Duplicates, func(i, j int) bool { return p.Duplicates[i].ID < p.Duplicates[j].ID })
	return p
}

// Load parses the plan file at path. fileName and task only shape the
// not-found message.
func Load(path, fileName, task string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Plan{}, errors.InvalidState("%s not found for task '%s': %s", fileName, task, path)
		}
		return Plan{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Write prints the report for a plan. dim styles the empty-plan notice.
func Write(w io.Writer, p Plan, task, path string, dim func(string) string) {
	if p.Empty() {
		msg := fmt.Sprintf("No checklist steps found in %s", path)
		if dim != nil {
			msg = dim(msg)
		}
		fmt.Fprintln(w, msg)
		return
	}

	fmt.Fprintf(w, "Plan '%s': %s\n", task, path)
	if len(p.Canonical) > 0 {
		fmt.Fprintln(w, "Canonical steps:")
		for _, s := range p.Canonical {
			fmt.Fprintf(w, "  L%d - [%s] [%s][%s][T%d] %s\n", s.Line, marker(s.Done), s.Priority, s.Complexity, s.ID, s.Title)
		}
	}
	if len(p.Checklist) > 0 {
		fmt.Fprintln(w, "Other checklist lines:")
		for _, s := range p.Checklist {
			fmt.Fprintf(w, "  L%d - [%s] %s\n", s.Line, marker(s.Done), s.Title)
		}
	}

	open, done := p.Counts()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d total (%d open, %d done)\n", open+done, open, done)

	if len(p.Duplicates) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warnings:")
		for _, d := range p.Duplicates {
			lines := make([]string, len(d.Lines))
			for i, l := range d.Lines {
				lines[i] = strconv.Itoa(l)
			}
			fmt.Fprintf(w, "  duplicate T%d at lines %s\n", d.ID, strings.Join(lines, ", "))
		}
	}
}

func marker(done bool) string {
	if done {
		return "x"
	}
	return " "
}

func checklistPrefix(line string) (bool, string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimLeft(line, " \t"), "- [")
	if !ok || rest == "" {
		return false, "", false
	}
	status := rest[0]
	if status != ' ' && status != 'x' {
		return false, "", false
	}
	rest, ok = strings.CutPrefix(rest[1:], "] ")
	if !ok {
		return false, "", false
	}
	return status == 'x', rest, true
}

func bracketTag(s string) (tag, rest string, ok bool) {
	inner, ok := strings.CutPrefix(s, "[")
	if !ok {
		return "", "", false
	}
	end := strings.IndexByte(inner, ']')
	if end < 0 {
		return "", "", false
	}
	return inner[:end], inner[end+1:], true
}

func parseCanonical(line string, n int) (Step, bool) {
	done, rest, ok := checklistPrefix(line)
	if !ok {
		return Step{}, false
	}
	priority, rest, ok := bracketTag(rest)
	if !ok || (priority != "P0" && priority != "P1" && priority != "P2" && priority != "P3") {
		return Step{}, false
	}
	complexity, rest, ok := bracketTag(rest)
	if !ok || (complexity != "S" && complexity != "M" && complexity != "L") {
		return Step{}, false
	}
	idTag, rest, ok := bracketTag(rest)
	if !ok {
		return Step{}, false
	}
	digits, ok := strings.CutPrefix(idTag, "T")
	if !ok || !validID(digits) {
		return Step{}, false
	}
	id, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return Step{}, false
	}
	title, ok := strings.CutPrefix(rest, " ")
	if !ok {
		return Step{}, false
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Step{}, false
	}
	return Step{
		Line:       n,
		Done:       done,
		Priority:   priority,
		Complexity: complexity,
		ID:         uint32(id),
		Title:      title,
	}, true
}

// validID accepts a non-empty run of digits without a leading zero.
func validID(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func parseChecklist(line string, n int) (Step, bool) {
	done, rest, ok := checklistPrefix(line)
	if !ok {
		return Step{}, false
	}
	title := strings.TrimSpace(rest)
	if title == "" {
		return Step{}, false
	}
	return Step{Line: n, Done: done, Title: title}, true
}
