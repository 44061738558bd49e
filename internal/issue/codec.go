package issue

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// frontmatter fixes the key order of the rendered header.
type frontmatter struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Status    string `yaml:"status"`
	Priority  string `yaml:"priority"`
	Task      string `yaml:"task"`
	Type      string `yaml:"type"`
	Source    string `yaml:"source"`
	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at"`
	File      string `yaml:"file"`
}

var requiredKeys = []string{"id", "title", "status", "priority", "type", "source", "created_at", "updated_at"}

// Render encodes the issue as a fenced yaml header followed by a blank line
// and the trimmed body. Unset task and file are written as "-".
func Render(i Issue) ([]byte, error) {
	fm := frontmatter{
		ID:        i.ID,
		Title:     i.Title,
		Status:    string(i.Status),
		Priority:  string(i.Priority),
		Task:      orDash(i.Task),
		Type:      string(i.Type),
		Source:    string(i.Source),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
		File:      orDash(i.File),
	}
	meta, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to encode issue %s: %w", i.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	buf.Write(meta)
	buf.WriteString(fence + "\n")
	if i.Body != nil {
		if body := strings.TrimSpace(*i.Body); body != "" {
			buf.WriteString("\n" + body + "\n")
		}
	}
	return buf.Bytes(), nil
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// Parse decodes an issue file. Every header key except task and file is
// required; "-" or an empty value leaves task and file unset. Headers that
// are not valid yaml (hand-written files with values such as "task: -") are
// read as plain "key: value" lines.
func Parse(data []byte) (Issue, error) {
	meta, body := splitFrontmatter(string(data))

	fields := map[string]string{}
	if err := yaml.Unmarshal([]byte(meta), &fields); err != nil {
		fields = parseLines(meta)
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return Issue{}, fmt.Errorf("Missing %s", key)
		}
	}
	for k, v := range fields {
		fields[k] = strings.TrimSpace(v)
	}

	status, err := ParseStatus(fields["status"])
	if err != nil {
		return Issue{}, err
	}
	priority, err := ParsePriority(fields["priority"])
	if err != nil {
		return Issue{}, err
	}
	typ, err := ParseType(fields["type"])
	if err != nil {
		return Issue{}, err
	}
	source, err := ParseSource(fields["source"])
	if err != nil {
		return Issue{}, err
	}

	return Issue{
		ID:        fields["id"],
		Title:     fields["title"],
		Status:    status,
		Priority:  priority,
		Task:      optional(fields["task"]),
		Type:      typ,
		Source:    source,
		CreatedAt: fields["created_at"],
		UpdatedAt: fields["updated_at"],
		File:      optional(fields["file"]),
		Body:      optional(body),
	}, nil
}

// splitFrontmatter separates the fenced header from the body. Content
// without an opening fence is all body.
func splitFrontmatter(content string) (meta, body string) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != fence {
		return "", content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == fence {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return strings.Join(lines[1:], "\n"), ""
}

func parseLines(meta string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(meta, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(line) == "" {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields
}
