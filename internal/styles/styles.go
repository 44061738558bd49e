// Package styles holds the terminal styles used by command output.
// Rendering degrades to plain text when stdout is not a terminal.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/iskng/metagent/internal/state"
)

var (
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BlueColor      = lipgloss.Color("#60A5FA")

	Muted   = lipgloss.NewStyle().Foreground(MutedColor)
	Bold    = lipgloss.NewStyle().Bold(true)
	Warning = lipgloss.NewStyle().Foreground(WarningColor)
	Error   = lipgloss.NewStyle().Foreground(ErrorColor)

	// Heading is used for section titles such as "Tasks:".
	Heading = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
)

var statusColors = map[state.TaskStatus]lipgloss.Color{
	state.StatusPending:    MutedColor,
	state.StatusRunning:    BlueColor,
	state.StatusIncomplete: WarningColor,
	state.StatusFailed:     ErrorColor,
	state.StatusCompleted:  SecondaryColor,
	state.StatusIssues:     WarningColor,
}

// Status renders the glyph for a task status in its color.
func Status(s state.TaskStatus) string {
	c, ok := statusColors[s]
	if !ok {
		return s.Symbol()
	}
	return lipgloss.NewStyle().Foreground(c).Render(s.Symbol())
}

// Dim renders text in the muted color.
func Dim(s string) string {
	return Muted.Render(s)
}
