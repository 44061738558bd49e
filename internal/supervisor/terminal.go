package supervisor

import (
	"io"
	"os"

	"golang.org/x/term"
)

// resetSequence turns off modes a TUI agent may leave enabled: bracketed
// paste, application cursor keys, mouse reporting, hidden cursor, the kitty
// keyboard protocol and application keypad. The alternate screen is left
// alone so recent output is not lost.
const resetSequence = "\x1b[?2004l\x1b[?1l\x1b[?1000l\x1b[?1002l\x1b[?1003l\x1b[?1006l\x1b[?1015l\x1b[?25h\x1b[>0u\x1b>"

// TerminalGuard restores the controlling terminal after an agent run.
type TerminalGuard struct {
	fd    int
	state *term.State
	out   io.Writer
}

// CaptureTerminal saves the stdin terminal state when stdin is a terminal.
func CaptureTerminal() *TerminalGuard {
	g := &TerminalGuard{fd: int(os.Stdin.Fd())}
	if term.IsTerminal(g.fd) {
		if st, err := term.GetState(g.fd); err == nil {
			g.state = st
		}
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		g.out = os.Stdout
	}
	return g
}

// Restore puts back the saved state and writes the reset sequence when
// stdout is a terminal. It is safe on a guard that captured nothing.
func (g *TerminalGuard) Restore() {
	if g == nil {
		return
	}
	if g.state != nil {
		_ = term.Restore(g.fd, g.state)
	}
	if g.out != nil {
		_, _ = io.WriteString(g.out, resetSequence)
	}
}
