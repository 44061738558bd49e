package supervisor

import (
	"os"
	"sort"
	"syscall"
	"time"

	"github.com/iskng/metagent/internal/logging"
)

// Phase is a step of the shutdown escalation.
type Phase int

const (
	// PhaseAttempting sends SIGINT, up to InterruptAttempts times.
	PhaseAttempting Phase = iota
	// PhaseTerminate sends SIGTERM.
	PhaseTerminate
	// PhaseKill sends SIGKILL.
	PhaseKill
	// PhaseForced kills the root through its process handle and reaps it.
	PhaseForced
	// PhaseConfirmedDead means the root has exited.
	PhaseConfirmedDead
)

func (p Phase) String() string {
	switch p {
	case PhaseAttempting:
		return "attempting"
	case PhaseTerminate:
		return "terminate"
	case PhaseKill:
		return "kill"
	case PhaseForced:
		return "forced"
	case PhaseConfirmedDead:
		return "confirmed-dead"
	default:
		return "unknown"
	}
}

// child is a started agent process whose Wait runs in the background.
type child struct {
	proc *os.Process
	done <-chan struct{}
}

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
	}
	return false
}

// Shutdown tears down an agent process tree. Descendants are re-discovered
// before every signal, because a wrapper that exits first would otherwise
// orphan deeper children, and are signalled deepest first before the root.
type Shutdown struct {
	child   *child
	opts    Options
	logger  *logging.Logger
	known   map[int]struct{}
	phase   Phase
	attempt int
}

func newShutdown(c *child, opts Options, logger *logging.Logger) *Shutdown {
	return &Shutdown{child: c, opts: opts, logger: logger, known: make(map[int]struct{})}
}

// Phase returns the current phase.
func (s *Shutdown) Phase() Phase { return s.phase }

// Run escalates until the root process is confirmed dead. It does not
// return while the root is alive.
func (s *Shutdown) Run() {
	for s.phase != PhaseConfirmedDead {
		s.step()
	}
}

func (s *Shutdown) step() {
	switch s.phase {
	case PhaseAttempting:
		s.attempt++
		s.signalTree(syscall.SIGINT)
		if s.waitTree(s.opts.InterruptWait) {
			s.phase = PhaseConfirmedDead
		} else if s.attempt >= s.opts.InterruptAttempts {
			s.phase = PhaseTerminate
		}
	case PhaseTerminate:
		s.signalTree(syscall.SIGTERM)
		if s.waitTree(s.opts.TerminateWait) {
			s.phase = PhaseConfirmedDead
		} else {
			s.phase = PhaseKill
		}
	case PhaseKill:
		s.signalTree(syscall.SIGKILL)
		if s.waitTree(s.opts.KillWait) {
			s.phase = PhaseConfirmedDead
		} else {
			s.phase = PhaseForced
		}
	case PhaseForced:
		_ = s.child.proc.Kill()
		<-s.child.done
		s.waitTree(s.opts.KillWait)
		if len(s.known) > 0 {
			s.logger.Warn("descendants survived shutdown", "pids", s.knownPIDs())
		}
		s.phase = PhaseConfirmedDead
	}
	if s.logger != nil {
		s.logger.Debug("shutdown step", "phase", s.phase.String(), "attempt", s.attempt)
	}
}

func (s *Shutdown) signalTree(sig syscall.Signal) {
	table := snapshotProcesses()
	if !s.child.exited() {
		for _, pid := range table.descendants(s.child.proc.Pid) {
			s.known[pid] = struct{}{}
		}
	}
	pids := s.knownPIDs()
	for i := len(pids) - 1; i >= 0; i-- {
		if table.alive(pids[i]) {
			signalPID(pids[i], sig)
		}
	}
	if !s.child.exited() {
		_ = s.child.proc.Signal(sig)
	}
}

// waitTree polls until the root has exited and every known descendant is
// gone, or timeout elapses.
func (s *Shutdown) waitTree(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	done := s.child.done

	for {
		if s.prune() {
			return true
		}
		select {
		case <-deadline.C:
			return s.prune()
		case <-ticker.C:
		case <-done:
			done = nil
		}
	}
}

func (s *Shutdown) prune() bool {
	if len(s.known) > 0 {
		table := snapshotProcesses()
		for pid := range s.known {
			if !table.alive(pid) {
				delete(s.known, pid)
			}
		}
	}
	return s.child.exited() && len(s.known) == 0
}

func (s *Shutdown) knownPIDs() []int {
	pids := make([]int, 0, len(s.known))
	for pid := range s.known {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}
