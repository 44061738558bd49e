// Package supervisor runs one stage of a task: it records a session,
// starts the external agent with the rendered prompt, waits until the agent
// reports completion through metagent finish, exits, or metagent is
// interrupted, and then makes sure the agent's whole process tree is gone.
package supervisor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/logging"
	"github.com/iskng/metagent/internal/state"
)

// Environment variables exported to the agent process.
const (
	EnvAgent    = "METAGENT_AGENT"
	EnvSession  = state.SessionEnv
	EnvRepoRoot = state.RepoRootEnv
	EnvTask     = "METAGENT_TASK"
)

// OutcomeKind says how a stage attempt ended.
type OutcomeKind int

const (
	// Finished: the session was marked finished by metagent finish.
	Finished OutcomeKind = iota
	// Interrupted: metagent received an interrupt or its context ended.
	Interrupted
	// NoFinish: the agent exited without finishing; the session is failed.
	NoFinish
)

func (k OutcomeKind) String() string {
	switch k {
	case Finished:
		return "finished"
	case Interrupted:
		return "interrupted"
	case NoFinish:
		return "no-finish"
	default:
		return "unknown"
	}
}

// Outcome is the result of RunStage. Session is the final session record.
type Outcome struct {
	Kind    OutcomeKind
	Session state.Session
}

// Options tune polling and the shutdown escalation.
type Options struct {
	PollInterval      time.Duration
	InterruptAttempts int
	InterruptWait     time.Duration
	TerminateWait     time.Duration
	KillWait          time.Duration
	WatchSessions     bool
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		PollInterval:      500 * time.Millisecond,
		InterruptAttempts: 3,
		InterruptWait:     500 * time.Millisecond,
		TerminateWait:     time.Second,
		KillWait:          time.Second,
		WatchSessions:     true,
	}
}

// StageRequest describes one stage attempt. Prompt is called with the new
// session id and returns the prompt passed as the agent's final argument.
type StageRequest struct {
	Task    string
	Stage   string
	Command string
	Args    []string
	Prompt  func(sessionID string) (string, error)
}

// Supervisor runs stage attempts for one agent root.
type Supervisor struct {
	store    *state.Store
	agent    string
	repoRoot string
	host     string
	opts     Options
	logger   *logging.Logger

	stdin          io.Reader
	stdout, stderr io.Writer
	interrupted    func() bool
}

// New returns a supervisor writing sessions to store.
func New(store *state.Store, agent, repoRoot string, opts Options, logger *logging.Logger) *Supervisor {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.InterruptAttempts <= 0 {
		opts.InterruptAttempts = DefaultOptions().InterruptAttempts
	}
	return &Supervisor{
		store:       store,
		agent:       agent,
		repoRoot:    repoRoot,
		host:        host,
		opts:        opts,
		logger:      logger,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interrupted: IsInterrupted,
	}
}

// SetIO replaces the agent's standard streams, which default to metagent's.
func (s *Supervisor) SetIO(stdin io.Reader, stdout, stderr io.Writer) {
	s.stdin, s.stdout, s.stderr = stdin, stdout, stderr
}

// RunStage creates a Running session, starts the agent and supervises it
// until an outcome is reached. The terminal state is restored afterwards.
func (s *Supervisor) RunStage(ctx context.Context, req StageRequest) (Outcome, error) {
	guard := CaptureTerminal()
	defer guard.Restore()

	log := s.logger.WithStage(req.Stage)
	if req.Task != "" {
		log = log.WithTask(req.Task)
	}

	id := state.NewSessionID()
	var task *string
	if req.Task != "" {
		task = state.Ptr(req.Task)
	}
	sess, err := s.store.CreateSession(id, s.agent, task, req.Stage, os.Getpid(), s.host, s.repoRoot)
	if err != nil {
		return Outcome{}, err
	}
	log = log.WithSession(id)

	prompt, err := req.Prompt(id)
	if err != nil {
		s.markFailed(id)
		return Outcome{}, err
	}

	args := append(append([]string(nil), req.Args...), prompt)
	cmd := exec.Command(req.Command, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = s.stdin, s.stdout, s.stderr
	cmd.Dir = s.repoRoot
	cmd.Env = append(os.Environ(),
		EnvAgent+"="+s.agent,
		EnvSession+"="+id,
		EnvRepoRoot+"="+s.repoRoot,
	)
	if req.Task != "" {
		cmd.Env = append(cmd.Env, EnvTask+"="+req.Task)
	}
	if err := cmd.Start(); err != nil {
		s.markFailed(id)
		return Outcome{}, errors.ExternalProcess("Failed to start model process", err)
	}
	log.Info("agent started", "command", req.Command, "pid", cmd.Process.Pid)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	c := &child{proc: cmd.Process, done: done}

	wake, closeWatch := s.watchSession(id, log)
	defer closeWatch()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if s.interrupted() || ctx.Err() != nil {
			log.Info("stage interrupted")
			newShutdown(c, s.opts, log).Run()
			return Outcome{Kind: Interrupted, Session: sess}, nil
		}
		if current, ok := s.finished(id); ok {
			log.Info("stage finished")
			newShutdown(c, s.opts, log).Run()
			return Outcome{Kind: Finished, Session: current}, nil
		}
		select {
		case <-done:
		case <-ticker.C:
			continue
		case <-ctx.Done():
			continue
		case <-wake:
			continue
		}
		break
	}

	if current, ok := s.finished(id); ok {
		log.Info("stage finished")
		return Outcome{Kind: Finished, Session: current}, nil
	}
	log.Warn("agent exited without finishing")
	failed := s.markFailed(id)
	return Outcome{Kind: NoFinish, Session: failed}, nil
}

func (s *Supervisor) finished(id string) (state.Session, bool) {
	sess, err := s.store.LoadSession(id)
	if err != nil || sess.Status != state.SessionFinished {
		return state.Session{}, false
	}
	return sess, true
}

func (s *Supervisor) markFailed(id string) state.Session {
	sess, err := s.store.UpdateSession(id, func(sess *state.Session) error {
		if err := sess.Transition(state.SessionFailed); err != nil {
			return err
		}
		sess.FinishedAt = state.Ptr(state.NowISO())
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to mark session failed", "session_id", id, "error", err.Error())
	}
	return sess
}

// watchSession returns a channel that receives when anything changes in
// the session's directory. finish replaces session.json by rename, which
// shows up as a create event. Without a watcher the channel never fires
// and the poll interval alone drives the loop.
func (s *Supervisor) watchSession(id string, log *logging.Logger) (<-chan struct{}, func()) {
	if !s.opts.WatchSessions {
		return nil, func() {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug("session watch unavailable", "error", err.Error())
		return nil, func() {}
	}
	if err := watcher.Add(s.store.SessionDir(id)); err != nil {
		log.Debug("session watch unavailable", "error", err.Error())
		_ = watcher.Close()
		return nil, func() {}
	}

	wake := make(chan struct{}, 1)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debug("session watch error", "error", err.Error())
			}
		}
	}()
	return wake, func() {
		close(stop)
		_ = watcher.Close()
	}
}
