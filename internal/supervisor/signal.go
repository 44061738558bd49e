package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// interrupted is set once SIGINT or SIGTERM reaches metagent and stays set
// for the life of the process.
var interrupted atomic.Bool

// IsInterrupted reports whether an interrupt has been received.
func IsInterrupted() bool {
	return interrupted.Load()
}

// InstallSignalHandler records SIGINT and SIGTERM in the interrupt flag
// and cancels the returned context. The agent shares the terminal's process
// group, so it sees the same Ctrl+C; metagent only notes it and lets
// RunStage shut the tree down. stop releases the handler.
func InstallSignalHandler(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			interrupted.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}
