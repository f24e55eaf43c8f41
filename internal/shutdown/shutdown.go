// Package shutdown runs cleanup functions exactly once, either when the
// process receives a termination signal or when the program exits normally.
//
// Libraries register cleanup through OnShutdown and never touch process
// signal handling themselves; the command layer owns the Hooks value and
// decides when it fires.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/panebus/internal/logging"
)

// DefaultSignals are the signals Listen reacts to when none are given.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Hooks collects shutdown functions. The zero value is not usable; use New.
type Hooks struct {
	logger *logging.Logger

	// Replaced in tests.
	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)

	mu   sync.Mutex
	fns  []func()
	ran  bool
	once sync.Once
}

// New creates an empty Hooks. A nil logger discards output.
func New(logger *logging.Logger) *Hooks {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Hooks{
		logger: logger.WithComponent("shutdown"),
		notify: signal.Notify,
		stop:   signal.Stop,
	}
}

// OnShutdown registers fn. Functions run in registration order.
// Registering after Run has started is a no-op.
func (h *Hooks) OnShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ran {
		h.logger.Warn("shutdown hook registered after shutdown, ignoring")
		return
	}
	h.fns = append(h.fns, fn)
}

// Len returns the number of registered functions.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fns)
}

// Run calls every registered function once. Later calls do nothing.
// A panicking function is logged and the remaining functions still run.
func (h *Hooks) Run() {
	h.once.Do(func() {
		h.mu.Lock()
		h.ran = true
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()

		for i, fn := range fns {
			var pc panics.Catcher
			pc.Try(fn)
			if r := pc.Recovered(); r != nil {
				h.logger.Error("shutdown hook panicked",
					"hook", i,
					"error", r.AsError(),
					"stack", string(r.Stack))
			}
		}
		h.logger.Debug("shutdown hooks complete", "count", len(fns))
	})
}

// Listen installs a handler for sigs (DefaultSignals when empty) and returns a
// context derived from parent. On the first signal the handler is removed, the
// hooks run and the context is cancelled. A second signal gets the default OS
// behaviour. Calling the returned cancel function removes the handler without
// running the hooks.
func (h *Hooks) Listen(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = DefaultSignals
	}

	ch := make(chan os.Signal, 1)
	h.notify(ch, sigs...)

	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case sig := <-ch:
			h.stop(ch)
			h.logger.Info("received signal, shutting down", "signal", sig.String())
			h.Run()
			cancel()
		case <-ctx.Done():
			h.stop(ch)
		}
	}()
	return ctx, cancel
}
