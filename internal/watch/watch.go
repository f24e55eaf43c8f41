// Package watch turns tmux session state into session lifecycle events.
//
// A Watcher polls the tmux server, compares each snapshot with the previous
// one and publishes an event for every difference it finds: sessions that
// appeared or vanished, renames, client attach and detach, and window count
// changes.
package watch

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/panebus/internal/event"
	"github.com/Iron-Ham/panebus/internal/logging"
	"github.com/Iron-Ham/panebus/internal/tmux"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = time.Second

// SessionLister returns the current tmux sessions.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]tmux.Session, error)
}

// ListerFunc adapts a function to SessionLister.
type ListerFunc func(ctx context.Context) ([]tmux.Session, error)

// ListSessions calls f.
func (f ListerFunc) ListSessions(ctx context.Context) ([]tmux.Session, error) {
	return f(ctx)
}

// TmuxLister lists the sessions of the tmux server on socket ("" for the
// default server).
func TmuxLister(socket string) SessionLister {
	return ListerFunc(func(ctx context.Context) ([]tmux.Session, error) {
		return tmux.ListSessions(ctx, socket)
	})
}

// Publisher receives the events a Watcher produces. *event.Bus satisfies it.
type Publisher interface {
	Publish(e event.Event)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the poll period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEmitInitial makes the first poll report every existing session as
// created instead of silently recording a baseline.
func WithEmitInitial(emit bool) Option {
	return func(w *Watcher) {
		w.emitInitial = emit
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// Watcher polls a SessionLister and publishes the differences between
// successive snapshots.
type Watcher struct {
	lister      SessionLister
	out         Publisher
	logger      *logging.Logger
	emitInitial bool

	intervalMu sync.Mutex
	interval   time.Duration
	reset      chan struct{}

	pollMu sync.Mutex
	known  map[string]tmux.Session // nil until the first successful poll
}

// New creates a Watcher that publishes to out.
func New(lister SessionLister, out Publisher, opts ...Option) *Watcher {
	w := &Watcher{
		lister:   lister,
		out:      out,
		interval: DefaultInterval,
		reset:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.NopLogger()
	}
	w.logger = w.logger.WithComponent("watch")
	return w
}

// Interval returns the current poll period.
func (w *Watcher) Interval() time.Duration {
	w.intervalMu.Lock()
	defer w.intervalMu.Unlock()
	return w.interval
}

// SetInterval changes the poll period. A running Run loop picks it up before
// its next tick. Non-positive values are ignored.
func (w *Watcher) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	w.intervalMu.Lock()
	changed := w.interval != d
	w.interval = d
	w.intervalMu.Unlock()

	if !changed {
		return
	}
	select {
	case w.reset <- struct{}{}:
	default:
	}
	w.logger.Debug("poll interval changed", "interval", d.String())
}

// Poll lists sessions once and publishes the events describing what changed
// since the previous successful poll. It returns the number of events
// published. On a list error nothing is published and the previous snapshot
// is kept.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	sessions, err := w.lister.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	current := make(map[string]tmux.Session, len(sessions))
	for _, s := range sessions {
		current[s.ID] = s
	}

	var events []event.Event
	if w.known == nil && !w.emitInitial {
		w.logger.Debug("recorded baseline", "sessions", len(current))
	} else {
		events = diff(w.known, current)
	}
	w.known = current

	for _, e := range events {
		w.out.Publish(e)
	}
	return len(events), nil
}

// Run polls immediately and then once per interval until ctx is done.
// Poll errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.poll(ctx)

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.reset:
			ticker.Reset(w.Interval())
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	n, err := w.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("list sessions failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.logger.Debug("published session events", "count", n)
	}
}

// diff returns the events turning prev into cur: changes and new sessions in
// session id order, followed by closed sessions in session id order.
func diff(prev, cur map[string]tmux.Session) []event.Event {
	var events []event.Event

	for _, id := range sortedIDs(cur) {
		s := cur[id]
		old, existed := prev[id]
		if !existed {
			events = append(events, event.NewSessionCreatedEvent(s.ID, s.Name, s.Created, s.Windows))
			if s.Attached > 0 {
				events = append(events, event.NewSessionAttachedEvent(s.ID, s.Name, s.Attached))
			}
			continue
		}

		if old.Name != s.Name {
			events = append(events, event.NewSessionRenamedEvent(s.ID, old.Name, s.Name))
		}
		switch {
		case old.Attached == 0 && s.Attached > 0:
			events = append(events, event.NewSessionAttachedEvent(s.ID, s.Name, s.Attached))
		case old.Attached > 0 && s.Attached == 0:
			events = append(events, event.NewSessionDetachedEvent(s.ID, s.Name))
		}
		if old.Windows != s.Windows {
			events = append(events, event.NewWindowCountChangedEvent(s.ID, s.Name, old.Windows, s.Windows))
		}
	}

	for _, id := range sortedIDs(prev) {
		if _, ok := cur[id]; !ok {
			events = append(events, event.NewSessionClosedEvent(id, prev[id].Name))
		}
	}
	return events
}

// sortedIDs orders tmux session ids ("$2" < "$10") numerically where possible.
func sortedIDs(sessions map[string]tmux.Session) []string {
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return strings.Compare(a, b)
	})
	return ids
}
