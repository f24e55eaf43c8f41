package pubsub

import (
	"context"
	"slices"
	"sync"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/panebus/internal/errors"
	"github.com/Iron-Ham/panebus/internal/event"
	"github.com/Iron-Ham/panebus/internal/logging"
)

// EventSource is anything that can deliver every event it sees to a handler.
// *event.Bus satisfies it.
type EventSource interface {
	SubscribeAll(handler event.Handler) string
}

// ShutdownHooks lets the host application run registry cleanup as part of its
// own shutdown sequence. shutdown.Hooks satisfies it.
type ShutdownHooks interface {
	OnShutdown(fn func())
}

// Options configures EnablePublishing.
type Options struct {
	// ZMQ enables publishing. When false EnablePublishing does nothing.
	ZMQ bool

	Endpoint EndpointOptions

	// Source overrides; PID and Hostname are filled in when zero.
	Source Source

	// Include holds glob patterns matched against event types, with "." as
	// the separator ("session.*", "**"). Empty forwards every event.
	Include []string
}

// Registry maps resolved endpoints to their single Publisher.
// It is safe for concurrent use.
type Registry struct {
	dialer Dialer
	opts   []Option
	logger *logging.Logger

	mu         sync.Mutex
	publishers map[string]*Publisher
}

// NewRegistry creates an empty registry. opts are applied to every Publisher
// it creates; the registry logs through the logger given with WithLogger.
func NewRegistry(dialer Dialer, opts ...Option) *Registry {
	cfg := defaultPublisherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Registry{
		dialer:     dialer,
		opts:       opts,
		logger:     logger.WithComponent("registry"),
		publishers: make(map[string]*Publisher),
	}
}

// Publisher returns the Publisher for the endpoint opts resolve to, creating
// and registering it on first use.
func (r *Registry) Publisher(opts EndpointOptions) (*Publisher, error) {
	endpoint, err := ResolveEndpoint(opts)
	if err != nil {
		return nil, err
	}
	return r.publisherFor(endpoint), nil
}

func (r *Registry) publisherFor(endpoint Endpoint) *Publisher {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := endpoint.Address()
	if p, ok := r.publishers[key]; ok {
		return p
	}
	p := NewPublisher(endpoint, r.dialer, r.opts...)
	r.publishers[key] = p
	r.logger.Debug("publisher created", "endpoint", key)
	return p
}

// Len returns the number of registered publishers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.publishers)
}

// Shutdown disconnects every registered publisher, one at a time, and empties
// the registry. Later Publisher calls construct fresh instances.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.publishers))
	for k := range r.publishers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pubs := make([]*Publisher, 0, len(keys))
	for _, k := range keys {
		pubs = append(pubs, r.publishers[k])
	}
	r.publishers = make(map[string]*Publisher)
	r.mu.Unlock()

	for _, p := range pubs {
		if n := len(p.Pending()); n > 0 {
			r.logger.Warn("discarding undelivered events", "endpoint", p.Endpoint().Address(), "count", n)
		}
		p.Disconnect()
	}
	r.logger.Debug("registry shut down", "publishers", len(pubs))
}

// EnablePublishing forwards every event of src to the bus publisher selected
// by opts. It connects eagerly; a failed connect is logged and events are
// buffered until a later attempt succeeds. Each forwarded event is the
// event.Record of the original with its "source" set to the Source built from
// opts. Registry shutdown is registered on hooks (which may be nil).
//
// With opts.ZMQ false nothing is connected, subscribed or registered. The
// returned error reports invalid endpoint or include options only.
func (r *Registry) EnablePublishing(ctx context.Context, src EventSource, hooks ShutdownHooks, opts Options) error {
	if !opts.ZMQ {
		r.logger.Debug("publishing disabled")
		return nil
	}

	match, err := compileInclude(opts.Include)
	if err != nil {
		return err
	}
	endpoint, err := ResolveEndpoint(opts.Endpoint)
	if err != nil {
		return err
	}

	pub := r.publisherFor(endpoint)
	if err := pub.Connect(ctx); err != nil {
		logBySeverity(r.logger, "initial connect failed, buffering events", err, "endpoint", endpoint.Address())
	}

	source := NewSource(opts.Source)
	src.SubscribeAll(func(e event.Event) {
		if !match(e.EventType()) {
			return
		}
		// Looked up per event so events after a Shutdown land on a registered publisher.
		p := r.publisherFor(endpoint)
		if err := p.Publish(source.stamp(event.Record(e))); err != nil {
			logBySeverity(r.logger, "publish failed", err, "event_type", e.EventType())
		}
	})

	if hooks != nil {
		hooks.OnShutdown(r.Shutdown)
	}
	return nil
}

// compileInclude builds a matcher from glob patterns. No patterns match everything.
func compileInclude(patterns []string) (func(string) bool, error) {
	if len(patterns) == 0 {
		return func(string) bool { return true }, nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, errors.NewValidationError("invalid include pattern").
				WithField("publish.include").
				WithValue(pattern).
				WithCause(err)
		}
		globs = append(globs, g)
	}

	return func(eventType string) bool {
		for _, g := range globs {
			if g.Match(eventType) {
				return true
			}
		}
		return false
	}, nil
}
