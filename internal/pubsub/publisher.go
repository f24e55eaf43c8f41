package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/panebus/internal/errors"
	"github.com/Iron-Ham/panebus/internal/logging"
)

const (
	// DefaultLinger is how long Close waits for outbound data before dropping it.
	DefaultLinger = time.Second

	// DefaultSettleDelay is the pause between connecting and the first send.
	// A freshly connected PUB socket drops messages until the subscriber's
	// subscription has reached it.
	DefaultSettleDelay = 100 * time.Millisecond
)

// Event is an opaque mapping serialized as one JSON message.
type Event map[string]any

// Option configures a Publisher.
type Option func(*publisherConfig)

type publisherConfig struct {
	linger      time.Duration
	settleDelay time.Duration
	logger      *logging.Logger
}

func defaultPublisherConfig() publisherConfig {
	return publisherConfig{
		linger:      DefaultLinger,
		settleDelay: DefaultSettleDelay,
	}
}

// WithLinger sets the close grace period for outbound data.
// Negative values are treated as zero.
func WithLinger(d time.Duration) Option {
	return func(c *publisherConfig) {
		c.linger = max(d, 0)
	}
}

// WithSettleDelay sets the pause between connecting and marking the publisher
// connected. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return func(c *publisherConfig) {
		c.settleDelay = max(d, 0)
	}
}

// WithLogger sets the logger used for connection and send diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(c *publisherConfig) {
		c.logger = logger
	}
}

// connectAttempt is a single in-flight connect. done is closed once err is set.
type connectAttempt struct {
	done chan struct{}
	err  error

	// abandoned is set by Disconnect while the attempt is running; guarded by Publisher.mu.
	abandoned bool
}

// Publisher owns one outbound bus connection and a FIFO buffer of events
// waiting for it. It is safe for concurrent use.
type Publisher struct {
	endpoint Endpoint
	dialer   Dialer
	cfg      publisherConfig
	logger   *logging.Logger

	mu        sync.Mutex
	sock      Socket
	connected bool // implies sock != nil
	pending   []Event
	attempt   *connectAttempt

	// abandoned is the attempt the last Disconnect cut loose; Wait reports it
	// until a new attempt starts.
	abandoned *connectAttempt
}

// NewPublisher creates an unconnected Publisher for endpoint.
func NewPublisher(endpoint Endpoint, dialer Dialer, opts ...Option) *Publisher {
	cfg := defaultPublisherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Publisher{
		endpoint: endpoint,
		dialer:   dialer,
		cfg:      cfg,
		logger:   logger.WithComponent("publisher").WithEndpoint(endpoint.Address()),
	}
}

// Endpoint returns the endpoint this publisher sends to.
func (p *Publisher) Endpoint() Endpoint {
	return p.endpoint
}

// Connected reports whether the publisher currently holds a usable connection.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Pending returns a copy of the buffered events in send order.
func (p *Publisher) Pending() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.pending...)
}

// Connect establishes the bus connection and drains buffered events.
// It returns nil immediately when already connected. Concurrent callers share
// one attempt, which runs under the context of the caller that started it. A
// caller whose context is still live when a shared attempt ends because the
// starting caller's context expired starts a new attempt of its own. On
// failure the publisher stays unconnected and keeps its buffer.
func (p *Publisher) Connect(ctx context.Context) error {
	for {
		a, owner := p.beginConnect()
		if a == nil {
			return nil
		}
		if owner {
			p.runConnect(ctx, a)
		}

		select {
		case <-a.done:
			if !owner && ctx.Err() == nil && isContextError(a.err) {
				continue
			}
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Wait blocks until the connect attempt in flight, if any, has finished and
// returns its result. After Disconnect cut an attempt loose, Wait returns
// ErrAbandoned for it until the next attempt starts.
func (p *Publisher) Wait(ctx context.Context) error {
	p.mu.Lock()
	a := p.attempt
	if a == nil {
		a = p.abandoned
	}
	p.mu.Unlock()
	if a == nil {
		return nil
	}

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends ev, or buffers it while unconnected and starts a background
// connect if none is running. Connection and send failures are logged, never
// returned; a send failure re-queues ev at the tail of the buffer. The only
// error returned is for an event that cannot be serialized.
func (p *Publisher) Publish(ev Event) error {
	p.mu.Lock()
	if !p.connected {
		p.pending = append(p.pending, ev)
		idle := p.attempt == nil
		p.mu.Unlock()

		if idle {
			p.connectInBackground()
		}
		return nil
	}
	defer p.mu.Unlock()
	return p.sendLocked(ev)
}

// Disconnect closes the connection. Buffered events are kept and replay on the
// next connect. A connect attempt still running is abandoned and closes its
// socket when it finishes. Close failures are logged.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	if p.attempt != nil {
		p.attempt.abandoned = true
		p.abandoned = p.attempt
		p.attempt = nil
	}
	sock := p.sock
	p.sock = nil
	p.connected = false
	p.mu.Unlock()

	if sock == nil {
		return
	}
	if err := sock.Close(); err != nil {
		p.logFailure("close failed", errors.NewPublishError("close", err).
			WithSeverity(errors.SeverityWarning))
		return
	}
	p.logger.Debug("disconnected")
}

// beginConnect returns the attempt to wait on and whether the caller owns it.
// It returns nil when already connected.
func (p *Publisher) beginConnect() (*connectAttempt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return nil, false
	}
	if p.attempt != nil {
		return p.attempt, false
	}
	p.attempt = &connectAttempt{done: make(chan struct{})}
	p.abandoned = nil
	return p.attempt, true
}

func (p *Publisher) connectInBackground() {
	a, owner := p.beginConnect()
	if !owner {
		return
	}
	go func() {
		p.runConnect(context.Background(), a)
		if a.err != nil {
			p.logFailure("background connect failed", a.err, "pending", len(p.Pending()))
		}
	}()
}

// runConnect performs attempt a and publishes its outcome.
func (p *Publisher) runConnect(ctx context.Context, a *connectAttempt) {
	var sock Socket
	var err error
	var pc panics.Catcher
	pc.Try(func() { sock, err = p.open(ctx) })
	if r := pc.Recovered(); r != nil {
		sock, err = nil, errors.NewPublishError("connect panicked", r.AsError()).
			WithEndpoint(p.endpoint.Address())
	}

	var orphan Socket
	p.mu.Lock()
	if p.attempt == a {
		p.attempt = nil
	}
	switch {
	case err != nil:
	case a.abandoned:
		orphan = sock
		err = errors.NewPublishError("disconnected while connecting", errors.ErrAbandoned).
			WithEndpoint(p.endpoint.Address()).
			WithSeverity(errors.SeverityDebug)
	default:
		p.sock = sock
		p.connected = true
		p.logger.Debug("connected", "pending", len(p.pending))
		p.drainLocked()
	}
	p.mu.Unlock()

	if orphan != nil {
		if cerr := orphan.Close(); cerr != nil {
			p.logFailure("close failed", errors.NewPublishError("close", cerr).
				WithSeverity(errors.SeverityWarning))
		}
	}

	a.err = err
	close(a.done)
}

// open creates the endpoint directory, dials, and waits out the settle delay.
func (p *Publisher) open(ctx context.Context) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := p.endpoint.Address()

	if err := p.endpoint.ensureDir(); err != nil {
		return nil, errors.NewPublishError("create socket directory",
			fmt.Errorf("%w: %w", errors.ErrConnectFailed, err)).WithEndpoint(addr)
	}

	sock, err := p.dialer.Dial(ctx, p.endpoint, p.cfg.linger)
	if err != nil {
		// Nobody bound to the endpoint yet is routine; the buffer waits for them.
		return nil, errors.NewPublishError("dial",
			fmt.Errorf("%w: %w", errors.ErrConnectFailed, err)).
			WithEndpoint(addr).
			WithRetryable(true).
			WithSeverity(errors.SeverityWarning)
	}

	if p.cfg.settleDelay > 0 {
		timer := time.NewTimer(p.cfg.settleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			_ = sock.Close()
			return nil, ctx.Err()
		}
	}
	return sock, nil
}

// drainLocked sends the buffered events in order. Events whose send fails are
// appended to the (now empty) buffer again, keeping their relative order.
func (p *Publisher) drainLocked() {
	queued := p.pending
	p.pending = nil
	for _, ev := range queued {
		if err := p.sendLocked(ev); err != nil {
			p.logFailure("dropping buffered event", err)
		}
	}
}

// sendLocked serializes and sends one event. Unserializable events are
// returned as errors and not buffered; send failures are logged and re-queued.
func (p *Publisher) sendLocked(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.NewPublishError("encode event", err).
			WithEndpoint(p.endpoint.Address()).
			WithEventType(eventType(ev))
	}

	if err := p.sock.Send(payload); err != nil {
		p.pending = append(p.pending, ev)
		p.logFailure("send failed, event re-queued",
			errors.NewPublishError("send", fmt.Errorf("%w: %w", errors.ErrSendFailed, err)).
				WithEventType(eventType(ev)).
				WithRetryable(true).
				WithSeverity(errors.SeverityWarning),
			"pending", len(p.pending))
	}
	return nil
}

func eventType(ev Event) string {
	if t, ok := ev["type"].(string); ok {
		return t
	}
	return ""
}

// logFailure logs err at the level its severity calls for.
func (p *Publisher) logFailure(msg string, err error, args ...any) {
	logBySeverity(p.logger, msg, err, args...)
}

func logBySeverity(logger *logging.Logger, msg string, err error, args ...any) {
	args = append([]any{"error", err}, args...)
	switch errors.GetSeverity(err) {
	case errors.SeverityDebug:
		logger.Debug(msg, args...)
	case errors.SeverityWarning:
		logger.Warn(msg, args...)
	default:
		logger.Error(msg, args...)
	}
}
