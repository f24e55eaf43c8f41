package pubsub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	perrors "github.com/Iron-Ham/panebus/internal/errors"
	"github.com/Iron-Ham/panebus/internal/logging"
)

func newTestPublisher(t *testing.T, d Dialer, opts ...Option) *Publisher {
	t.Helper()
	opts = append([]Option{WithSettleDelay(0), WithLinger(0)}, opts...)
	return NewPublisher(testEndpoint(t, "bus"), d, opts...)
}

func TestPublisher_PublishBeforeConnectBuffers(t *testing.T) {
	d := &fakeDialer{}
	release := d.Block()
	p := newTestPublisher(t, d)

	if err := p.Publish(Event{"type": "start"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := p.Publish(Event{"type": "stop"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	pending := p.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending events, got %d", len(pending))
	}
	if pending[0]["type"] != "start" || pending[1]["type"] != "stop" {
		t.Errorf("pending out of order: %v", pending)
	}
	if p.Connected() {
		t.Error("publisher should not be connected yet")
	}

	close(release)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	sent := d.Socket(0).Sent()
	want := []string{`{"type":"start"}`, `{"type":"stop"}`}
	if len(sent) != len(want) {
		t.Fatalf("sent = %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("sent[%d] = %s, want %s", i, sent[i], want[i])
		}
	}
	if len(p.Pending()) != 0 {
		t.Errorf("expected empty buffer after drain, got %v", p.Pending())
	}
}

func TestPublisher_DrainPrecedesNewEvents(t *testing.T) {
	d := &fakeDialer{}
	d.SetErr(errors.New("connection refused"))
	p := newTestPublisher(t, d)

	_ = p.Publish(Event{"type": "a"})
	_ = p.Wait(context.Background())
	if d.Dials() != 1 {
		t.Fatalf("expected 1 dial after first publish, got %d", d.Dials())
	}
	_ = p.Publish(Event{"type": "b"})
	_ = p.Wait(context.Background())
	if d.Dials() != 2 {
		t.Fatalf("expected a new attempt on the next publish, got %d dials", d.Dials())
	}

	if got := len(p.Pending()); got != 2 {
		t.Fatalf("expected 2 pending events after failed connects, got %d", got)
	}

	d.SetErr(nil)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := p.Publish(Event{"type": "c"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	sent := d.Socket(0).Sent()
	want := []string{`{"type":"a"}`, `{"type":"b"}`, `{"type":"c"}`}
	if strings.Join(sent, ",") != strings.Join(want, ",") {
		t.Errorf("sent = %v, want %v", sent, want)
	}
}

func TestPublisher_PublishDuringConnectKeepsOrder(t *testing.T) {
	d := &fakeDialer{}
	release := d.Block()
	p := newTestPublisher(t, d)

	for i := range 5 {
		_ = p.Publish(Event{"n": i})
	}
	close(release)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	for i := 5; i < 10; i++ {
		_ = p.Publish(Event{"n": i})
	}

	sent := d.Socket(0).Sent()
	if len(sent) != 10 {
		t.Fatalf("expected 10 sent events, got %d", len(sent))
	}
	for i, s := range sent {
		if want := fmt.Sprintf(`{"n":%d}`, i); s != want {
			t.Errorf("sent[%d] = %s, want %s", i, s, want)
		}
	}
}

func TestPublisher_SendFailureRequeues(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPublisher(t, d)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	sock := d.Socket(0)
	sock.FailNext(1)

	if err := p.Publish(Event{"type": "x"}); err != nil {
		t.Fatalf("Publish() should swallow send failures, got %v", err)
	}
	if !p.Connected() {
		t.Error("send failure must not demote the publisher")
	}
	if err := p.Publish(Event{"type": "y"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	pending := p.Pending()
	if len(pending) != 1 || pending[0]["type"] != "x" {
		t.Fatalf("pending = %v, want [x]", pending)
	}
	if sent := sock.Sent(); len(sent) != 1 || sent[0] != `{"type":"y"}` {
		t.Errorf("sent = %v, want [y]", sent)
	}

	// The re-queued event replays on the next connection.
	p.Disconnect()
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if sent := d.Socket(1).Sent(); len(sent) != 1 || sent[0] != `{"type":"x"}` {
		t.Errorf("replayed = %v, want [x]", sent)
	}
	if len(p.Pending()) != 0 {
		t.Errorf("expected empty buffer, got %v", p.Pending())
	}
}

func TestPublisher_SendFailureDuringDrainKeepsRelativeOrder(t *testing.T) {
	d := &fakeDialer{}
	d.SetErr(errors.New("refused"))
	p := newTestPublisher(t, d)

	for _, typ := range []string{"a", "b", "c"} {
		_ = p.Publish(Event{"type": typ})
		_ = p.Wait(context.Background())
	}

	// Fail the first two sends of the drain.
	d.SetErr(nil)

	sockFailing := DialerFunc(func(ctx context.Context, ep Endpoint, linger time.Duration) (Socket, error) {
		s, err := d.Dial(ctx, ep, linger)
		if err != nil {
			return nil, err
		}
		s.(*fakeSocket).FailNext(2)
		return s, nil
	})
	p.dialer = sockFailing

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	pending := p.Pending()
	if len(pending) != 2 || pending[0]["type"] != "a" || pending[1]["type"] != "b" {
		t.Errorf("pending = %v, want [a b]", pending)
	}
	if sent := d.Socket(0).Sent(); len(sent) != 1 || sent[0] != `{"type":"c"}` {
		t.Errorf("sent = %v, want [c]", sent)
	}
}

func TestPublisher_ConnectIdempotent(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPublisher(t, d)

	for range 3 {
		if err := p.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}
	if d.Dials() != 1 {
		t.Errorf("expected 1 dial, got %d", d.Dials())
	}
}

func TestPublisher_ConnectFailure(t *testing.T) {
	d := &fakeDialer{}
	d.SetErr(errors.New("connection refused"))
	p := newTestPublisher(t, d)

	err := p.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect() to fail")
	}
	if !perrors.Is(err, perrors.ErrConnectFailed) {
		t.Errorf("expected ErrConnectFailed, got %v", err)
	}
	if !perrors.IsRetryable(err) {
		t.Error("dial failures should be retryable")
	}
	if p.Connected() {
		t.Error("publisher must stay unconnected after a failed connect")
	}

	// A later attempt can still succeed.
	d.SetErr(nil)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if !p.Connected() {
		t.Error("expected publisher to be connected")
	}
}

func TestPublisher_SingleFlightConnect(t *testing.T) {
	d := &fakeDialer{}
	release := d.Block()
	p := newTestPublisher(t, d)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 4 {
		wg.Go(func() {
			errs <- p.Connect(context.Background())
		})
		wg.Go(func() {
			_ = p.Publish(Event{"type": "e"})
		})
	}

	waitFor(t, func() bool { return d.Dials() >= 1 })
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Connect() error = %v", err)
		}
	}
	if d.Dials() != 1 {
		t.Errorf("expected exactly 1 dial, got %d", d.Dials())
	}
	waitFor(t, func() bool { return len(d.Socket(0).Sent()) == 4 })
}

func TestPublisher_DisconnectKeepsPending(t *testing.T) {
	d := &fakeDialer{}
	d.SetErr(errors.New("refused"))
	p := newTestPublisher(t, d)

	_ = p.Publish(Event{"type": "keep"})
	_ = p.Wait(context.Background())

	p.Disconnect()
	p.Disconnect()

	if pending := p.Pending(); len(pending) != 1 || pending[0]["type"] != "keep" {
		t.Errorf("pending = %v, want [keep]", pending)
	}
}

func TestPublisher_DisconnectClosesSocket(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPublisher(t, d)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	p.Disconnect()

	if !d.Socket(0).Closed() {
		t.Error("expected socket to be closed")
	}
	if p.Connected() {
		t.Error("expected publisher to be disconnected")
	}

	// Second disconnect is a no-op.
	p.Disconnect()
}

func TestPublisher_DisconnectAbandonsInFlightConnect(t *testing.T) {
	d := &fakeDialer{}
	release := d.Block()
	p := newTestPublisher(t, d)

	_ = p.Publish(Event{"type": "a"})
	waitFor(t, func() bool { return d.Dials() == 1 })

	p.Disconnect()
	close(release)

	waitFor(t, func() bool {
		s := d.Socket(0)
		return s != nil && s.Closed()
	})
	if p.Connected() {
		t.Error("abandoned connect must not mark the publisher connected")
	}
	if len(p.Pending()) != 1 {
		t.Errorf("expected pending event to survive, got %v", p.Pending())
	}
	if sent := d.Socket(0).Sent(); len(sent) != 0 {
		t.Errorf("abandoned socket should not send, sent %v", sent)
	}
}

func TestPublisher_CloseFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	d := &fakeDialer{}
	p := newTestPublisher(t, d, WithLogger(logging.NewWriterLogger(&buf, logging.LevelDebug)))

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	d.Socket(0).closeErr = errors.New("socket busy")

	p.Disconnect()

	if p.Connected() {
		t.Error("expected publisher to be disconnected despite close failure")
	}
	if !strings.Contains(buf.String(), "close failed") {
		t.Errorf("expected close failure to be logged, got %q", buf.String())
	}
}

func TestPublisher_UnserializableEvent(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPublisher(t, d)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := p.Publish(Event{"type": "bad", "ch": make(chan int)})
	if err == nil {
		t.Fatal("expected an encode error")
	}
	var pubErr *perrors.PublishError
	if !perrors.As(err, &pubErr) || pubErr.EventType != "bad" {
		t.Errorf("expected PublishError for event bad, got %v", err)
	}
	if len(p.Pending()) != 0 {
		t.Error("unserializable events must not be buffered")
	}
}

func TestPublisher_SettleDelay(t *testing.T) {
	d := &fakeDialer{}
	p := NewPublisher(testEndpoint(t, "bus"), d, WithSettleDelay(50*time.Millisecond))

	start := time.Now()
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Connect() returned after %v, want at least 50ms", elapsed)
	}
}

func TestPublisher_ContextCancelledDuringSettle(t *testing.T) {
	d := &fakeDialer{}
	p := NewPublisher(testEndpoint(t, "bus"), d, WithSettleDelay(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Connect(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect() error = %v, want deadline exceeded", err)
	}
	if p.Connected() {
		t.Error("publisher must not be connected")
	}
	if !d.Socket(0).Closed() {
		t.Error("socket opened before cancellation should be closed")
	}
}

func TestPublisher_LingerPassedToDialer(t *testing.T) {
	d := &fakeDialer{}
	p := NewPublisher(testEndpoint(t, "bus"), d, WithSettleDelay(0), WithLinger(750*time.Millisecond))

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if d.linger != 750*time.Millisecond {
		t.Errorf("linger = %v, want 750ms", d.linger)
	}
}

func TestPublisher_DialerPanicRecovered(t *testing.T) {
	d := DialerFunc(func(ctx context.Context, ep Endpoint, linger time.Duration) (Socket, error) {
		panic("transport exploded")
	})
	p := newTestPublisher(t, d)

	err := p.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect() to report the panic")
	}
	if !strings.Contains(err.Error(), "connect panicked") {
		t.Errorf("unexpected error: %v", err)
	}
	if p.Connected() {
		t.Error("publisher must not be connected")
	}
}

func TestPublisher_CreatesSocketDirectory(t *testing.T) {
	d := &fakeDialer{}
	dir := filepath.Join(t.TempDir(), "nested", "run")
	p := NewPublisher(Endpoint{Path: filepath.Join(dir, "bus")}, d, WithSettleDelay(0))

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("socket directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}
}

func TestPublisher_WaitWithoutAttempt(t *testing.T) {
	p := newTestPublisher(t, &fakeDialer{})
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait() with no attempt = %v, want nil", err)
	}
}

func TestPublisher_WaitReportsAbandonedAttempt(t *testing.T) {
	d := &fakeDialer{}
	release := d.Block()
	p := newTestPublisher(t, d)

	_ = p.Publish(Event{"type": "a"})
	waitFor(t, func() bool { return d.Dials() == 1 })

	p.Disconnect()
	close(release)

	if err := p.Wait(context.Background()); !perrors.Is(err, perrors.ErrAbandoned) {
		t.Fatalf("Wait() after Disconnect = %v, want ErrAbandoned", err)
	}
	// Still reported once the attempt has finished.
	if err := p.Wait(context.Background()); !perrors.Is(err, perrors.ErrAbandoned) {
		t.Errorf("second Wait() = %v, want ErrAbandoned", err)
	}

	// A new attempt replaces it.
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait() after reconnect = %v, want nil", err)
	}
	if sent := d.Socket(1).Sent(); len(sent) != 1 || sent[0] != `{"type":"a"}` {
		t.Errorf("sent = %v, want [a]", sent)
	}
}

func TestPublisher_JoinedConnectOutlivesStarterDeadline(t *testing.T) {
	d := &fakeDialer{}
	release := d.Block()
	p := newTestPublisher(t, d)

	starterCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	starter := make(chan error, 1)
	go func() { starter <- p.Connect(starterCtx) }()
	waitFor(t, func() bool { return d.Dials() == 1 })

	joined := make(chan error, 1)
	go func() { joined <- p.Connect(context.Background()) }()

	if err := <-starter; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("starter Connect() = %v, want context.DeadlineExceeded", err)
	}
	close(release)

	select {
	case err := <-joined:
		if err != nil {
			t.Fatalf("joined Connect() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("joined Connect() did not return")
	}
	if !p.Connected() {
		t.Error("expected publisher to be connected")
	}
}

func TestPublisher_FailuresLoggedBySeverity(t *testing.T) {
	var buf safeBuffer
	d := &fakeDialer{}
	d.SetErr(errors.New("no such file"))
	p := newTestPublisher(t, d, WithLogger(logging.NewWriterLogger(&buf, logging.LevelDebug)))

	_ = p.Publish(Event{"type": "a"})
	_ = p.Wait(context.Background())
	waitFor(t, func() bool { return strings.Contains(buf.String(), "background connect failed") })

	line := logLine(t, buf.String(), "background connect failed")
	if !strings.Contains(line, `"level":"WARN"`) {
		t.Errorf("unreachable bus should log a warning, got %s", line)
	}

	release := d.Block()
	d.SetErr(nil)
	_ = p.Publish(Event{"type": "b"})
	waitFor(t, func() bool { return d.Dials() == 2 })
	p.Disconnect()
	close(release)
	waitFor(t, func() bool { return strings.Count(buf.String(), "background connect failed") == 2 })

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	if !strings.Contains(last, "background connect failed") || !strings.Contains(last, `"level":"DEBUG"`) {
		t.Errorf("abandoned attempt should log at debug, got %s", last)
	}
}

// logLine returns the first log line containing msg.
func logLine(t *testing.T, out, msg string) string {
	t.Helper()
	for line := range strings.Lines(out) {
		if strings.Contains(line, msg) {
			return line
		}
	}
	t.Fatalf("no log line contains %q:\n%s", msg, out)
	return ""
}

// safeBuffer is a bytes.Buffer safe for concurrent writers and readers.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
