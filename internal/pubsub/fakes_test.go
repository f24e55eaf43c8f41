package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSocket records every payload it is asked to send.
type fakeSocket struct {
	mu        sync.Mutex
	sent      []string
	failNext  int
	closed    bool
	closeErr  error
	sendCalls int
}

func (s *fakeSocket) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	if s.failNext > 0 {
		s.failNext--
		return errors.New("broken pipe")
	}
	s.sent = append(s.sent, string(payload))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *fakeSocket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSocket) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *fakeSocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDialer hands out fakeSockets. While gate is non-nil, Dial blocks until
// the gate channel is closed.
type fakeDialer struct {
	dials   atomic.Int32
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	sockets []*fakeSocket
	linger  time.Duration
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint Endpoint, linger time.Duration) (Socket, error) {
	d.dials.Add(1)

	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.linger = linger
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeSocket{}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) Block() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	return d.gate
}

func (d *fakeDialer) Socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

func (d *fakeDialer) Dials() int {
	return int(d.dials.Load())
}

// testEndpoint returns an endpoint inside a per-test temp directory.
func testEndpoint(t *testing.T, name string) Endpoint {
	t.Helper()
	return Endpoint{Path: t.TempDir() + "/" + name}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
