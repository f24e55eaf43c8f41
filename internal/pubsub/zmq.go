package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

// ZMQDialer dials bus endpoints with ZeroMQ PUB sockets over the ipc transport.
// Observers bind a SUB (or XSUB proxy) socket on the endpoint; any number of
// panebus processes connect to it.
type ZMQDialer struct{}

// Dial connects a PUB socket to the endpoint. zmq4 retries a refused dial on
// its own schedule; Dial gives up as soon as ctx is done and releases the
// socket once the library returns.
func (ZMQDialer) Dial(ctx context.Context, endpoint Endpoint, linger time.Duration) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The socket outlives the dial context; it is released by Close.
	sockCtx, release := context.WithCancel(context.Background())
	sock := zmq4.NewPub(sockCtx)

	dialed := make(chan error, 1)
	go func() { dialed <- sock.Dial(endpoint.Address()) }()

	select {
	case err := <-dialed:
		if err != nil {
			_ = sock.Close()
			release()
			return nil, err
		}
	case <-ctx.Done():
		release()
		go func() {
			<-dialed
			_ = sock.Close()
		}()
		return nil, ctx.Err()
	}
	return &zmqSocket{sock: sock, release: release, linger: linger}, nil
}

// zmqSocket enforces the linger period on top of zmq4. zmq4's Send only
// queues the message for a writer goroutine and its Close drops whatever is
// still queued, so Close holds the socket open until linger has passed since
// the last Send.
type zmqSocket struct {
	sock    zmq4.Socket
	release context.CancelFunc
	linger  time.Duration

	mu       sync.Mutex
	lastSend time.Time
}

func (s *zmqSocket) Send(payload []byte) error {
	err := s.sock.Send(zmq4.NewMsg(payload))
	if err == nil {
		s.mu.Lock()
		s.lastSend = time.Now()
		s.mu.Unlock()
	}
	return err
}

// flushWait returns how long Close still has to wait for queued sends.
func (s *zmqSocket) flushWait(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSend.IsZero() || s.linger <= 0 {
		return 0
	}
	return max(s.linger-now.Sub(s.lastSend), 0)
}

func (s *zmqSocket) Close() error {
	if d := s.flushWait(time.Now()); d > 0 {
		time.Sleep(d)
	}
	err := s.sock.Close()
	s.release()
	return err
}
