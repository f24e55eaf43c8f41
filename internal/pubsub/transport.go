package pubsub

import (
	"context"
	"time"
)

// Socket is the outbound half of a pub/sub connection.
type Socket interface {
	// Send writes one message. It must be safe to call again after a failure.
	Send(payload []byte) error
	// Close releases the socket, giving in-flight sends up to the linger
	// period to complete.
	Close() error
}

// Dialer opens sockets to bus endpoints.
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint, linger time.Duration) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint Endpoint, linger time.Duration) (Socket, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, endpoint Endpoint, linger time.Duration) (Socket, error) {
	return f(ctx, endpoint, linger)
}
