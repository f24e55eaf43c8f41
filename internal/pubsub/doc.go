// Package pubsub publishes panebus events onto a ZeroMQ pub/sub bus.
//
// A [Publisher] owns one outbound socket for one [Endpoint]. It connects
// lazily: events published before the bus is reachable are buffered in FIFO
// order, a single background connect attempt is started, and the buffer is
// drained through the normal send path as soon as the connection is up.
// Publishing never blocks on the network and never surfaces connection
// problems to the caller; they are logged instead.
//
// A [Registry] hands out exactly one Publisher per resolved endpoint and wires
// an event source to it through [Registry.EnablePublishing], stamping every
// forwarded event with a [Source] record. The registry is owned by the
// application's composition root; its Shutdown is registered as a shutdown
// hook rather than installing signal handlers itself.
//
// # Wire Format
//
// Each event is one JSON document per ZeroMQ message:
//
//	{"type":"session.created","id":"...","timestamp":"...","data":{...},
//	 "source":{"script":"panebus","sessionId":"$1","pid":4242,"hostname":"h1"}}
//
// # Connection States
//
//	Unconnected --Connect ok--> Connected --Disconnect--> Unconnected
//	Connected --send failure--> Connected (event re-queued)
//
// There are no timer-driven retries. A failed connect is retried only when the
// next event is published while unconnected.
package pubsub
