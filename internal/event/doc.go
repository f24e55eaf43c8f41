// Package event provides the in-process event bus that tmux session activity
// flows through before it is published on the message bus.
//
// # Main Types
//
//   - [Event]: EventType(), ID(), Timestamp() and Data() payload
//   - [Bus]: synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: function type for event handlers (func(Event))
//
// # Event Types
//
// Session lifecycle (produced by the tmux watcher):
//   - session.created, session.closed, session.renamed
//   - session.attached, session.detached
//   - window.count_changed
//
// Anything else is a [CustomEvent], usually produced by "panebus emit" from a
// tmux hook.
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.SubscribeAll(func(e event.Event) {
//	    rec := event.Record(e) // {"type", "id", "timestamp", "data"}
//	    ...
//	})
//	bus.Publish(event.NewSessionClosedEvent("$3", "work"))
//
// Handlers run synchronously on the publishing goroutine. A panicking handler
// is logged and does not prevent delivery to the remaining handlers.
package event
