package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.created").
	EventType() string

	// ID returns a unique identifier for this occurrence.
	ID() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// Data returns the event-specific payload. May be nil.
	Data() map[string]any
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	id        string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) ID() string           { return e.id }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }
func (e baseEvent) Data() map[string]any { return nil }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		id:        uuid.NewString(),
		timestamp: time.Now(),
	}
}

// Event type identifiers
const (
	TypeSessionCreated     = "session.created"
	TypeSessionClosed      = "session.closed"
	TypeSessionRenamed     = "session.renamed"
	TypeSessionAttached    = "session.attached"
	TypeSessionDetached    = "session.detached"
	TypeWindowCountChanged = "window.count_changed"
)

// -----------------------------------------------------------------------------
// Session Lifecycle Events
// -----------------------------------------------------------------------------

// SessionCreatedEvent is emitted when a new tmux session appears.
type SessionCreatedEvent struct {
	baseEvent
	SessionID string    // tmux session id, e.g. "$3"
	Name      string    // session name
	Created   time.Time // creation time reported by tmux
	Windows   int
}

// NewSessionCreatedEvent creates a SessionCreatedEvent.
func NewSessionCreatedEvent(sessionID, name string, created time.Time, windows int) SessionCreatedEvent {
	return SessionCreatedEvent{
		baseEvent: newBaseEvent(TypeSessionCreated),
		SessionID: sessionID,
		Name:      name,
		Created:   created,
		Windows:   windows,
	}
}

func (e SessionCreatedEvent) Data() map[string]any {
	d := map[string]any{
		"sessionId":   e.SessionID,
		"sessionName": e.Name,
		"windows":     e.Windows,
	}
	if !e.Created.IsZero() {
		d["created"] = e.Created.UTC().Format(time.RFC3339)
	}
	return d
}

// SessionClosedEvent is emitted when a tmux session disappears.
type SessionClosedEvent struct {
	baseEvent
	SessionID string
	Name      string
}

// NewSessionClosedEvent creates a SessionClosedEvent.
func NewSessionClosedEvent(sessionID, name string) SessionClosedEvent {
	return SessionClosedEvent{
		baseEvent: newBaseEvent(TypeSessionClosed),
		SessionID: sessionID,
		Name:      name,
	}
}

func (e SessionClosedEvent) Data() map[string]any {
	return map[string]any{"sessionId": e.SessionID, "sessionName": e.Name}
}

// SessionRenamedEvent is emitted when a session keeps its id but changes name.
type SessionRenamedEvent struct {
	baseEvent
	SessionID string
	OldName   string
	NewName   string
}

// NewSessionRenamedEvent creates a SessionRenamedEvent.
func NewSessionRenamedEvent(sessionID, oldName, newName string) SessionRenamedEvent {
	return SessionRenamedEvent{
		baseEvent: newBaseEvent(TypeSessionRenamed),
		SessionID: sessionID,
		OldName:   oldName,
		NewName:   newName,
	}
}

func (e SessionRenamedEvent) Data() map[string]any {
	return map[string]any{
		"sessionId": e.SessionID,
		"oldName":   e.OldName,
		"newName":   e.NewName,
	}
}

// SessionAttachmentEvent is emitted when the number of attached clients of a
// session moves between zero and non-zero. EventType distinguishes
// session.attached from session.detached.
type SessionAttachmentEvent struct {
	baseEvent
	SessionID string
	Name      string
	Clients   int
}

// NewSessionAttachedEvent creates a session.attached event.
func NewSessionAttachedEvent(sessionID, name string, clients int) SessionAttachmentEvent {
	return SessionAttachmentEvent{
		baseEvent: newBaseEvent(TypeSessionAttached),
		SessionID: sessionID,
		Name:      name,
		Clients:   clients,
	}
}

// NewSessionDetachedEvent creates a session.detached event.
func NewSessionDetachedEvent(sessionID, name string) SessionAttachmentEvent {
	return SessionAttachmentEvent{
		baseEvent: newBaseEvent(TypeSessionDetached),
		SessionID: sessionID,
		Name:      name,
	}
}

func (e SessionAttachmentEvent) Data() map[string]any {
	return map[string]any{
		"sessionId":   e.SessionID,
		"sessionName": e.Name,
		"clients":     e.Clients,
	}
}

// WindowCountChangedEvent is emitted when windows are opened or closed in a session.
type WindowCountChangedEvent struct {
	baseEvent
	SessionID string
	Name      string
	Previous  int
	Current   int
}

// NewWindowCountChangedEvent creates a WindowCountChangedEvent.
func NewWindowCountChangedEvent(sessionID, name string, previous, current int) WindowCountChangedEvent {
	return WindowCountChangedEvent{
		baseEvent: newBaseEvent(TypeWindowCountChanged),
		SessionID: sessionID,
		Name:      name,
		Previous:  previous,
		Current:   current,
	}
}

func (e WindowCountChangedEvent) Data() map[string]any {
	return map[string]any{
		"sessionId":   e.SessionID,
		"sessionName": e.Name,
		"previous":    e.Previous,
		"current":     e.Current,
	}
}

// -----------------------------------------------------------------------------
// Custom Events
// -----------------------------------------------------------------------------

// CustomEvent carries an arbitrary type and payload, typically supplied by a
// tmux hook through "panebus emit".
type CustomEvent struct {
	baseEvent
	Fields map[string]any
}

// NewCustomEvent creates a CustomEvent. The fields map is copied.
func NewCustomEvent(eventType string, fields map[string]any) CustomEvent {
	return CustomEvent{
		baseEvent: newBaseEvent(eventType),
		Fields:    maps.Clone(fields),
	}
}

func (e CustomEvent) Data() map[string]any { return e.Fields }

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Record flattens an event into the mapping that goes on the wire:
// {"type", "id", "timestamp", "data"}. "data" is omitted for events
// without a payload.
func Record(e Event) map[string]any {
	rec := map[string]any{
		"type":      e.EventType(),
		"id":        e.ID(),
		"timestamp": e.Timestamp().UTC().Format(time.RFC3339Nano),
	}
	if data := e.Data(); len(data) > 0 {
		rec["data"] = maps.Clone(data)
	}
	return rec
}
