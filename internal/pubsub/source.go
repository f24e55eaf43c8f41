package pubsub

import "os"

// Source identifies the process and tmux session that emitted an event.
// It is attached to every forwarded event under the "source" key.
type Source struct {
	Script      string `json:"script"`
	SessionID   string `json:"sessionId,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
	SocketPath  string `json:"socketPath,omitempty"`
	PID         int    `json:"pid"`
	Hostname    string `json:"hostname"`
}

// NewSource fills in the process id and host name of overrides where they are
// unset. A host name lookup failure leaves Hostname empty.
func NewSource(overrides Source) Source {
	src := overrides
	if src.PID == 0 {
		src.PID = os.Getpid()
	}
	if src.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			src.Hostname = host
		}
	}
	return src
}

// stamp returns a copy of rec with its "source" field replaced by src.
func (src Source) stamp(rec map[string]any) Event {
	ev := make(Event, len(rec)+1)
	for k, v := range rec {
		ev[k] = v
	}
	ev["source"] = src
	return ev
}
