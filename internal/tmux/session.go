package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/panebus/internal/errors"
)

// ErrNotInTmux is returned by Current when the process is not running inside
// a tmux client.
var ErrNotInTmux = errors.New("not running inside tmux")

// sessionFormat is the list-sessions -F template parsed by parseSessions.
const sessionFormat = "#{session_id}\t#{session_name}\t#{session_created}\t#{session_attached}\t#{session_windows}"

// Session is one tmux session as reported by list-sessions.
type Session struct {
	ID       string // "$3"
	Name     string
	Created  time.Time
	Attached int // number of attached clients
	Windows  int
}

// Client describes the tmux client the current process runs in.
type Client struct {
	SocketPath  string
	ServerPID   int
	SessionID   string
	SessionName string
}

// ListSessions returns the sessions of the given server. A server that is not
// running has no sessions and is not an error.
func ListSessions(ctx context.Context, socket string) ([]Session, error) {
	output, err := CommandContextWithSocket(ctx, socket, "list-sessions", "-F", sessionFormat).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			if isNoServer(stderr) {
				return nil, nil
			}
			return nil, fmt.Errorf("tmux list-sessions: %w: %s", err, stderr)
		}
		return nil, fmt.Errorf("tmux list-sessions: %w", err)
	}
	return parseSessions(string(output))
}

// isNoServer reports whether tmux stderr says the server is not running.
func isNoServer(stderr string) bool {
	return strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "error connecting to") ||
		strings.Contains(stderr, "no sessions")
}

func parseSessions(output string) ([]Session, error) {
	var sessions []Session
	for line := range strings.Lines(output) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		s, err := parseSession(line)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func parseSession(line string) (Session, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return Session{}, fmt.Errorf("unexpected list-sessions line %q: want 5 fields, got %d", line, len(fields))
	}

	created, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("parse session_created %q: %w", fields[2], err)
	}
	attached, err := strconv.Atoi(fields[3])
	if err != nil {
		return Session{}, fmt.Errorf("parse session_attached %q: %w", fields[3], err)
	}
	windows, err := strconv.Atoi(fields[4])
	if err != nil {
		return Session{}, fmt.Errorf("parse session_windows %q: %w", fields[4], err)
	}

	return Session{
		ID:       fields[0],
		Name:     fields[1],
		Created:  time.Unix(created, 0).UTC(),
		Attached: attached,
		Windows:  windows,
	}, nil
}

// Current describes the tmux client this process runs in, using the value of
// $TMUX as returned by getenv. It returns ErrNotInTmux outside tmux.
func Current(ctx context.Context, getenv func(string) string) (Client, error) {
	socketPath, pid, err := ParseTMUXEnv(getenv("TMUX"))
	if err != nil {
		return Client{}, err
	}

	client := Client{SocketPath: socketPath, ServerPID: pid}
	args := []string{"display-message", "-p", "#{session_id}\t#{session_name}"}
	if pane := getenv("TMUX_PANE"); pane != "" {
		args = []string{"display-message", "-t", pane, "-p", "#{session_id}\t#{session_name}"}
	}

	output, err := CommandContextWithSocket(ctx, socketPath, args...).Output()
	if err != nil {
		return client, fmt.Errorf("tmux display-message: %w", err)
	}

	id, name, ok := strings.Cut(strings.TrimSpace(string(output)), "\t")
	if !ok {
		return client, fmt.Errorf("unexpected display-message output %q", output)
	}
	client.SessionID = id
	client.SessionName = name
	return client, nil
}

// ParseTMUXEnv splits a $TMUX value ("socket_path,server_pid,session_index")
// into the socket path and server pid.
func ParseTMUXEnv(value string) (string, int, error) {
	if value == "" {
		return "", 0, ErrNotInTmux
	}

	parts := strings.Split(value, ",")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, fmt.Errorf("malformed TMUX value %q", value)
	}
	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed TMUX server pid %q: %w", parts[1], err)
	}
	return parts[0], pid, nil
}
