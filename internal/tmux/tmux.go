// Package tmux provides helpers for talking to tmux servers.
//
// A server is addressed by a socket. An empty socket means the user's default
// server; a value containing a path separator is a socket path (as found in
// $TMUX) and is passed with -S; anything else is a socket name passed with -L.
package tmux

import (
	"context"
	"os/exec"
	"strings"
)

// Binary is the tmux executable looked up on PATH.
const Binary = "tmux"

// CommandWithSocket creates an exec.Cmd for tmux on the given server.
func CommandWithSocket(socket string, args ...string) *exec.Cmd {
	return exec.Command(Binary, CommandArgsWithSocket(socket, args...)...)
}

// CommandContextWithSocket creates a context-aware exec.Cmd for tmux on the
// given server.
func CommandContextWithSocket(ctx context.Context, socket string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, Binary, CommandArgsWithSocket(socket, args...)...)
}

// CommandArgsWithSocket returns the full tmux argument list for args on the
// given server.
func CommandArgsWithSocket(socket string, args ...string) []string {
	return append(BaseArgsWithSocket(socket), args...)
}

// BaseArgsWithSocket returns just the server selection arguments, or nil for
// the default server.
func BaseArgsWithSocket(socket string) []string {
	switch {
	case socket == "":
		return nil
	case IsSocketPath(socket):
		return []string{"-S", socket}
	default:
		return []string{"-L", socket}
	}
}

// IsSocketPath reports whether socket names a socket file rather than a
// socket name under the tmux socket directory.
func IsSocketPath(socket string) bool {
	return strings.ContainsRune(socket, '/')
}
