package pubsub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/panebus/internal/errors"
)

// DefaultSocketName is the socket used when neither a name nor a path is configured.
const DefaultSocketName = "default"

// socketDirPrefix mirrors tmux's /tmp/tmux-{uid} layout.
const socketDirPrefix = "panebus-"

// EndpointOptions selects the bus socket. SocketPath wins over SocketName.
type EndpointOptions struct {
	SocketName string
	SocketPath string
}

// Endpoint is a resolved local bus address.
type Endpoint struct {
	Path string
}

// Address returns the ZeroMQ address of the endpoint.
func (e Endpoint) Address() string {
	return "ipc://" + e.Path
}

func (e Endpoint) String() string {
	return e.Address()
}

// ensureDir creates the directory holding the socket file.
func (e Endpoint) ensureDir() error {
	return os.MkdirAll(filepath.Dir(e.Path), 0700)
}

// ResolveEndpoint turns options into a canonical endpoint. Two option values
// that name the same socket file resolve to equal endpoints.
func ResolveEndpoint(opts EndpointOptions) (Endpoint, error) {
	if opts.SocketPath != "" {
		path, err := filepath.Abs(opts.SocketPath)
		if err != nil {
			return Endpoint{}, errors.NewValidationError("cannot resolve socket path").
				WithField("socket_path").
				WithValue(opts.SocketPath).
				WithCause(fmt.Errorf("%w: %w", errors.ErrInvalidEndpoint, err))
		}
		return Endpoint{Path: path}, nil
	}

	name := opts.SocketName
	if name == "" {
		name = DefaultSocketName
	}
	if strings.ContainsRune(name, filepath.Separator) || name == "." || name == ".." {
		return Endpoint{}, errors.NewValidationError("socket name must not contain a path separator").
			WithField("socket_name").
			WithValue(name).
			WithCause(errors.ErrInvalidEndpoint)
	}

	return Endpoint{Path: filepath.Join(SocketDir(), name)}, nil
}

// SocketDir returns the per-user directory holding named bus sockets:
// $XDG_RUNTIME_DIR/panebus-{uid}, or the OS temp dir when XDG_RUNTIME_DIR is unset.
func SocketDir() string {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, fmt.Sprintf("%s%d", socketDirPrefix, os.Getuid()))
}
