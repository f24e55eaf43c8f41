// Package testutil provides testing utilities for panebus tests.
package testutil

import (
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SkipIfNoTmux skips the test if tmux is not installed.
func SkipIfNoTmux(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not found in PATH, skipping test")
	}
}

// TmuxServer is a private tmux server started for one test.
type TmuxServer struct {
	t      *testing.T
	Socket string // socket path, usable with -S
}

// StartTmuxServer starts a tmux server on a socket inside a temp directory
// with one detached session named first. The server is killed when the test
// completes. Tests are skipped when tmux is unavailable or short mode is on.
func StartTmuxServer(t *testing.T, first string) *TmuxServer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping tmux test in short mode")
	}
	SkipIfNoTmux(t)

	s := &TmuxServer{t: t, Socket: filepath.Join(t.TempDir(), "tmux.sock")}
	// -f /dev/null keeps user configuration out of the test.
	if out, err := exec.Command("tmux", "-f", "/dev/null", "-S", s.Socket, "new-session", "-d", "-s", first).CombinedOutput(); err != nil {
		t.Skipf("cannot start tmux server: %v: %s", err, strings.TrimSpace(string(out)))
	}
	t.Cleanup(func() {
		_ = exec.Command("tmux", "-S", s.Socket, "kill-server").Run()
	})
	return s
}

// Run runs a tmux command against the server and fails the test on error.
func (s *TmuxServer) Run(args ...string) string {
	s.t.Helper()

	full := append([]string{"-S", s.Socket}, args...)
	out, err := exec.Command("tmux", full...).CombinedOutput()
	if err != nil {
		s.t.Fatalf("tmux %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out))
}

// NewSession creates a detached session and returns its id.
func (s *TmuxServer) NewSession(name string) string {
	s.t.Helper()
	return s.Run("new-session", "-d", "-s", name, "-P", "-F", "#{session_id}")
}
