// Package backend abstracts how the swarm finds peer agents on the host
// and, when possible, pushes a message line into a peer's terminal.
//
// Two variants exist. The tmux backend addresses peers by pane ID and can
// deliver synchronously into a pane's input. The file-drop backend only
// enumerates Claude Code processes; delivery is the message log that
// recipients poll, so Push reports not-delivered without error.
package backend

import (
	"errors"
	"os"

	"github.com/claudeswarm/claudeswarm/internal/config"
	"github.com/claudeswarm/claudeswarm/internal/tmux"
)

// EnvBackend overrides backend selection.
const EnvBackend = "CLAUDESWARM_BACKEND"

// ErrUnsupported is returned for capabilities a backend does not have.
var ErrUnsupported = errors.New("operation not supported by this backend")

// Peer is one discovered peer agent process.
type Peer struct {
	// Identifier addresses the peer for Push: a tmux pane ID, a TTY
	// device path, or "pid:N" when no TTY is known.
	Identifier  string
	PID         int
	SessionName string
	CWD         string
}

// Backend is the capability set required from a terminal backend.
type Backend interface {
	// Name identifies the backend ("tmux" or "filedrop").
	Name() string

	// Peers enumerates live peer agents. A non-empty projectRoot
	// restricts results to peers whose working directory is inside it,
	// preventing cross-project leakage on shared hosts.
	Peers(projectRoot string) ([]Peer, error)

	// Push delivers one formatted line to the peer's terminal input.
	// The bool reports real-time delivery; a backend without push
	// capability returns (false, nil).
	Push(identifier, line string) (bool, error)

	// Alive reports whether the identifier still refers to a live peer.
	Alive(identifier string) bool

	// CurrentIdentifier returns this process's own identifier, used to
	// exclude self from discovery.
	CurrentIdentifier() (string, error)

	// CreateMonitorPane opens a monitoring surface running command,
	// where the backend supports one. Others return ErrUnsupported.
	CreateMonitorPane(command string) (string, error)
}

// Select picks the backend: the CLAUDESWARM_BACKEND env var wins, then
// the configured provider, then auto-detection (tmux when running inside
// a tmux pane with a reachable server, file-drop otherwise).
func Select(cfg *config.Config) Backend {
	provider := os.Getenv(EnvBackend)
	if provider == "" && cfg != nil {
		provider = cfg.Provider
	}

	switch provider {
	case config.ProviderTmux:
		return NewTmuxBackend()
	case config.ProviderFileDrop:
		return NewFileDropBackend()
	}

	if tmux.InsideTmux() && tmux.New().IsAvailable() {
		return NewTmuxBackend()
	}
	return NewFileDropBackend()
}
