package backend

import (
	"path/filepath"
	"strings"

	"github.com/claudeswarm/claudeswarm/internal/tmux"
)

// TmuxBackend addresses peers by tmux pane ID and delivers messages
// synchronously to a pane's input.
type TmuxBackend struct {
	t *tmux.Tmux
}

// NewTmuxBackend creates the pane-addressable backend.
func NewTmuxBackend() *TmuxBackend {
	return &TmuxBackend{t: tmux.New()}
}

// Name implements Backend.
func (b *TmuxBackend) Name() string { return "tmux" }

// Peers lists agent panes on the local tmux server, excluding the calling
// process's own pane.
func (b *TmuxBackend) Peers(projectRoot string) ([]Peer, error) {
	panes, err := b.t.ListPanes()
	if err != nil {
		return nil, err
	}
	self, _ := b.t.CurrentPaneID() // empty when not inside tmux

	var peers []Peer
	for _, p := range panes {
		if !tmux.IsAgentPane(p) {
			continue
		}
		if self != "" && p.ID == self {
			continue
		}
		if projectRoot != "" && !dirWithin(projectRoot, p.WorkDir) {
			continue
		}
		peers = append(peers, Peer{
			Identifier:  p.ID,
			PID:         p.PID,
			SessionName: p.SessionName,
			CWD:         p.WorkDir,
		})
	}
	return peers, nil
}

// Push implements Backend by typing the line into the pane.
func (b *TmuxBackend) Push(identifier, line string) (bool, error) {
	if err := b.t.PushLine(identifier, line); err != nil {
		return false, err
	}
	return true, nil
}

// Alive implements Backend.
func (b *TmuxBackend) Alive(identifier string) bool {
	return b.t.HasPane(identifier)
}

// CurrentIdentifier implements Backend.
func (b *TmuxBackend) CurrentIdentifier() (string, error) {
	return b.t.CurrentPaneID()
}

// CreateMonitorPane opens a monitor window running command.
func (b *TmuxBackend) CreateMonitorPane(command string) (string, error) {
	return b.t.NewMonitorWindow("swarm-monitor", command)
}

// dirWithin reports whether dir equals root or is nested under it.
func dirWithin(root, dir string) bool {
	if dir == "" {
		return false
	}
	root = filepath.Clean(root)
	dir = filepath.Clean(dir)
	return dir == root || strings.HasPrefix(dir, root+string(filepath.Separator))
}
