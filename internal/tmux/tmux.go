// Package tmux wraps the tmux pane operations the swarm needs via
// subprocess: enumerating live panes across all sessions, pushing a line
// of input to a pane, and inspecting pane state.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Common errors.
var (
	ErrNoServer     = errors.New("no tmux server running")
	ErrPaneNotFound = errors.New("pane not found")
)

// sendDebounce is the pause between pasting text into a pane and sending
// Enter. Sending them together races the paste buffer.
const sendDebounce = 100 * time.Millisecond

// Tmux wraps tmux operations.
type Tmux struct{}

// New creates a new Tmux wrapper.
func New() *Tmux {
	return &Tmux{}
}

// run executes a tmux command and returns trimmed stdout.
func (t *Tmux) run(args ...string) (string, error) {
	cmd := exec.Command("tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", t.wrapError(err, stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// wrapError classifies tmux stderr into sentinel errors where possible.
func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	if strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "error connecting to") {
		return ErrNoServer
	}
	if strings.Contains(stderr, "can't find pane") ||
		strings.Contains(stderr, "can't find session") {
		return ErrPaneNotFound
	}

	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", args[0], stderr)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// IsAvailable checks whether tmux is installed and invocable.
func (t *Tmux) IsAvailable() bool {
	return exec.Command("tmux", "-V").Run() == nil
}

// InsideTmux reports whether the current process runs inside a tmux pane.
func InsideTmux() bool {
	return os.Getenv("TMUX") != ""
}

// Pane describes one live tmux pane.
type Pane struct {
	ID          string // tmux pane ID, e.g. "%3"
	SessionName string
	PID         int    // PID of the pane's root process
	Command     string // pane_current_command
	WorkDir     string // pane_current_path
}

// paneListFormat matches the field order parsed by ListPanes.
const paneListFormat = "#{pane_id}|#{session_name}|#{pane_pid}|#{pane_current_command}|#{pane_current_path}"

// ListPanes enumerates every pane on the server across all sessions.
// A missing server yields an empty list, not an error.
func (t *Tmux) ListPanes() ([]Pane, error) {
	out, err := t.run("list-panes", "-a", "-F", paneListFormat)
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var panes []Pane
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 5)
		if len(parts) != 5 {
			continue
		}
		var pid int
		_, _ = fmt.Sscanf(parts[2], "%d", &pid) // non-fatal: 0 on parse error
		panes = append(panes, Pane{
			ID:          parts[0],
			SessionName: parts[1],
			PID:         pid,
			Command:     parts[3],
			WorkDir:     parts[4],
		})
	}
	return panes, nil
}

// HasPane checks whether a pane ID still exists on the server.
func (t *Tmux) HasPane(paneID string) bool {
	out, err := t.run("display-message", "-p", "-t", paneID, "#{pane_id}")
	return err == nil && out == paneID
}

// CurrentPaneID returns the pane ID of the calling process, or an error
// when not running inside tmux.
func (t *Tmux) CurrentPaneID() (string, error) {
	if !InsideTmux() {
		return "", errors.New("not inside a tmux pane")
	}
	return t.run("display-message", "-p", "#{pane_id}")
}

// PushLine delivers a line of text to a pane's input followed by Enter.
// Text is sent in literal mode so message punctuation is not interpreted
// as key names, and Enter goes separately after a debounce. Pasting and
// submitting in one send-keys call drops input under load. Enter is
// retried because it is the step that actually submits the message.
func (t *Tmux) PushLine(paneID, line string) error {
	if _, err := t.run("send-keys", "-t", paneID, "-l", line); err != nil {
		return err
	}
	time.Sleep(sendDebounce)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(200 * time.Millisecond)
		}
		if _, err := t.run("send-keys", "-t", paneID, "Enter"); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("sending Enter after 3 attempts: %w", lastErr)
}

// agentCommandPattern matches pane commands that look like a Claude Code
// runtime: recent Claude Code builds report a bare version string such as
// "2.0.76" as their process title.
var agentCommandPattern = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// IsAgentPane reports whether a pane appears to run an AI coding agent.
// Only the pane command is trusted; scrollback markers give false
// positives after an agent exits.
func IsAgentPane(p Pane) bool {
	switch p.Command {
	case "claude", "node":
		return true
	}
	return agentCommandPattern.MatchString(p.Command)
}

// NewMonitorWindow opens a new tmux window running the given command, for
// hosting the monitoring view next to agent panes. Returns the new
// window's pane ID.
func (t *Tmux) NewMonitorWindow(name, command string) (string, error) {
	return t.run("new-window", "-d", "-n", name, "-P", "-F", "#{pane_id}", command)
}
