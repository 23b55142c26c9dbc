package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// agentExecutables are process names treated as Claude Code runtimes by
// the file-drop backend.
var agentExecutables = map[string]bool{
	"claude": true,
	"node":   true,
}

// FileDropBackend enumerates agent processes from the OS process table.
// It has no real-time delivery channel: Push reports (false, nil) and
// recipients learn about messages by polling the shared message log.
type FileDropBackend struct{}

// NewFileDropBackend creates the process-listing backend.
func NewFileDropBackend() *FileDropBackend {
	return &FileDropBackend{}
}

// Name implements Backend.
func (b *FileDropBackend) Name() string { return "filedrop" }

// Peers lists Claude Code processes on the host. Descendants of the
// calling process are skipped so a controller does not discover the
// agents it spawned itself as foreign peers, and the calling process's
// own agent (matched by controlling TTY) is excluded.
func (b *FileDropBackend) Peers(projectRoot string) ([]Peer, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	parent := make(map[int]int, len(procs))
	for _, p := range procs {
		parent[p.Pid()] = p.PPid()
	}
	self := os.Getpid()
	selfID, _ := b.CurrentIdentifier()

	var peers []Peer
	for _, p := range procs {
		if !agentExecutables[p.Executable()] {
			continue
		}
		if p.Pid() == self || isDescendantOf(parent, p.Pid(), self) {
			continue
		}
		cwd := processCwd(p.Pid())
		if projectRoot != "" && !dirWithin(projectRoot, cwd) {
			continue
		}
		id := processIdentifier(p.Pid())
		if id == selfID {
			continue
		}
		peers = append(peers, Peer{
			Identifier: id,
			PID:        p.Pid(),
			CWD:        cwd,
		})
	}
	return peers, nil
}

// Push implements Backend. The file-drop backend cannot reach a peer's
// terminal; the appended log entry that recipients poll is the delivery.
func (b *FileDropBackend) Push(identifier, line string) (bool, error) {
	return false, nil
}

// Alive implements Backend.
func (b *FileDropBackend) Alive(identifier string) bool {
	pid, ok := pidFromIdentifier(identifier)
	if !ok {
		// TTY identifier: alive while some process still has it.
		procs, err := ps.Processes()
		if err != nil {
			return false
		}
		for _, p := range procs {
			if agentExecutables[p.Executable()] && processIdentifier(p.Pid()) == identifier {
				return true
			}
		}
		return false
	}
	p, err := ps.FindProcess(pid)
	return err == nil && p != nil
}

// CurrentIdentifier returns this process's controlling TTY, or "pid:N"
// when no TTY can be determined.
func (b *FileDropBackend) CurrentIdentifier() (string, error) {
	return processIdentifier(os.Getpid()), nil
}

// CreateMonitorPane implements Backend; the file-drop backend has no
// terminal surface to create panes in.
func (b *FileDropBackend) CreateMonitorPane(string) (string, error) {
	return "", ErrUnsupported
}

// isDescendantOf walks the parent chain of pid looking for ancestor.
// The walk is bounded in case the process table produced a PPid cycle.
func isDescendantOf(parent map[int]int, pid, ancestor int) bool {
	for depth := 0; depth < 64; depth++ {
		pp, ok := parent[pid]
		if !ok || pp == 0 || pp == pid {
			return false
		}
		if pp == ancestor {
			return true
		}
		pid = pp
	}
	return false
}

// processIdentifier returns the stable identifier for a PID: its
// controlling TTY when readable, otherwise "pid:N". TTY paths are stable
// across agent restarts in the same terminal, which keeps discovery IDs
// stable too.
func processIdentifier(pid int) string {
	if tty, err := os.Readlink(fmt.Sprintf("/proc/%d/fd/0", pid)); err == nil {
		if strings.HasPrefix(tty, "/dev/pts/") || strings.HasPrefix(tty, "/dev/tty") {
			return tty
		}
	}
	return "pid:" + strconv.Itoa(pid)
}

// processCwd returns a process's working directory, or "" when the
// procfs entry is unreadable.
func processCwd(pid int) string {
	cwd, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
	if err != nil {
		return ""
	}
	return cwd
}

// pidFromIdentifier parses a "pid:N" identifier.
func pidFromIdentifier(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "pid:")
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return pid, true
}
