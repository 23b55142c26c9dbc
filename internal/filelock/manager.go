// Package filelock provides mutual exclusion over project files between
// peer agents. One JSON lock file per locked path lives under
// <root>/.agent_locks/, named by the SHA-256 of the original path string
// so every agent computes the same lock file deterministically.
//
// Lock creation publishes a fully written record with link(2), which
// makes double-acquire a race with exactly one winner and never exposes
// a half-written file. Stale locks (older than the configured timeout)
// are treated as absent and deleted by whichever reader observes them
// first.
package filelock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// LockDir is the directory under the project root holding lock files.
const LockDir = ".agent_locks"

// DefaultStaleTimeout ages out locks whose holder disappeared.
const DefaultStaleTimeout = 10 * time.Minute

// ErrNotHolder is returned when an agent releases a lock it does not own.
var ErrNotHolder = errors.New("lock held by another agent")

// Lock is the on-disk lock record.
type Lock struct {
	AgentID  string `json:"agent_id"`
	Filepath string `json:"filepath"`
	LockedAt int64  `json:"locked_at"` // unix seconds
	Reason   string `json:"reason"`
}

// Age returns how long the lock has been held.
func (l Lock) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(l.LockedAt, 0))
}

// Conflict describes why an acquire was denied.
type Conflict struct {
	Holder  string        `json:"holder"`
	Path    string        `json:"path"` // the conflicting lock's filepath (may be a glob)
	Reason  string        `json:"reason"`
	HeldFor time.Duration `json:"held_for"`
}

func (c *Conflict) String() string {
	return fmt.Sprintf("locked by %s for %s (%s)", c.Holder, c.HeldFor.Round(time.Second), c.Reason)
}

// Manager coordinates file locks under one project root.
type Manager struct {
	root         string
	staleTimeout time.Duration

	now func() time.Time // overridden in tests
}

// NewManager creates a lock manager. A non-positive staleTimeout selects
// DefaultStaleTimeout.
func NewManager(root string, staleTimeout time.Duration) *Manager {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	return &Manager{root: root, staleTimeout: staleTimeout, now: time.Now}
}

// dir returns the lock directory, creating it on first use.
func (m *Manager) dir() (string, error) {
	d := filepath.Join(m.root, LockDir)
	if err := os.MkdirAll(d, 0o700); err != nil {
		return "", fmt.Errorf("creating lock directory: %w", err)
	}
	return d, nil
}

// lockPath maps a path string (literal or glob) to its lock file.
func (m *Manager) lockPath(dir, path string) string {
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".lock")
}

// isStale reports whether a lock has outlived the stale timeout.
func (m *Manager) isStale(l Lock) bool {
	return l.Age(m.now()) > m.staleTimeout
}

// Acquire attempts to take an exclusive lock on path for agentID. It
// returns (true, nil) on success, (false, conflict) when another agent
// holds a conflicting lock, and an error only for validation or I/O
// failures. Re-acquiring one's own live lock refreshes it in place.
func (m *Manager) Acquire(path, agentID, reason string) (bool, *Conflict, error) {
	if err := validate.AgentID(agentID); err != nil {
		return false, nil, err
	}
	if err := m.validatePath(path); err != nil {
		return false, nil, err
	}

	dir, err := m.dir()
	if err != nil {
		return false, nil, err
	}

	// Glob conflicts first: a lock on "src/*.py" blocks "src/a.py" held
	// by anyone else, and vice versa.
	if c, err := m.findGlobConflict(dir, path, agentID); err != nil {
		return false, nil, err
	} else if c != nil {
		return false, c, nil
	}

	target := m.lockPath(dir, path)
	record := Lock{
		AgentID:  agentID,
		Filepath: path,
		LockedAt: m.now().Unix(),
		Reason:   reason,
	}

	for attempt := 0; attempt < 3; attempt++ {
		created, err := m.tryCreate(target, record)
		if err != nil {
			return false, nil, err
		}
		if created {
			return true, nil, nil
		}

		existing, ok := m.readLock(target)
		if !ok {
			// Corrupt or vanished between create and read; retry.
			continue
		}
		if m.isStale(existing) {
			_ = os.Remove(target)
			continue
		}
		if existing.AgentID == agentID {
			// Refresh in place: atomic replace, never delete-then-create,
			// which would open a window for another agent to slip in.
			if err := m.writeLock(target, record); err != nil {
				return false, nil, err
			}
			return true, nil, nil
		}
		return false, &Conflict{
			Holder:  existing.AgentID,
			Path:    existing.Filepath,
			Reason:  existing.Reason,
			HeldFor: existing.Age(m.now()),
		}, nil
	}
	return false, nil, fmt.Errorf("lock file for %s kept vanishing, giving up", path)
}

// Release removes the agent's lock on path. Releasing a lock that does
// not exist succeeds, since the desired state already holds.
func (m *Manager) Release(path, agentID string) error {
	if err := validate.AgentID(agentID); err != nil {
		return err
	}
	dir, err := m.dir()
	if err != nil {
		return err
	}
	target := m.lockPath(dir, path)

	existing, ok := m.readLock(target)
	if !ok {
		return nil
	}
	if existing.AgentID != agentID && !m.isStale(existing) {
		return fmt.Errorf("%w: %s holds %s", ErrNotHolder, existing.AgentID, path)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock: %w", err)
	}
	return nil
}

// WhoHas returns the live lock on path, or nil when unlocked. A stale
// lock observed here is deleted.
func (m *Manager) WhoHas(path string) (*Lock, error) {
	dir, err := m.dir()
	if err != nil {
		return nil, err
	}
	target := m.lockPath(dir, path)
	l, ok := m.readLock(target)
	if !ok {
		return nil, nil
	}
	if m.isStale(l) {
		_ = os.Remove(target)
		return nil, nil
	}
	return &l, nil
}

// ListAll returns every lock. With includeStale false, stale locks are
// deleted as they are observed and omitted from the result.
func (m *Manager) ListAll(includeStale bool) ([]Lock, error) {
	dir, err := m.dir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading lock directory: %w", err)
	}

	var locks []Lock
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		target := filepath.Join(dir, e.Name())
		l, ok := m.readLock(target)
		if !ok {
			continue
		}
		if m.isStale(l) {
			if !includeStale {
				_ = os.Remove(target)
				continue
			}
		}
		locks = append(locks, l)
	}
	return locks, nil
}

// CleanupStale deletes every lock older than the given timeout (the
// manager's stale timeout when zero) and returns how many were removed.
func (m *Manager) CleanupStale(timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = m.staleTimeout
	}
	dir, err := m.dir()
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading lock directory: %w", err)
	}

	removed := 0
	now := m.now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		target := filepath.Join(dir, e.Name())
		l, ok := m.readLock(target)
		if !ok {
			continue
		}
		if l.Age(now) > timeout {
			if os.Remove(target) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// CleanupAgent removes every lock held by agentID, live or stale, and
// returns how many were removed. Used when an agent shuts down or dies.
func (m *Manager) CleanupAgent(agentID string) (int, error) {
	if err := validate.AgentID(agentID); err != nil {
		return 0, err
	}
	dir, err := m.dir()
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading lock directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		target := filepath.Join(dir, e.Name())
		l, ok := m.readLock(target)
		if !ok {
			continue
		}
		if l.AgentID == agentID {
			if os.Remove(target) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// findGlobConflict scans existing locks for one held by another agent
// whose path matches the requested path in either direction.
func (m *Manager) findGlobConflict(dir, path, agentID string) (*Conflict, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading lock directory: %w", err)
	}

	now := m.now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		target := filepath.Join(dir, e.Name())
		l, ok := m.readLock(target)
		if !ok {
			continue
		}
		if m.isStale(l) {
			_ = os.Remove(target)
			continue
		}
		if l.AgentID == agentID || l.Filepath == path {
			// Same-string locks are handled by the exclusive-create path
			// so that self-refresh works.
			continue
		}
		if globConflicts(l.Filepath, path) {
			return &Conflict{
				Holder:  l.AgentID,
				Path:    l.Filepath,
				Reason:  l.Reason,
				HeldFor: l.Age(now),
			}, nil
		}
	}
	return nil, nil
}

// tryCreate attempts exclusive creation of the lock file. The record is
// fully written to a private temp file and published with link(2), so a
// concurrent reader never observes a partial lock it would mistake for a
// corrupt one.
func (m *Manager) tryCreate(target string, l Lock) (bool, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("creating lock temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("writing lock temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Link(tmp.Name(), target); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("creating lock file: %w", err)
	}
	return true, nil
}

// writeLock atomically replaces the lock file's contents.
func (m *Manager) writeLock(target string, l Lock) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing lock temp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing lock file: %w", err)
	}
	return nil
}

// readLock parses a lock file. Corrupt or unreadable files are deleted
// and reported as absent.
func (m *Manager) readLock(target string) (Lock, bool) {
	data, err := os.ReadFile(target)
	if err != nil {
		return Lock{}, false
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil || l.Filepath == "" {
		_ = os.Remove(target)
		return Lock{}, false
	}
	return l, true
}

// validatePath checks the path for traversal and containment. Glob
// metacharacters are allowed; patterns are validated against the root
// with their metacharacters intact, which catches "../" escapes without
// expanding the pattern.
func (m *Manager) validatePath(path string) error {
	_, err := validate.FilePath(m.root, path)
	return err
}

// globConflicts reports whether two lock paths collide: equal strings,
// or either matches the other as a shell glob pattern.
func globConflicts(a, b string) bool {
	if a == b {
		return true
	}
	if ok, err := filepath.Match(a, b); err == nil && ok {
		return true
	}
	if ok, err := filepath.Match(b, a); err == nil && ok {
		return true
	}
	return false
}
