// Package state provides locked, atomic access to the JSON files that
// make up the swarm's shared state.
//
// Every cross-process-mutable file is guarded by an OS advisory lock:
// shared for reads, exclusive for the whole read-modify-write window of a
// write. Writes go to a sibling temp file and are renamed over the target,
// so readers only ever observe committed snapshots. Files whose writers
// depend on a prior read additionally carry an integer "version" field for
// optimistic concurrency (see ReadVersioned / WriteVersioned).
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Sentinel errors surfaced to callers.
var (
	// ErrLockTimeout means the advisory lock could not be acquired within
	// the store's timeout. No mutation has happened.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrIntegrity means the target file was deleted or replaced while the
	// lock was being acquired, so the held lock guards a dead inode.
	ErrIntegrity = errors.New("file replaced during lock acquisition")

	// ErrReentrant means this process already holds a lock on the file.
	// Nested acquisition is rejected rather than deadlocking.
	ErrReentrant = errors.New("file already locked by this process")

	// ErrVersionConflict means the on-disk version advanced past the
	// version the writer read. The caller should re-read and retry.
	ErrVersionConflict = errors.New("stale version: file changed since read")
)

const (
	// DefaultLockTimeout bounds how long a caller waits for an advisory lock.
	DefaultLockTimeout = 5 * time.Second

	// MaxCASAttempts bounds version-CAS retry loops.
	MaxCASAttempts = 5

	// lockRetryDelay is the poll interval while waiting for a contended lock.
	lockRetryDelay = 25 * time.Millisecond

	// FileMode is the mode for every state file.
	FileMode = 0o600

	// DirMode is the mode for state directories. Directories need the
	// execute bit for traversal, so this is the directory analogue of the
	// 0600 file mode.
	DirMode = 0o700
)

// Store hands out locked reads and writes of state files. A single Store
// is safe for concurrent use; it tracks which files the current process
// holds so that reentrant acquisition fails fast instead of deadlocking.
type Store struct {
	timeout time.Duration

	mu   sync.Mutex
	held map[string]struct{}
}

// NewStore creates a store with the given lock timeout. A zero timeout
// selects DefaultLockTimeout.
func NewStore(timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Store{
		timeout: timeout,
		held:    make(map[string]struct{}),
	}
}

// ensureFile guarantees the target exists with FileMode, creating parent
// directories as needed. Locking an absent file would otherwise create it
// with the flock package's default mode.
func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, FileMode)
	if err != nil {
		return fmt.Errorf("ensuring state file: %w", err)
	}
	return f.Close()
}

// acquire takes the advisory lock on path, shared or exclusive, and
// returns a release function. It verifies the file identity (device and
// inode) after acquisition and retries once if the file was swapped out
// underneath the lock.
func (s *Store) acquire(path string, shared bool) (func(), error) {
	path = filepath.Clean(path)

	s.mu.Lock()
	if _, ok := s.held[path]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrReentrant, path)
	}
	s.held[path] = struct{}{}
	s.mu.Unlock()

	unregister := func() {
		s.mu.Lock()
		delete(s.held, path)
		s.mu.Unlock()
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := ensureFile(path); err != nil {
			unregister()
			return nil, err
		}
		before, err := os.Stat(path)
		if err != nil {
			unregister()
			return nil, fmt.Errorf("stat before lock: %w", err)
		}

		fl := flock.New(path)
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		var ok bool
		if shared {
			ok, err = fl.TryRLockContext(ctx, lockRetryDelay)
		} else {
			ok, err = fl.TryLockContext(ctx, lockRetryDelay)
		}
		cancel()
		if err != nil || !ok {
			unregister()
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("acquiring lock on %s: %w", path, err)
			}
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}

		// The lock binds to the inode that existed when flock opened the
		// file. If the path now points elsewhere, the lock is worthless.
		after, err := os.Stat(path)
		if err == nil && os.SameFile(before, after) {
			return func() {
				_ = fl.Unlock()
				unregister()
			}, nil
		}
		_ = fl.Unlock()
	}

	unregister()
	return nil, fmt.Errorf("%w: %s", ErrIntegrity, path)
}

// ReadLocked reads the file under a shared lock. A missing or empty file
// yields an empty byte slice, which stores treat as an empty collection.
func (s *Store) ReadLocked(path string) ([]byte, error) {
	release, err := s.acquire(path, true)
	if err != nil {
		return nil, err
	}
	defer release()
	return os.ReadFile(path)
}

// WriteLocked replaces the file's contents under an exclusive lock, using
// write-temp-then-rename so concurrent readers never see a partial write.
func (s *Store) WriteLocked(path string, data []byte) error {
	release, err := s.acquire(path, false)
	if err != nil {
		return err
	}
	defer release()
	return atomicWrite(path, data)
}

// WithExclusive runs fn while holding the exclusive advisory lock on
// path. It is the escape hatch for files that are not whole-document
// JSON, such as append-only logs that rotate by rename.
func (s *Store) WithExclusive(path string, fn func() error) error {
	release, err := s.acquire(path, false)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Update runs a read-modify-write cycle under a single exclusive lock.
// The mutate function receives the current contents (empty slice if the
// file is new) and returns the replacement contents. Returning an error
// aborts without writing.
func (s *Store) Update(path string, mutate func(old []byte) ([]byte, error)) error {
	release, err := s.acquire(path, false)
	if err != nil {
		return err
	}
	defer release()

	old, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	out, err := mutate(old)
	if err != nil {
		return err
	}
	return atomicWrite(path, out)
}

// versionProbe extracts just the version field from a versioned document.
type versionProbe struct {
	Version int `json:"version"`
}

// ReadVersioned reads a versioned document under a shared lock, returning
// its contents and embedded version. Missing, empty, or corrupt files
// report version 0; legacy files without the field are silently treated
// as version 0 and upgraded on the next successful write.
func (s *Store) ReadVersioned(path string) ([]byte, int, error) {
	data, err := s.ReadLocked(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 {
		return data, 0, nil
	}
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return data, 0, nil
	}
	return data, probe.Version, nil
}

// WriteVersioned commits a versioned document. The caller must have
// stamped the document with version expected+1 before marshaling; this
// function verifies under the exclusive lock that the on-disk version
// still equals expected and fails with ErrVersionConflict otherwise.
func (s *Store) WriteVersioned(path string, doc []byte, expected int) error {
	release, err := s.acquire(path, false)
	if err != nil {
		return err
	}
	defer release()

	current := 0
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		var probe versionProbe
		if err := json.Unmarshal(data, &probe); err == nil {
			current = probe.Version
		}
	}
	if current != expected {
		return fmt.Errorf("%w: have %d, expected %d", ErrVersionConflict, current, expected)
	}
	return atomicWrite(path, doc)
}

// atomicWrite writes data to a sibling temp file and renames it over the
// target. The temp file is removed if any step fails.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(FileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}
