package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestReadLocked_MissingFileIsEmpty(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "TASKS.json")

	data, err := s.ReadLocked(path)
	if err != nil {
		t.Fatalf("ReadLocked: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty contents, got %q", data)
	}

	// The read must have created the file with 0600.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestWriteLocked_RoundTrip(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "nested", "dir", "x.json")

	if err := s.WriteLocked(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteLocked: %v", err)
	}
	data, err := s.ReadLocked(path)
	if err != nil {
		t.Fatalf("ReadLocked: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("data = %q", data)
	}
}

func TestUpdate_SeesPreviousContents(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "x.json")

	if err := s.WriteLocked(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	err := s.Update(path, func(old []byte) ([]byte, error) {
		if string(old) != "one" {
			t.Errorf("old = %q, want one", old)
		}
		return []byte("two"), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	data, _ := s.ReadLocked(path)
	if string(data) != "two" {
		t.Errorf("data = %q, want two", data)
	}
}

func TestUpdate_ErrorAborts(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "x.json")
	if err := s.WriteLocked(path, []byte("keep")); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("mutate failed")
	if err := s.Update(path, func([]byte) ([]byte, error) { return nil, wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("Update err = %v, want %v", err, wantErr)
	}
	data, _ := s.ReadLocked(path)
	if string(data) != "keep" {
		t.Errorf("contents mutated on error: %q", data)
	}
}

func TestReentrantAcquireRejected(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "x.json")

	err := s.Update(path, func([]byte) ([]byte, error) {
		_, innerErr := s.ReadLocked(path)
		if !errors.Is(innerErr, ErrReentrant) {
			t.Errorf("nested read err = %v, want ErrReentrant", innerErr)
		}
		return []byte("{}"), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestVersionedCAS(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "PENDING_ACKS.json")

	type doc struct {
		Version int      `json:"version"`
		Rows    []string `json:"rows"`
	}

	_, v, err := s.ReadVersioned(path)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("fresh version = %d, want 0", v)
	}

	first, _ := json.Marshal(doc{Version: 1, Rows: []string{"a"}})
	if err := s.WriteVersioned(path, first, 0); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// A stale writer that still thinks the version is 0 must fail.
	stale, _ := json.Marshal(doc{Version: 1, Rows: []string{"b"}})
	if err := s.WriteVersioned(path, stale, 0); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale write err = %v, want ErrVersionConflict", err)
	}

	data, v, err := s.ReadVersioned(path)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
	var got doc
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Rows) != 1 || got.Rows[0] != "a" {
		t.Errorf("rows = %v, want [a]", got.Rows)
	}
}

func TestVersioned_LegacyFileWithoutVersion(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "PENDING_ACKS.json")
	if err := os.WriteFile(path, []byte(`{"pending_acks":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, v, err := s.ReadVersioned(path)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("legacy version = %d, want 0", v)
	}
	upgraded, _ := json.Marshal(map[string]any{"version": 1})
	if err := s.WriteVersioned(path, upgraded, 0); err != nil {
		t.Errorf("upgrade write: %v", err)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	s := NewStore(0)
	path := filepath.Join(t.TempDir(), "counter.json")
	if err := s.WriteLocked(path, []byte(`{"n":0}`)); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each goroutine needs its own Store: the reentrancy guard is
			// per-process bookkeeping, but contention still exercises the
			// OS lock through separate flock handles.
			local := NewStore(10 * time.Second)
			for j := 0; j < perWorker; j++ {
				err := local.Update(path, func(old []byte) ([]byte, error) {
					var v struct {
						N int `json:"n"`
					}
					if err := json.Unmarshal(old, &v); err != nil {
						return nil, err
					}
					v.N++
					return json.Marshal(v)
				})
				if err != nil {
					t.Errorf("Update: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	data, _ := s.ReadLocked(path)
	var v struct {
		N int `json:"n"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}
	if v.N != workers*perWorker {
		t.Errorf("n = %d, want %d", v.N, workers*perWorker)
	}
}

func TestAtomicWrite_TempRemovedOnSuccess(t *testing.T) {
	s := NewStore(0)
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	if err := s.WriteLocked(path, []byte("{}")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "x.json" {
			t.Errorf("leftover file: %s", e.Name())
		}
	}
}
