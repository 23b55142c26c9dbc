package swarm

import (
	"testing"

	"github.com/claudeswarm/claudeswarm/internal/backend"
	"github.com/claudeswarm/claudeswarm/internal/conflict"
)

// fakeBackend returns a scripted peer list.
type fakeBackend struct {
	peers []backend.Peer
}

func (f *fakeBackend) Name() string                             { return "fake" }
func (f *fakeBackend) Peers(string) ([]backend.Peer, error)     { return f.peers, nil }
func (f *fakeBackend) Push(string, string) (bool, error)        { return true, nil }
func (f *fakeBackend) Alive(string) bool                        { return true }
func (f *fakeBackend) CurrentIdentifier() (string, error)       { return "self", nil }
func (f *fakeBackend) CreateMonitorPane(string) (string, error) { return "", backend.ErrUnsupported }

func TestNewWiresEverySubsystem(t *testing.T) {
	root := t.TempDir()
	sw, err := New(Options{Root: root, Backend: &fakeBackend{}})
	if err != nil {
		t.Fatal(err)
	}
	if sw.Root != root {
		t.Errorf("root = %q", sw.Root)
	}
	if sw.Discovery == nil || sw.Locks == nil || sw.Messaging == nil || sw.Acks == nil ||
		sw.Tasks == nil || sw.Contexts == nil || sw.Cards == nil || sw.Delegate == nil ||
		sw.Conflicts == nil || sw.Memory == nil || sw.Learning == nil || sw.Board == nil {
		t.Error("subsystem left nil")
	}
}

func TestAcquireLockRecordsConflict(t *testing.T) {
	sw, err := New(Options{Root: t.TempDir(), Backend: &fakeBackend{}})
	if err != nil {
		t.Fatal(err)
	}

	if ok, _, err := sw.AcquireLock("src/db.go", "agent-1", "migrating"); err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, c, err := sw.AcquireLock("src/db.go", "agent-2", "also migrating")
	if err != nil || ok || c == nil {
		t.Fatalf("second acquire = %v, %+v, %v", ok, c, err)
	}

	conflicts, err := sw.Conflicts.List(conflict.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	got := conflicts[0]
	if got.AgentsInvolved[0] != "agent-2" || got.AgentsInvolved[1] != "agent-1" {
		t.Errorf("agents = %v", got.AgentsInvolved)
	}
	if got.Resource != "src/db.go" {
		t.Errorf("resource = %q", got.Resource)
	}
}
