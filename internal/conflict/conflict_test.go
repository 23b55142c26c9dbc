package conflict

import (
	"errors"
	"testing"

	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/task"
)

func newTestResolver(t *testing.T) (*Resolver, *task.Store) {
	t.Helper()
	root := t.TempDir()
	st := state.NewStore(0)
	tasks := task.NewStore(st, root)
	return NewResolver(st, tasks, root), tasks
}

// assignTask gives agentID a live task at the given priority.
func assignTask(t *testing.T, tasks *task.Store, agentID string, priority task.Priority) {
	t.Helper()
	tk, err := tasks.Create("work for "+agentID, "agent-0", task.CreateOptions{Priority: priority})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tasks.Assign(tk.TaskID, agentID, "agent-0"); err != nil {
		t.Fatal(err)
	}
}

func TestFileLockConflictRecorded(t *testing.T) {
	r, _ := newTestResolver(t)

	c, err := r.FileLockConflict("agent-2", "agent-1", "src/auth.py")
	if err != nil {
		t.Fatal(err)
	}
	if c.Type != TypeFileLock || c.Status != StatusPending || c.Resource != "src/auth.py" {
		t.Errorf("conflict = %+v", c)
	}

	got, err := r.Get(c.ConflictID)
	if err != nil || got.ConflictID != c.ConflictID {
		t.Errorf("Get = %+v (err %v)", got, err)
	}

	pending, err := r.List(StatusPending)
	if err != nil || len(pending) != 1 {
		t.Errorf("pending = %+v (err %v)", pending, err)
	}
}

func TestResolveByPriority(t *testing.T) {
	r, tasks := newTestResolver(t)
	assignTask(t, tasks, "agent-1", task.PriorityLow)      // holder
	assignTask(t, tasks, "agent-2", task.PriorityCritical) // requester

	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Resolve(c.ConflictID, false)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != StatusResolved || resolved.Resolution == nil {
		t.Fatalf("resolved = %+v", resolved)
	}
	if resolved.Resolution.Strategy != StrategyPriority || resolved.Resolution.Winner != "agent-2" {
		t.Errorf("resolution = %+v", resolved.Resolution)
	}
	if len(resolved.Steps) == 0 {
		t.Error("no steps recorded")
	}
}

func TestResolveSeniorityOnTie(t *testing.T) {
	r, tasks := newTestResolver(t)
	assignTask(t, tasks, "agent-1", task.PriorityNormal)
	assignTask(t, tasks, "agent-2", task.PriorityNormal)

	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Resolve(c.ConflictID, false)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Resolution.Strategy != StrategySeniority || resolved.Resolution.Winner != "agent-1" {
		t.Errorf("resolution = %+v", resolved.Resolution)
	}
}

func TestResolveExplicitYield(t *testing.T) {
	r, _ := newTestResolver(t)
	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Resolve(c.ConflictID, true)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Resolution.Strategy != StrategyYield || resolved.Resolution.Winner != "agent-1" {
		t.Errorf("resolution = %+v", resolved.Resolution)
	}

	// A second resolve is rejected.
	if _, err := r.Resolve(c.ConflictID, false); err == nil {
		t.Error("re-resolve accepted")
	}
}

func TestNegotiationSingleYield(t *testing.T) {
	r, _ := newTestResolver(t)
	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Negotiate(c.ConflictID, "agent-2", ActionInsist, "I need this file"); err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Negotiate(c.ConflictID, "agent-1", ActionYield, "take it")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != StatusResolved || resolved.Resolution.Winner != "agent-2" {
		t.Errorf("resolved = %+v", resolved)
	}
}

func TestNegotiationInsistBeatsCompromise(t *testing.T) {
	r, _ := newTestResolver(t)
	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Negotiate(c.ConflictID, "agent-2", ActionCompromise, ""); err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Negotiate(c.ConflictID, "agent-1", ActionInsist, "")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Resolution == nil || resolved.Resolution.Winner != "agent-1" {
		t.Errorf("resolved = %+v", resolved)
	}
}

func TestNegotiationDoubleYieldFallsBack(t *testing.T) {
	r, tasks := newTestResolver(t)
	assignTask(t, tasks, "agent-1", task.PriorityHigh) // holder outranks
	assignTask(t, tasks, "agent-2", task.PriorityLow)

	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Negotiate(c.ConflictID, "agent-2", ActionYield, ""); err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Negotiate(c.ConflictID, "agent-1", ActionYield, "")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Resolution.Strategy != StrategyPriority || resolved.Resolution.Winner != "agent-1" {
		t.Errorf("resolution = %+v", resolved.Resolution)
	}
}

func TestNegotiationDoubleInsistEscalates(t *testing.T) {
	r, _ := newTestResolver(t)
	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}

	var last Conflict
	for round := 1; round <= MaxNegotiationRounds; round++ {
		if _, err := r.Negotiate(c.ConflictID, "agent-2", ActionInsist, ""); err != nil {
			t.Fatalf("round %d requester: %v", round, err)
		}
		last, err = r.Negotiate(c.ConflictID, "agent-1", ActionInsist, "")
		if err != nil {
			t.Fatalf("round %d holder: %v", round, err)
		}
		if round < MaxNegotiationRounds && last.Status != StatusResolving {
			t.Fatalf("round %d: status = %s", round, last.Status)
		}
	}

	if last.Status != StatusEscalated {
		t.Errorf("status = %s, want escalated", last.Status)
	}
	if last.Resolution == nil || last.Resolution.Strategy != StrategySeniority || last.Resolution.Winner != "agent-1" {
		t.Errorf("resolution = %+v", last.Resolution)
	}
	if len(last.Negotiations) != 2*MaxNegotiationRounds {
		t.Errorf("negotiations = %d", len(last.Negotiations))
	}
}

func TestNegotiateRejectsOutsiders(t *testing.T) {
	r, _ := newTestResolver(t)
	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Negotiate(c.ConflictID, "agent-9", ActionYield, ""); err == nil {
		t.Error("outsider accepted")
	}
	if _, err := r.Negotiate(c.ConflictID, "agent-2", "surrender", ""); err == nil {
		t.Error("bad action accepted")
	}
	if _, err := r.Negotiate("no-such-conflict", "agent-2", ActionYield, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestDoubleMoveInRoundRejected(t *testing.T) {
	r, _ := newTestResolver(t)
	c, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Negotiate(c.ConflictID, "agent-2", ActionInsist, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Negotiate(c.ConflictID, "agent-2", ActionYield, ""); err == nil {
		t.Error("second move in same round accepted")
	}
}

func TestLogCap(t *testing.T) {
	r, _ := newTestResolver(t)
	for i := 0; i < maxLog+10; i++ {
		if _, err := r.FileLockConflict("agent-2", "agent-1", "src/a.go"); err != nil {
			t.Fatal(err)
		}
	}
	all, err := r.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != maxLog {
		t.Errorf("log length = %d, want %d", len(all), maxLog)
	}
}
