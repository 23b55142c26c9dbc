package task

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(state.NewStore(0), t.TempDir())
}

func mustCreate(t *testing.T, s *Store, objective string, opts CreateOptions) Task {
	t.Helper()
	task, err := s.Create(objective, "agent-1", opts)
	if err != nil {
		t.Fatalf("Create(%q): %v", objective, err)
	}
	return task
}

func TestCreateDefaults(t *testing.T) {
	s := newTestStore(t)
	task := mustCreate(t, s, "implement login", CreateOptions{})

	if task.Status != StatusPending || task.Priority != PriorityNormal {
		t.Errorf("task = %+v", task)
	}
	if task.TaskID == "" || len(task.History) != 0 {
		t.Errorf("task = %+v", task)
	}

	got, err := s.Get(task.TaskID)
	if err != nil || got.Objective != "implement login" {
		t.Errorf("Get = %+v (err %v)", got, err)
	}
}

func TestAssignAndWork(t *testing.T) {
	s := newTestStore(t)
	task := mustCreate(t, s, "write tests", CreateOptions{})

	task, err := s.Assign(task.TaskID, "agent-2", "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusAssigned || task.AssignedTo != "agent-2" {
		t.Errorf("task = %+v", task)
	}
	if len(task.History) != 1 || task.History[0].From != StatusPending || task.History[0].To != StatusAssigned {
		t.Errorf("history = %+v", task.History)
	}

	task, err = s.Transition(task.TaskID, StatusWorking, "agent-2", "starting", nil)
	if err != nil {
		t.Fatal(err)
	}
	task, err = s.Complete(task.TaskID, "agent-2", "all green")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusCompleted || task.Result != "all green" {
		t.Errorf("task = %+v", task)
	}
	// Terminal states do not carry an assignee.
	if task.AssignedTo != "" {
		t.Errorf("assignee on terminal task: %q", task.AssignedTo)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	s := newTestStore(t)
	task := mustCreate(t, s, "x", CreateOptions{})

	// pending -> working skips assignment.
	if _, err := s.Transition(task.TaskID, StatusWorking, "agent-1", "", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v", err)
	}

	// Terminal states admit nothing.
	if _, err := s.Cancel(task.TaskID, "agent-1", "abandoned"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition(task.TaskID, StatusPending, "agent-1", "", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("transition out of cancelled: %v", err)
	}

	// The failed transition left no history entry.
	got, err := s.Get(task.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != 1 {
		t.Errorf("history = %+v", got.History)
	}
}

func TestFailedRetriesToPending(t *testing.T) {
	s := newTestStore(t)
	task := mustCreate(t, s, "flaky", CreateOptions{})
	if _, err := s.Assign(task.TaskID, "agent-2", "agent-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition(task.TaskID, StatusWorking, "agent-2", "", nil); err != nil {
		t.Fatal(err)
	}
	failed, err := s.Fail(task.TaskID, "agent-2", "compile error")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Error != "compile error" || failed.AssignedTo != "" {
		t.Errorf("failed = %+v", failed)
	}

	retried, err := s.Transition(task.TaskID, StatusPending, "agent-1", "retry", nil)
	if err != nil {
		t.Fatal(err)
	}
	if retried.Status != StatusPending {
		t.Errorf("retried = %+v", retried)
	}
}

func TestBlockUnblockKeepsAssignee(t *testing.T) {
	s := newTestStore(t)
	task := mustCreate(t, s, "dependent", CreateOptions{})
	other := mustCreate(t, s, "dependency", CreateOptions{})

	if _, err := s.Assign(task.TaskID, "agent-2", "agent-1"); err != nil {
		t.Fatal(err)
	}
	blocked, err := s.Block(task.TaskID, "agent-2", []string{other.TaskID}, "waiting on dependency")
	if err != nil {
		t.Fatal(err)
	}
	if blocked.AssignedTo != "agent-2" || len(blocked.BlockedBy) != 1 {
		t.Errorf("blocked = %+v", blocked)
	}

	unblocked, err := s.Unblock(task.TaskID, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if unblocked.Status != StatusAssigned || unblocked.AssignedTo != "agent-2" {
		t.Errorf("unblocked = %+v", unblocked)
	}
}

func TestUnblockWithoutAssigneeGoesPending(t *testing.T) {
	s := newTestStore(t)
	task := mustCreate(t, s, "x", CreateOptions{})

	// A bare Transition to assigned records no assignee, so the blocked
	// task has none to return to.
	if _, err := s.Transition(task.TaskID, StatusAssigned, "agent-1", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Block(task.TaskID, "agent-1", nil, ""); err != nil {
		t.Fatal(err)
	}
	unblocked, err := s.Unblock(task.TaskID, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if unblocked.Status != StatusPending {
		t.Errorf("unblocked = %+v", unblocked)
	}
}

func TestUnblockDecidesFromLockedState(t *testing.T) {
	root := t.TempDir()
	s := NewStore(state.NewStore(0), root)
	other := NewStore(state.NewStore(0), root)

	for i := 0; i < 20; i++ {
		task := mustCreate(t, s, fmt.Sprintf("contended %d", i), CreateOptions{})
		if _, err := s.Assign(task.TaskID, "agent-2", "agent-1"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Block(task.TaskID, "agent-2", nil, "waiting"); err != nil {
			t.Fatal(err)
		}

		// Another process requeues the task while we unblock it. Losing
		// the race to Unblock is fine; routing the task to assigned with
		// nobody assigned is not.
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = other.Transition(task.TaskID, StatusPending, "agent-3", "requeue", nil)
		}()
		_, _ = s.Unblock(task.TaskID, "agent-1")
		wg.Wait()

		final, err := s.Get(task.TaskID)
		if err != nil {
			t.Fatal(err)
		}
		if final.Status == StatusAssigned && final.AssignedTo == "" {
			t.Fatalf("iteration %d: assigned with no assignee: %+v", i, final)
		}
		if final.Status == StatusPending && final.AssignedTo != "" {
			t.Fatalf("iteration %d: pending with an assignee: %+v", i, final)
		}
	}
}

func TestListSortsByPriorityThenAge(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	low := mustCreate(t, s, "low", CreateOptions{Priority: PriorityLow})
	critical := mustCreate(t, s, "critical", CreateOptions{Priority: PriorityCritical})
	normalOld := mustCreate(t, s, "normal old", CreateOptions{})
	normalNew := mustCreate(t, s, "normal new", CreateOptions{})

	list, err := s.List(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []string{critical.TaskID, normalOld.TaskID, normalNew.TaskID, low.TaskID}
	if len(list) != len(wantOrder) {
		t.Fatalf("list = %d tasks", len(list))
	}
	for i, want := range wantOrder {
		if list[i].TaskID != want {
			t.Errorf("list[%d] = %s (%s), want %s", i, list[i].TaskID, list[i].Objective, want)
		}
	}
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, "a", CreateOptions{ContextID: "ctx-1"})
	b := mustCreate(t, s, "b", CreateOptions{})
	if _, err := s.Assign(a.TaskID, "agent-2", "agent-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Cancel(b.TaskID, "agent-1", "dropped"); err != nil {
		t.Fatal(err)
	}

	byAssignee, err := s.List(Filter{AssignedTo: "agent-2"})
	if err != nil || len(byAssignee) != 1 || byAssignee[0].TaskID != a.TaskID {
		t.Errorf("byAssignee = %+v (err %v)", byAssignee, err)
	}

	// Terminal tasks hidden by default, visible on request.
	all, _ := s.List(Filter{})
	if len(all) != 1 {
		t.Errorf("default list = %+v", all)
	}
	withTerminal, _ := s.List(Filter{IncludeTerminal: true})
	if len(withTerminal) != 2 {
		t.Errorf("withTerminal = %+v", withTerminal)
	}
	cancelled, _ := s.List(Filter{Status: StatusCancelled})
	if len(cancelled) != 1 || cancelled[0].TaskID != b.TaskID {
		t.Errorf("cancelled = %+v", cancelled)
	}
}

func TestSubtasks(t *testing.T) {
	s := newTestStore(t)
	parent := mustCreate(t, s, "parent", CreateOptions{})
	child := mustCreate(t, s, "child", CreateOptions{ParentTaskID: parent.TaskID})

	subs, err := s.Subtasks(parent.TaskID)
	if err != nil || len(subs) != 1 || subs[0].TaskID != child.TaskID {
		t.Errorf("subs = %+v (err %v)", subs, err)
	}

	// Unknown parent is rejected at creation.
	if _, err := s.Create("orphan", "agent-1", CreateOptions{ParentTaskID: "no-such-task"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, "a", CreateOptions{})
	b := mustCreate(t, s, "b", CreateOptions{Priority: PriorityHigh})
	if _, err := s.Assign(b.TaskID, "agent-2", "agent-1"); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.ByStatus[StatusPending] != 1 || stats.ByStatus[StatusAssigned] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByPriority[PriorityHigh] != 1 || stats.ByPriority[PriorityNormal] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestContextStore(t *testing.T) {
	root := t.TempDir()
	st := state.NewStore(0)
	cs := NewContextStore(st, root)
	ts := NewStore(st, root)

	ctx, err := cs.Create("auth-work", "everything around login", "agent-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cs.AddDecision(ctx.ContextID, "use argon2 for hashing"); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.AddFiles(ctx.ContextID, "src/auth.go", "src/auth.go", "src/session.go"); err != nil {
		t.Fatal(err)
	}
	got, err := cs.Get(ctx.ContextID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Decisions) != 1 || len(got.Files) != 2 {
		t.Errorf("context = %+v", got)
	}

	// Tasks join the context by id.
	task, err := ts.Create("add login", "agent-1", CreateOptions{ContextID: ctx.ContextID})
	if err != nil {
		t.Fatal(err)
	}
	inCtx, err := ts.ContextTasks(ctx.ContextID)
	if err != nil || len(inCtx) != 1 || inCtx[0].TaskID != task.TaskID {
		t.Errorf("inCtx = %+v (err %v)", inCtx, err)
	}

	if _, err := cs.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusWorking, false},
		{StatusAssigned, StatusPending, true},
		{StatusWorking, StatusCompleted, true},
		{StatusWorking, StatusAssigned, false},
		{StatusReview, StatusWorking, true},
		{StatusBlocked, StatusFailed, true},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusAssigned, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}
