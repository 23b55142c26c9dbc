package memory

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/cards"
	"github.com/claudeswarm/claudeswarm/internal/state"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	return NewManager(state.NewStore(0), root), root
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRememberTaskRing(t *testing.T) {
	m, _ := newTestManager(t)

	for i := 0; i < maxTaskMemories+5; i++ {
		err := m.RememberTask("agent-1", TaskMemory{
			TaskID:    fmt.Sprintf("t-%d", i),
			Objective: "work",
			Success:   true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	mem, err := m.Load("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mem.Tasks) != maxTaskMemories {
		t.Fatalf("ring size = %d", len(mem.Tasks))
	}
	// Newest first; the oldest five fell off.
	if mem.Tasks[0].TaskID != fmt.Sprintf("t-%d", maxTaskMemories+4) {
		t.Errorf("head = %s", mem.Tasks[0].TaskID)
	}
	if mem.Tasks[len(mem.Tasks)-1].TaskID != "t-5" {
		t.Errorf("tail = %s", mem.Tasks[len(mem.Tasks)-1].TaskID)
	}
}

func TestLearnPatternReinforcement(t *testing.T) {
	m, _ := newTestManager(t)

	p1, err := m.LearnPattern("agent-1", "run tests before review", 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if p1.Occurrences != 1 || p1.Effectiveness != 1.0 {
		t.Errorf("p1 = %+v", p1)
	}

	// Same description reinforces instead of duplicating.
	p2, err := m.LearnPattern("agent-1", "run tests before review", 0.0)
	if err != nil {
		t.Fatal(err)
	}
	if p2.Occurrences != 2 || !approx(p2.Effectiveness, 0.8) {
		t.Errorf("p2 = %+v", p2)
	}

	mem, _ := m.Load("agent-1")
	if len(mem.Patterns) != 1 {
		t.Errorf("patterns = %+v", mem.Patterns)
	}
}

func TestLearnPatternPrunesLeastEffective(t *testing.T) {
	m, _ := newTestManager(t)

	for i := 0; i < maxPatterns; i++ {
		eff := float64(i+1) / float64(maxPatterns+1)
		if _, err := m.LearnPattern("agent-1", fmt.Sprintf("pattern %d", i), eff); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := m.LearnPattern("agent-1", "the winning pattern", 1.0); err != nil {
		t.Fatal(err)
	}

	mem, _ := m.Load("agent-1")
	if len(mem.Patterns) != maxPatterns {
		t.Fatalf("patterns = %d", len(mem.Patterns))
	}
	lowest := 2.0
	hasWinner := false
	for _, p := range mem.Patterns {
		if p.Effectiveness < lowest {
			lowest = p.Effectiveness
		}
		if p.Description == "the winning pattern" {
			hasWinner = true
		}
	}
	if !hasWinner {
		t.Error("new high-effectiveness pattern was pruned")
	}
	// "pattern 0" with the lowest effectiveness is gone.
	if approx(lowest, 1.0/float64(maxPatterns+1)) {
		t.Errorf("least effective pattern survived: %v", lowest)
	}
}

func TestRecordInteractionBlending(t *testing.T) {
	m, _ := newTestManager(t)

	rel, err := m.RecordInteraction("agent-1", "agent-2", true)
	if err != nil {
		t.Fatal(err)
	}
	// First interaction: w = min(0.3, 5/1) = 0.3, ratio 1.
	if !approx(rel.Trust, 0.7*0.5+0.3*1.0) {
		t.Errorf("trust = %v", rel.Trust)
	}
	if rel.Interactions != 1 || rel.Positive != 1 {
		t.Errorf("rel = %+v", rel)
	}

	rel, err = m.RecordInteraction("agent-1", "agent-2", false)
	if err != nil {
		t.Fatal(err)
	}
	// Second: ratio 0.5, w still 0.3.
	want := 0.7*(0.7*0.5+0.3*1.0) + 0.3*0.5
	if !approx(rel.Trust, want) || !approx(rel.Reliability, want) {
		t.Errorf("trust = %v, want %v", rel.Trust, want)
	}

	// After many interactions the weight shrinks to 5/total.
	for i := 0; i < 48; i++ {
		if _, err := m.RecordInteraction("agent-1", "agent-2", true); err != nil {
			t.Fatal(err)
		}
	}
	mem, _ := m.Load("agent-1")
	got := mem.Relationships["agent-2"]
	if got.Interactions != 50 {
		t.Fatalf("interactions = %d", got.Interactions)
	}
	if got.Trust <= 0.8 {
		t.Errorf("trust after a long positive run = %v", got.Trust)
	}
}

func TestKnowledgeAndPreferences(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.SetKnowledge("agent-1", "build", "make test runs the suite"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetPreference("agent-1", "review_style", "inline comments"); err != nil {
		t.Fatal(err)
	}

	mem, err := m.Load("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if mem.Knowledge["build"] == "" || mem.Preferences["review_style"] == "" {
		t.Errorf("memory = %+v", mem)
	}
}

func TestCorruptMemoryFileDeleted(t *testing.T) {
	m, root := newTestManager(t)
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "agent-1.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	mem, err := m.Load("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mem.Tasks) != 0 || len(mem.Patterns) != 0 {
		t.Errorf("memory = %+v", mem)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt file not deleted")
	}
}

func TestLearningRecordTaskCompleted(t *testing.T) {
	root := t.TempDir()
	st := state.NewStore(0)
	cardReg := cards.NewRegistry(st, root)
	l := NewLearning(st, cardReg, root)

	if _, err := cardReg.Register(cards.Card{AgentID: "agent-1", Skills: []string{"go"}}); err != nil {
		t.Fatal(err)
	}

	if err := l.RecordTaskStarted("agent-1"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordTaskCompleted("agent-1", []string{"go"}, true, 90*time.Second); err != nil {
		t.Fatal(err)
	}

	s, err := l.Stats("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if s.TasksInProgress != 0 || s.TasksCompleted != 1 {
		t.Errorf("stats = %+v", s)
	}
	// First sample seeds the EMAs directly.
	if !approx(s.SuccessRate, 1.0) || !approx(s.SkillRates["go"], 1.0) || !approx(s.AvgCompletionSecs, 90) {
		t.Errorf("stats = %+v", s)
	}

	// A failure blends in with weight 0.1.
	if err := l.RecordTaskCompleted("agent-1", []string{"go"}, false, 110*time.Second); err != nil {
		t.Fatal(err)
	}
	s, _ = l.Stats("agent-1")
	if !approx(s.SuccessRate, 0.9) || !approx(s.SkillRates["go"], 0.9) {
		t.Errorf("stats = %+v", s)
	}
	if !approx(s.AvgCompletionSecs, 0.9*90+0.1*110) {
		t.Errorf("avg = %v", s.AvgCompletionSecs)
	}

	// Rates propagated into the card registry.
	card, err := cardReg.Get("agent-1")
	if err != nil || !approx(card.SuccessRates["go"], 0.9) {
		t.Errorf("card = %+v (err %v)", card, err)
	}
}

func TestLearningInProgressFloorsAtZero(t *testing.T) {
	l := NewLearning(state.NewStore(0), nil, t.TempDir())

	if err := l.RecordTaskCompleted("agent-1", nil, true, time.Second); err != nil {
		t.Fatal(err)
	}
	s, err := l.Stats("agent-1")
	if err != nil || s.TasksInProgress != 0 {
		t.Errorf("stats = %+v (err %v)", s, err)
	}
}
