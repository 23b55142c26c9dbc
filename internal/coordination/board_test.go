package coordination

import (
	"strings"
	"testing"

	"github.com/claudeswarm/claudeswarm/internal/state"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	return NewBoard(state.NewStore(0), t.TempDir())
}

func TestUpdateCreatesSection(t *testing.T) {
	b := newTestBoard(t)

	if err := b.UpdateSection("Current Work", "agent-1 is refactoring auth"); err != nil {
		t.Fatal(err)
	}
	got, err := b.GetSection("Current Work")
	if err != nil || got != "agent-1 is refactoring auth" {
		t.Errorf("GetSection = %q (err %v)", got, err)
	}

	names, err := b.Sections()
	if err != nil || len(names) != 1 || names[0] != "Current Work" {
		t.Errorf("Sections = %v (err %v)", names, err)
	}
}

func TestUpdateReplacesOnlyTargetSection(t *testing.T) {
	b := newTestBoard(t)
	if err := b.UpdateSection("Decisions", "use postgres"); err != nil {
		t.Fatal(err)
	}
	if err := b.UpdateSection("Blockers", "waiting on review"); err != nil {
		t.Fatal(err)
	}
	if err := b.UpdateSection("Decisions", "use sqlite instead"); err != nil {
		t.Fatal(err)
	}

	decisions, err := b.GetSection("Decisions")
	if err != nil || decisions != "use sqlite instead" {
		t.Errorf("Decisions = %q (err %v)", decisions, err)
	}
	blockers, err := b.GetSection("Blockers")
	if err != nil || blockers != "waiting on review" {
		t.Errorf("Blockers = %q (err %v)", blockers, err)
	}

	content, _ := b.Read()
	if strings.Contains(content, "use postgres") {
		t.Errorf("old body survived:\n%s", content)
	}
}

func TestAppendToSection(t *testing.T) {
	b := newTestBoard(t)
	if err := b.AppendToSection("Log", "- first entry"); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendToSection("Log", "- second entry"); err != nil {
		t.Fatal(err)
	}

	got, err := b.GetSection("Log")
	if err != nil {
		t.Fatal(err)
	}
	if got != "- first entry\n- second entry" {
		t.Errorf("Log = %q", got)
	}
}

func TestGetSectionMissing(t *testing.T) {
	b := newTestBoard(t)
	if _, err := b.GetSection("Nope"); err == nil {
		t.Error("missing section found")
	}
}

func TestHandEditedFileSurvives(t *testing.T) {
	b := newTestBoard(t)
	if err := b.UpdateSection("Notes", "hand-off notes"); err != nil {
		t.Fatal(err)
	}

	// Headings deeper than level two belong to the section body.
	if err := b.UpdateSection("Notes", "### sub\ndetail"); err != nil {
		t.Fatal(err)
	}
	got, err := b.GetSection("Notes")
	if err != nil || got != "### sub\ndetail" {
		t.Errorf("Notes = %q (err %v)", got, err)
	}
}
