package cards

import (
	"errors"
	"testing"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/state"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(state.NewStore(0), t.TempDir())
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)

	c, err := r.Register(Card{
		AgentID:         "python-agent",
		Name:            "Python specialist",
		Skills:          []string{"python", "backend", "testing"},
		Tools:           []string{"pytest"},
		SuccessRates:    map[string]float64{"python": 0.9},
		Specializations: []string{"python"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Availability != Active {
		t.Errorf("default availability = %s", c.Availability)
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", c.CreatedAt, c.UpdatedAt)
	}

	got, err := r.Get("python-agent")
	if err != nil || got.Name != "Python specialist" {
		t.Errorf("Get = %+v (err %v)", got, err)
	}

	if _, err := r.Get("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestRegisterRejectsBadRates(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(Card{
		AgentID:      "agent-1",
		SuccessRates: map[string]float64{"python": 1.2},
	})
	if err == nil {
		t.Error("out-of-range success rate accepted")
	}
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now().UTC()
	r.now = func() time.Time { return base }
	if _, err := r.Register(Card{AgentID: "agent-1"}); err != nil {
		t.Fatal(err)
	}

	r.now = func() time.Time { return base.Add(time.Hour) }
	updated, err := r.Register(Card{AgentID: "agent-1", Name: "renamed"})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", updated.CreatedAt, base)
	}
	if !updated.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("updated_at = %v", updated.UpdatedAt)
	}
}

func TestAvailabilityFilter(t *testing.T) {
	r := newTestRegistry(t)
	for id, a := range map[string]Availability{
		"agent-1": Active,
		"agent-2": Busy,
		"agent-3": Offline,
	} {
		if _, err := r.Register(Card{AgentID: id, Availability: a}); err != nil {
			t.Fatal(err)
		}
	}

	active, err := r.ActiveCards()
	if err != nil || len(active) != 1 || active[0].AgentID != "agent-1" {
		t.Errorf("active = %+v (err %v)", active, err)
	}

	if err := r.SetAvailability("agent-2", Active); err != nil {
		t.Fatal(err)
	}
	if active, _ := r.ActiveCards(); len(active) != 2 {
		t.Errorf("active after update = %+v", active)
	}

	if err := r.SetAvailability("agent-1", "sleeping"); err == nil {
		t.Error("bad availability accepted")
	}
}

func TestCacheServesWithinTTLAndInvalidatesOnWrite(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }
	if _, err := r.Register(Card{AgentID: "agent-1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := r.All(); err != nil {
		t.Fatal(err)
	}

	// A mutation invalidates the cache immediately, not after the TTL.
	if _, err := r.Register(Card{AgentID: "agent-2"}); err != nil {
		t.Fatal(err)
	}
	all, err := r.All()
	if err != nil || len(all) != 2 {
		t.Errorf("all = %+v (err %v)", all, err)
	}

	// The cache expires after the TTL even without writes.
	r.now = func() time.Time { return base.Add(cacheTTL + time.Second) }
	if all, _ := r.All(); len(all) != 2 {
		t.Errorf("all after expiry = %+v", all)
	}
}

func TestSetSuccessRateClamps(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Register(Card{AgentID: "agent-1", Skills: []string{"go"}}); err != nil {
		t.Fatal(err)
	}

	if err := r.SetSuccessRate("agent-1", "go", 1.5); err != nil {
		t.Fatal(err)
	}
	c, err := r.Get("agent-1")
	if err != nil || c.SuccessRates["go"] != 1 {
		t.Errorf("rate = %v (err %v)", c.SuccessRates, err)
	}

	if err := r.SetSuccessRate("nobody", "go", 0.5); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestProficiency(t *testing.T) {
	c := Card{
		Skills:       []string{"python", "testing"},
		SuccessRates: map[string]float64{"python": 0.9},
	}
	if got := c.Proficiency("python"); got != 0.9 {
		t.Errorf("recorded skill = %v", got)
	}
	if got := c.Proficiency("testing"); got != 0.5 {
		t.Errorf("declared-only skill = %v", got)
	}
	if got := c.Proficiency("frontend"); got != 0 {
		t.Errorf("missing skill = %v", got)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Register(Card{AgentID: "agent-1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove("agent-1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove("agent-1"); err != nil {
		t.Errorf("second remove: %v", err)
	}
	if _, err := r.Get("agent-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}
