// Package cards maintains AGENT_CARDS.json, the capability record each
// agent advertises: skills, tools, specializations, success rates, and
// availability. Reads go through a short-lived in-process cache because
// delegation scoring hits the registry once per candidate.
package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// CardsFile is the basename of the card registry.
const CardsFile = "AGENT_CARDS.json"

// cacheTTL bounds how stale a cached card set may be.
const cacheTTL = 5 * time.Second

// docFormat is the format tag carried by collection files.
const docFormat = "1.0"

// ErrNotFound means no card exists for the agent.
var ErrNotFound = errors.New("agent card not found")

// Availability is an agent's advertised readiness for new work.
type Availability string

const (
	Active  Availability = "active"
	Busy    Availability = "busy"
	Offline Availability = "offline"
)

// ParseAvailability validates an availability string.
func ParseAvailability(s string) (Availability, error) {
	switch Availability(s) {
	case Active, Busy, Offline:
		return Availability(s), nil
	}
	return "", fmt.Errorf("unknown availability %q", s)
}

// Card is one element of AGENT_CARDS.json.
type Card struct {
	AgentID         string             `json:"agent_id"`
	Name            string             `json:"name"`
	Skills          []string           `json:"skills,omitempty"`
	Tools           []string           `json:"tools,omitempty"`
	Availability    Availability       `json:"availability"`
	SuccessRates    map[string]float64 `json:"success_rates,omitempty"`
	Specializations []string           `json:"specializations,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Proficiency returns the agent's proficiency for a skill: the recorded
// success rate, 0.5 for a declared skill with no record yet, 0 for a
// skill the agent does not have.
func (c Card) Proficiency(skill string) float64 {
	if r, ok := c.SuccessRates[skill]; ok {
		return r
	}
	for _, s := range c.Skills {
		if s == skill {
			return 0.5
		}
	}
	return 0
}

// HasTool reports whether the card lists the tool.
func (c Card) HasTool(tool string) bool {
	for _, t := range c.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// HasSpecialization reports whether the card lists the specialization.
func (c Card) HasSpecialization(skill string) bool {
	for _, s := range c.Specializations {
		if s == skill {
			return true
		}
	}
	return false
}

type cardsDoc struct {
	Version   string          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Cards     map[string]Card `json:"cards"`
}

// Registry persists agent cards with a read cache.
type Registry struct {
	store *state.Store
	path  string

	mu       sync.Mutex
	cached   map[string]Card
	cachedAt time.Time

	now func() time.Time // overridden in tests
}

// NewRegistry creates a card registry rooted at the project root.
func NewRegistry(st *state.Store, root string) *Registry {
	return &Registry{
		store: st,
		path:  filepath.Join(root, CardsFile),
		now:   time.Now,
	}
}

// Register upserts a card. Success rates outside [0,1] are rejected; a
// zero availability defaults to active. Creation time is preserved on
// update.
func (r *Registry) Register(c Card) (Card, error) {
	if err := validate.AgentID(c.AgentID); err != nil {
		return Card{}, err
	}
	for skill, rate := range c.SuccessRates {
		if rate < 0 || rate > 1 {
			return Card{}, fmt.Errorf("success rate for %s out of range: %v", skill, rate)
		}
	}
	if c.Availability == "" {
		c.Availability = Active
	}
	if _, err := ParseAvailability(string(c.Availability)); err != nil {
		return Card{}, err
	}

	now := r.now().UTC()
	err := r.mutate(func(cards map[string]Card) error {
		if prev, ok := cards[c.AgentID]; ok {
			c.CreatedAt = prev.CreatedAt
		} else {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		cards[c.AgentID] = c
		return nil
	})
	if err != nil {
		return Card{}, err
	}
	return c, nil
}

// Get returns one card by agent id, bypassing the cache.
func (r *Registry) Get(agentID string) (Card, error) {
	cards, err := r.load()
	if err != nil {
		return Card{}, err
	}
	c, ok := cards[agentID]
	if !ok {
		return Card{}, fmt.Errorf("%s: %w", agentID, ErrNotFound)
	}
	return c, nil
}

// All returns every card, served from the cache when it is fresh.
func (r *Registry) All() (map[string]Card, error) {
	r.mu.Lock()
	if r.cached != nil && r.now().Sub(r.cachedAt) < cacheTTL {
		out := make(map[string]Card, len(r.cached))
		for k, v := range r.cached {
			out[k] = v
		}
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	cards, err := r.load()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cached = cards
	r.cachedAt = r.now()
	r.mu.Unlock()

	out := make(map[string]Card, len(cards))
	for k, v := range cards {
		out[k] = v
	}
	return out, nil
}

// ActiveCards returns the cards advertising availability=active.
func (r *Registry) ActiveCards() ([]Card, error) {
	cards, err := r.All()
	if err != nil {
		return nil, err
	}
	var out []Card
	for _, c := range cards {
		if c.Availability == Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// SetAvailability updates a card's availability.
func (r *Registry) SetAvailability(agentID string, a Availability) error {
	if _, err := ParseAvailability(string(a)); err != nil {
		return err
	}
	return r.update(agentID, func(c *Card) {
		c.Availability = a
	})
}

// SetSuccessRate records a skill success rate, clamped to [0,1]. The
// learning layer calls this to propagate EMA results.
func (r *Registry) SetSuccessRate(agentID, skill string, rate float64) error {
	rate = min(1, max(0, rate))
	return r.update(agentID, func(c *Card) {
		if c.SuccessRates == nil {
			c.SuccessRates = make(map[string]float64)
		}
		c.SuccessRates[skill] = rate
	})
}

// Remove deletes a card. Removing an absent card is not an error.
func (r *Registry) Remove(agentID string) error {
	return r.mutate(func(cards map[string]Card) error {
		delete(cards, agentID)
		return nil
	})
}

func (r *Registry) update(agentID string, fn func(*Card)) error {
	return r.mutate(func(cards map[string]Card) error {
		c, ok := cards[agentID]
		if !ok {
			return fmt.Errorf("%s: %w", agentID, ErrNotFound)
		}
		fn(&c)
		c.UpdatedAt = r.now().UTC()
		cards[agentID] = c
		return nil
	})
}

func (r *Registry) load() (map[string]Card, error) {
	data, err := r.store.ReadLocked(r.path)
	if err != nil {
		return nil, err
	}
	return decodeCards(data), nil
}

// mutate runs a read-modify-write on the collection and invalidates the
// cache.
func (r *Registry) mutate(fn func(cards map[string]Card) error) error {
	err := r.store.Update(r.path, func(old []byte) ([]byte, error) {
		cards := decodeCards(old)
		if err := fn(cards); err != nil {
			return nil, err
		}
		return json.MarshalIndent(cardsDoc{
			Version:   docFormat,
			UpdatedAt: r.now().UTC(),
			Cards:     cards,
		}, "", "  ")
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	return nil
}

func decodeCards(data []byte) map[string]Card {
	if len(data) == 0 {
		return make(map[string]Card)
	}
	var doc cardsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", CardsFile, err)
		return make(map[string]Card)
	}
	if doc.Cards == nil {
		doc.Cards = make(map[string]Card)
	}
	return doc.Cards
}
