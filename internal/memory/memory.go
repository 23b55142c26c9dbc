// Package memory persists what each agent has learned: recent tasks,
// effective patterns, relationship scores, and free-form knowledge, one
// JSON file per agent under .agent_memory/. The aggregate learning
// layer (LEARNING_DATA.json) lives in learning.go.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// Dir is the directory of per-agent memory files under the project root.
const Dir = ".agent_memory"

// Collection caps.
const (
	maxTaskMemories = 50
	maxPatterns     = 100
)

// patternEMAWeight blends repeated pattern observations.
const patternEMAWeight = 0.2

// TaskMemory is one remembered task outcome.
type TaskMemory struct {
	TaskID      string    `json:"task_id"`
	Objective   string    `json:"objective"`
	Outcome     string    `json:"outcome"`
	Success     bool      `json:"success"`
	CompletedAt time.Time `json:"completed_at"`
}

// Pattern is a learned approach, deduplicated by description hash and
// reinforced on re-observation.
type Pattern struct {
	Hash          string    `json:"hash"`
	Description   string    `json:"description"`
	Effectiveness float64   `json:"effectiveness"`
	Occurrences   int       `json:"occurrences"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// Relationship tracks how an agent experiences working with a peer.
// Trust and reliability start at 0.5 and converge on the positive ratio.
type Relationship struct {
	AgentID      string    `json:"agent_id"`
	Trust        float64   `json:"trust"`
	Reliability  float64   `json:"reliability"`
	Interactions int       `json:"interactions"`
	Positive     int       `json:"positive"`
	LastAt       time.Time `json:"last_at"`
}

// Memory is the whole per-agent record.
type Memory struct {
	AgentID       string                  `json:"agent_id"`
	Tasks         []TaskMemory            `json:"tasks"` // newest first
	Patterns      []Pattern               `json:"patterns"`
	Relationships map[string]Relationship `json:"relationships"`
	Knowledge     map[string]string       `json:"knowledge"`
	Preferences   map[string]string       `json:"preferences"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Manager reads and writes per-agent memory files.
type Manager struct {
	store *state.Store
	root  string

	now func() time.Time // overridden in tests
}

// NewManager creates a memory manager rooted at the project root.
func NewManager(st *state.Store, root string) *Manager {
	return &Manager{store: st, root: root, now: time.Now}
}

func (m *Manager) path(agentID string) string {
	return filepath.Join(m.root, Dir, agentID+".json")
}

// Load returns an agent's memory, empty when none exists. A corrupt
// memory file is a per-record artifact: it is deleted and treated as
// absent.
func (m *Manager) Load(agentID string) (Memory, error) {
	if err := validate.AgentID(agentID); err != nil {
		return Memory{}, err
	}
	data, err := m.store.ReadLocked(m.path(agentID))
	if err != nil {
		return Memory{}, err
	}
	return m.decode(agentID, data), nil
}

// RememberTask prepends a task outcome to the agent's history ring.
func (m *Manager) RememberTask(agentID string, tm TaskMemory) error {
	return m.mutate(agentID, func(mem *Memory) {
		mem.Tasks = append([]TaskMemory{tm}, mem.Tasks...)
		if len(mem.Tasks) > maxTaskMemories {
			mem.Tasks = mem.Tasks[:maxTaskMemories]
		}
	})
}

// LearnPattern records an approach and how well it worked. Repeat
// observations of the same description reinforce the stored
// effectiveness as an EMA; the pattern set is capped by pruning the
// least effective entry.
func (m *Manager) LearnPattern(agentID, description string, effectiveness float64) (Pattern, error) {
	effectiveness = min(1, max(0, effectiveness))
	hash := patternHash(description)
	var result Pattern
	err := m.mutate(agentID, func(mem *Memory) {
		now := m.now().UTC()
		for i := range mem.Patterns {
			if mem.Patterns[i].Hash != hash {
				continue
			}
			p := &mem.Patterns[i]
			p.Effectiveness = (1-patternEMAWeight)*p.Effectiveness + patternEMAWeight*effectiveness
			p.Occurrences++
			p.LastSeen = now
			result = *p
			return
		}

		p := Pattern{
			Hash:          hash,
			Description:   description,
			Effectiveness: effectiveness,
			Occurrences:   1,
			FirstSeen:     now,
			LastSeen:      now,
		}
		mem.Patterns = append(mem.Patterns, p)
		if len(mem.Patterns) > maxPatterns {
			sort.Slice(mem.Patterns, func(i, j int) bool {
				return mem.Patterns[i].Effectiveness > mem.Patterns[j].Effectiveness
			})
			mem.Patterns = mem.Patterns[:maxPatterns]
		}
		result = p
	})
	return result, err
}

// RecordInteraction updates the relationship with a peer. Trust and
// reliability blend toward the positive ratio with weight
// min(0.3, 5/total), so early interactions move the score fast and a
// long history dampens single outcomes.
func (m *Manager) RecordInteraction(agentID, otherID string, positive bool) (Relationship, error) {
	if err := validate.AgentID(otherID); err != nil {
		return Relationship{}, err
	}
	var result Relationship
	err := m.mutate(agentID, func(mem *Memory) {
		rel, ok := mem.Relationships[otherID]
		if !ok {
			rel = Relationship{AgentID: otherID, Trust: 0.5, Reliability: 0.5}
		}
		rel.Interactions++
		if positive {
			rel.Positive++
		}
		ratio := float64(rel.Positive) / float64(rel.Interactions)
		w := min(0.3, 5/float64(rel.Interactions))
		rel.Trust = (1-w)*rel.Trust + w*ratio
		rel.Reliability = (1-w)*rel.Reliability + w*ratio
		rel.LastAt = m.now().UTC()
		mem.Relationships[otherID] = rel
		result = rel
	})
	return result, err
}

// SetKnowledge stores a fact in the agent's knowledge map.
func (m *Manager) SetKnowledge(agentID, key, value string) error {
	return m.mutate(agentID, func(mem *Memory) {
		mem.Knowledge[key] = value
	})
}

// SetPreference stores a working preference.
func (m *Manager) SetPreference(agentID, key, value string) error {
	return m.mutate(agentID, func(mem *Memory) {
		mem.Preferences[key] = value
	})
}

// mutate runs a read-modify-write on one agent's memory file.
func (m *Manager) mutate(agentID string, fn func(*Memory)) error {
	if err := validate.AgentID(agentID); err != nil {
		return err
	}
	path := m.path(agentID)
	return m.store.Update(path, func(old []byte) ([]byte, error) {
		mem := m.decode(agentID, old)
		fn(&mem)
		mem.UpdatedAt = m.now().UTC()
		return json.MarshalIndent(mem, "", "  ")
	})
}

// decode parses a memory file, deleting it when corrupt, and guarantees
// initialized maps.
func (m *Manager) decode(agentID string, data []byte) Memory {
	mem := Memory{AgentID: agentID}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &mem); err != nil {
			log.Printf("warning: corrupt memory for %s, discarding: %v", agentID, err)
			_ = os.Remove(m.path(agentID))
			mem = Memory{AgentID: agentID}
		}
	}
	mem.AgentID = agentID
	if mem.Relationships == nil {
		mem.Relationships = make(map[string]Relationship)
	}
	if mem.Knowledge == nil {
		mem.Knowledge = make(map[string]string)
	}
	if mem.Preferences == nil {
		mem.Preferences = make(map[string]string)
	}
	return mem
}

func patternHash(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:8])
}
