// Package discovery maintains ACTIVE_AGENTS.json, the registry of live
// peer agents on this host. Agent IDs are stable: the same backend
// identifier keeps the same ID across refreshes, and new identifiers get
// the next free agent-<n> slot.
package discovery

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/backend"
	"github.com/claudeswarm/claudeswarm/internal/state"
)

// RegistryFile is the basename of the discovery registry.
const RegistryFile = "ACTIVE_AGENTS.json"

// Agent statuses.
const (
	StatusActive = "active"
	StatusStale  = "stale"
	StatusDead   = "dead"
)

// Stale threshold bounds (seconds) and default.
const (
	DefaultStaleThreshold = 60 * time.Second
	MinStaleThreshold     = 10 * time.Second
	MaxStaleThreshold     = time.Hour
)

// Agent is one registry entry.
type Agent struct {
	ID          string    `json:"id"`
	Identifier  string    `json:"identifier"`
	PID         int       `json:"pid"`
	SessionName string    `json:"session_name"`
	CWD         string    `json:"cwd,omitempty"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
}

// registryDoc is the on-disk shape of ACTIVE_AGENTS.json.
type registryDoc struct {
	SessionName string    `json:"session_name"`
	UpdatedAt   time.Time `json:"updated_at"`
	Agents      []Agent   `json:"agents"`
}

// Registry discovers agents through a backend and persists them.
type Registry struct {
	store          *state.Store
	backend        backend.Backend
	root           string
	sessionName    string
	staleThreshold time.Duration

	now func() time.Time // overridden in tests
}

// NewRegistry creates a registry rooted at the project root.
// A staleThreshold outside [10s, 1h] is clamped.
func NewRegistry(store *state.Store, b backend.Backend, root, sessionName string, staleThreshold time.Duration) *Registry {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	if staleThreshold < MinStaleThreshold {
		staleThreshold = MinStaleThreshold
	}
	if staleThreshold > MaxStaleThreshold {
		staleThreshold = MaxStaleThreshold
	}
	return &Registry{
		store:          store,
		backend:        b,
		root:           root,
		sessionName:    sessionName,
		staleThreshold: staleThreshold,
		now:            time.Now,
	}
}

func (r *Registry) path() string {
	return filepath.Join(r.root, RegistryFile)
}

// Refresh re-enumerates peers through the backend, reconciles them with
// the prior registry, and atomically replaces ACTIVE_AGENTS.json.
func (r *Registry) Refresh() ([]Agent, error) {
	peers, err := r.backend.Peers(r.root)
	if err != nil {
		return nil, fmt.Errorf("enumerating peers: %w", err)
	}

	now := r.now().UTC()
	var result []Agent

	err = r.store.Update(r.path(), func(old []byte) ([]byte, error) {
		prior := decodeRegistry(old)

		byIdentifier := make(map[string]Agent, len(prior.Agents))
		maxID := 0
		for _, a := range prior.Agents {
			byIdentifier[a.Identifier] = a
			if n, ok := agentNumber(a.ID); ok && n > maxID {
				maxID = n
			}
		}

		seen := make(map[string]bool, len(peers))
		var agents []Agent
		for _, p := range peers {
			seen[p.Identifier] = true
			id := ""
			if prev, ok := byIdentifier[p.Identifier]; ok {
				id = prev.ID
			} else {
				maxID++
				id = "agent-" + strconv.Itoa(maxID)
			}
			session := p.SessionName
			if session == "" {
				session = r.sessionName
			}
			agents = append(agents, Agent{
				ID:          id,
				Identifier:  p.Identifier,
				PID:         p.PID,
				SessionName: session,
				CWD:         p.CWD,
				Status:      StatusActive,
				LastSeen:    now,
			})
		}

		// Age out entries that were not rediscovered: keep them as stale
		// within the threshold, drop them past it.
		for _, a := range prior.Agents {
			if seen[a.Identifier] {
				continue
			}
			if now.Sub(a.LastSeen) < r.staleThreshold {
				a.Status = StatusStale
				agents = append(agents, a)
			}
		}

		result = agents
		return json.MarshalIndent(registryDoc{
			SessionName: r.sessionName,
			UpdatedAt:   now,
			Agents:      agents,
		}, "", "  ")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Load reads the registry without refreshing it.
func (r *Registry) Load() ([]Agent, error) {
	data, err := r.store.ReadLocked(r.path())
	if err != nil {
		return nil, err
	}
	return decodeRegistry(data).Agents, nil
}

// Active returns only the active entries from the persisted registry.
func (r *Registry) Active() ([]Agent, error) {
	agents, err := r.Load()
	if err != nil {
		return nil, err
	}
	var active []Agent
	for _, a := range agents {
		if a.Status == StatusActive {
			active = append(active, a)
		}
	}
	return active, nil
}

// Resolve finds a registry entry by agent ID.
func (r *Registry) Resolve(agentID string) (Agent, bool, error) {
	agents, err := r.Load()
	if err != nil {
		return Agent{}, false, err
	}
	for _, a := range agents {
		if a.ID == agentID {
			return a, true, nil
		}
	}
	return Agent{}, false, nil
}

// decodeRegistry parses a registry document, treating corrupt contents as
// an empty registry. The next refresh rewrites the file anyway.
func decodeRegistry(data []byte) registryDoc {
	var doc registryDoc
	if len(data) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", RegistryFile, err)
		return registryDoc{}
	}
	return doc
}

// agentNumber parses the numeric suffix of an "agent-<n>" ID.
func agentNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "agent-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
