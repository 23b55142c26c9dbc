// Package conflict records and resolves disputes between agents over
// shared resources, persisted in CONFLICT_LOG.json. A denied file lock
// becomes a file_lock conflict between the requester and the holder;
// resolution walks a fixed strategy ladder or runs an explicit
// negotiation between the two parties.
package conflict

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/task"
)

// LogFile is the basename of the conflict log.
const LogFile = "CONFLICT_LOG.json"

// maxLog caps the conflict log; older entries are dropped first.
const maxLog = 500

// MaxNegotiationRounds bounds a negotiation before the seniority
// fallback decides it.
const MaxNegotiationRounds = 5

// docFormat is the format tag carried by collection files.
const docFormat = "1.0"

// ErrNotFound means the conflict id has no entry.
var ErrNotFound = errors.New("conflict not found")

// Type classifies what the conflict is about.
type Type string

const (
	TypeFileLock Type = "file_lock"
	TypeTask     Type = "task"
	TypeResource Type = "resource"
)

// Status is the conflict lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolving Status = "resolving"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// Strategy names how a conflict was decided.
type Strategy string

const (
	StrategyPriority    Strategy = "priority"
	StrategySeniority   Strategy = "seniority"
	StrategyYield       Strategy = "yield"
	StrategyNegotiation Strategy = "negotiation"
)

// Action is one negotiation move.
type Action string

const (
	ActionYield      Action = "yield"
	ActionInsist     Action = "insist"
	ActionCompromise Action = "compromise"
)

// ParseAction validates a negotiation action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionYield, ActionInsist, ActionCompromise:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown negotiation action %q", s)
}

// Negotiation is one posted move.
type Negotiation struct {
	Round     int       `json:"round"`
	AgentID   string    `json:"agent_id"`
	Action    Action    `json:"action"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Resolution is the final outcome of a conflict.
type Resolution struct {
	Strategy   Strategy  `json:"strategy"`
	Winner     string    `json:"winner,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Conflict is one element of CONFLICT_LOG.json. Steps records every
// strategy evaluation made on the way to the resolution.
type Conflict struct {
	ConflictID     string        `json:"conflict_id"`
	Type           Type          `json:"type"`
	AgentsInvolved []string      `json:"agents_involved"`
	Resource       string        `json:"resource"`
	Status         Status        `json:"status"`
	Negotiations   []Negotiation `json:"negotiations,omitempty"`
	Resolution     *Resolution   `json:"resolution,omitempty"`
	Steps          []string      `json:"steps,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// requester and holder are the fixed party roles: AgentsInvolved[0] asks
// for the resource, AgentsInvolved[1] currently has it.
func (c Conflict) requester() string { return c.AgentsInvolved[0] }
func (c Conflict) holder() string    { return c.AgentsInvolved[1] }

type logDoc struct {
	Version   string     `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
	Conflicts []Conflict `json:"conflicts"`
}

// Resolver records conflicts and decides them.
type Resolver struct {
	store *state.Store
	tasks *task.Store
	path  string

	now   func() time.Time // overridden in tests
	newID func() string
}

// NewResolver wires the resolver over the task store, which supplies
// the priorities used by the priority strategy.
func NewResolver(st *state.Store, taskStore *task.Store, root string) *Resolver {
	return &Resolver{
		store: st,
		tasks: taskStore,
		path:  filepath.Join(root, LogFile),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// FileLockConflict records a lock denial as a pending conflict between
// the requester and the current holder.
func (r *Resolver) FileLockConflict(requester, holder, resource string) (Conflict, error) {
	now := r.now().UTC()
	c := Conflict{
		ConflictID:     r.newID(),
		Type:           TypeFileLock,
		AgentsInvolved: []string{requester, holder},
		Resource:       resource,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.append(c); err != nil {
		return Conflict{}, err
	}
	return c, nil
}

// Get returns one conflict by id.
func (r *Resolver) Get(conflictID string) (Conflict, error) {
	conflicts, err := r.list()
	if err != nil {
		return Conflict{}, err
	}
	for _, c := range conflicts {
		if c.ConflictID == conflictID {
			return c, nil
		}
	}
	return Conflict{}, fmt.Errorf("%s: %w", conflictID, ErrNotFound)
}

// List returns every recorded conflict, oldest first. An empty status
// matches all.
func (r *Resolver) List(status Status) ([]Conflict, error) {
	conflicts, err := r.list()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return conflicts, nil
	}
	var out []Conflict
	for _, c := range conflicts {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

// Resolve decides a pending conflict by walking the strategy ladder:
// task priority first, then seniority (the holder wins), with an
// explicit requester yield honored at its place in the ladder. Every
// evaluated step is recorded on the conflict.
func (r *Resolver) Resolve(conflictID string, requesterYields bool) (Conflict, error) {
	return r.update(conflictID, func(c *Conflict) error {
		if c.Status == StatusResolved || c.Status == StatusEscalated {
			return fmt.Errorf("conflict %s already %s", c.ConflictID, c.Status)
		}
		now := r.now().UTC()

		reqPrio := r.topTaskRank(c.requester())
		holdPrio := r.topTaskRank(c.holder())
		c.Steps = append(c.Steps, fmt.Sprintf("priority: requester rank %d vs holder rank %d", reqPrio, holdPrio))
		if reqPrio != holdPrio {
			winner, detail := c.holder(), "holder's task outranks requester's; requester retries later"
			if reqPrio < holdPrio {
				winner, detail = c.requester(), "requester's task outranks holder's"
			}
			c.resolve(StrategyPriority, winner, detail, now)
			return nil
		}

		if requesterYields {
			c.Steps = append(c.Steps, "yield: requester yields explicitly")
			c.resolve(StrategyYield, c.holder(), "requester yielded", now)
			return nil
		}

		c.Steps = append(c.Steps, "seniority: holder wins")
		c.resolve(StrategySeniority, c.holder(), "equal priority, holder keeps the resource", now)
		return nil
	})
}

// Negotiate posts one move for one party. Once both parties have moved
// in the current round the round is judged: a single yield concedes to
// the other side, a double yield falls back to the strategy ladder, an
// insist beats a compromise, a double insist rolls into the next round
// until the round cap forces the seniority fallback.
func (r *Resolver) Negotiate(conflictID, agentID string, action Action, message string) (Conflict, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return Conflict{}, err
	}
	return r.update(conflictID, func(c *Conflict) error {
		if c.Status == StatusResolved || c.Status == StatusEscalated {
			return fmt.Errorf("conflict %s already %s", c.ConflictID, c.Status)
		}
		if agentID != c.requester() && agentID != c.holder() {
			return fmt.Errorf("agent %s is not a party to conflict %s", agentID, c.ConflictID)
		}
		now := r.now().UTC()
		c.Status = StatusResolving

		round := currentRound(c)
		if hasMove(c, round, agentID) {
			return fmt.Errorf("agent %s already moved in round %d", agentID, round)
		}
		c.Negotiations = append(c.Negotiations, Negotiation{
			Round:     round,
			AgentID:   agentID,
			Action:    action,
			Message:   message,
			Timestamp: now,
		})

		reqMove, reqOK := move(c, round, c.requester())
		holdMove, holdOK := move(c, round, c.holder())
		if !reqOK || !holdOK {
			return nil
		}
		c.Steps = append(c.Steps, fmt.Sprintf("round %d: requester %s, holder %s", round, reqMove, holdMove))

		switch {
		case reqMove == ActionYield && holdMove == ActionYield:
			// Nobody wants it enough to decide; the ladder does.
			c.Steps = append(c.Steps, "double yield: falling back to priority/seniority")
			r.resolveByLadder(c, now)
		case reqMove == ActionYield:
			c.resolve(StrategyNegotiation, c.holder(), "requester yielded in negotiation", now)
		case holdMove == ActionYield:
			c.resolve(StrategyNegotiation, c.requester(), "holder yielded in negotiation", now)
		case reqMove == ActionInsist && holdMove == ActionInsist:
			if round >= MaxNegotiationRounds {
				c.Steps = append(c.Steps, "round cap reached: seniority fallback")
				c.resolve(StrategySeniority, c.holder(), "negotiation exhausted, holder keeps the resource", now)
				c.Status = StatusEscalated
			}
		case reqMove == ActionInsist:
			c.resolve(StrategyNegotiation, c.requester(), "insist beats compromise", now)
		case holdMove == ActionInsist:
			c.resolve(StrategyNegotiation, c.holder(), "insist beats compromise", now)
		default:
			// Both compromised; no single winner.
			c.resolve(StrategyNegotiation, "", "both parties compromised", now)
		}
		return nil
	})
}

// resolveByLadder applies the priority-then-seniority ladder.
func (r *Resolver) resolveByLadder(c *Conflict, now time.Time) {
	reqPrio := r.topTaskRank(c.requester())
	holdPrio := r.topTaskRank(c.holder())
	c.Steps = append(c.Steps, fmt.Sprintf("priority: requester rank %d vs holder rank %d", reqPrio, holdPrio))
	if reqPrio < holdPrio {
		c.resolve(StrategyPriority, c.requester(), "requester's task outranks holder's", now)
		return
	}
	if holdPrio < reqPrio {
		c.resolve(StrategyPriority, c.holder(), "holder's task outranks requester's", now)
		return
	}
	c.Steps = append(c.Steps, "seniority: holder wins")
	c.resolve(StrategySeniority, c.holder(), "equal priority, holder keeps the resource", now)
}

// resolve finalizes the conflict in place.
func (c *Conflict) resolve(strategy Strategy, winner, detail string, now time.Time) {
	c.Status = StatusResolved
	c.Resolution = &Resolution{
		Strategy:   strategy,
		Winner:     winner,
		Detail:     detail,
		ResolvedAt: now,
	}
}

// topTaskRank returns the best (lowest) priority rank among the agent's
// live tasks; a large rank when the agent has none.
func (r *Resolver) topTaskRank(agentID string) int {
	const noTasks = 100
	tasks, err := r.tasks.List(task.Filter{AssignedTo: agentID})
	if err != nil || len(tasks) == 0 {
		return noTasks
	}
	// List sorts by priority rank already.
	switch tasks[0].Priority {
	case task.PriorityCritical:
		return 0
	case task.PriorityHigh:
		return 1
	case task.PriorityNormal:
		return 2
	default:
		return 3
	}
}

func currentRound(c *Conflict) int {
	if len(c.Negotiations) == 0 {
		return 1
	}
	last := c.Negotiations[len(c.Negotiations)-1].Round
	req, _ := move(c, last, c.requester())
	hold, _ := move(c, last, c.holder())
	if req != "" && hold != "" {
		return last + 1
	}
	return last
}

func move(c *Conflict, round int, agentID string) (Action, bool) {
	for _, n := range c.Negotiations {
		if n.Round == round && n.AgentID == agentID {
			return n.Action, true
		}
	}
	return "", false
}

func hasMove(c *Conflict, round int, agentID string) bool {
	_, ok := move(c, round, agentID)
	return ok
}

func (r *Resolver) list() ([]Conflict, error) {
	data, err := r.store.ReadLocked(r.path)
	if err != nil {
		return nil, err
	}
	return decodeLog(data), nil
}

func (r *Resolver) append(c Conflict) error {
	return r.mutate(func(conflicts []Conflict) ([]Conflict, error) {
		return append(conflicts, c), nil
	})
}

func (r *Resolver) update(conflictID string, fn func(*Conflict) error) (Conflict, error) {
	var result Conflict
	err := r.mutate(func(conflicts []Conflict) ([]Conflict, error) {
		for i := range conflicts {
			if conflicts[i].ConflictID != conflictID {
				continue
			}
			if err := fn(&conflicts[i]); err != nil {
				return nil, err
			}
			conflicts[i].UpdatedAt = r.now().UTC()
			result = conflicts[i]
			return conflicts, nil
		}
		return nil, fmt.Errorf("%s: %w", conflictID, ErrNotFound)
	})
	if err != nil {
		return Conflict{}, err
	}
	return result, nil
}

func (r *Resolver) mutate(fn func([]Conflict) ([]Conflict, error)) error {
	return r.store.Update(r.path, func(old []byte) ([]byte, error) {
		conflicts, err := fn(decodeLog(old))
		if err != nil {
			return nil, err
		}
		if len(conflicts) > maxLog {
			conflicts = conflicts[len(conflicts)-maxLog:]
		}
		return json.MarshalIndent(logDoc{
			Version:   docFormat,
			UpdatedAt: r.now().UTC(),
			Conflicts: conflicts,
		}, "", "  ")
	})
}

func decodeLog(data []byte) []Conflict {
	if len(data) == 0 {
		return nil
	}
	var doc logDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", LogFile, err)
		return nil
	}
	return doc.Conflicts
}
