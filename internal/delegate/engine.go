package delegate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/claudeswarm/claudeswarm/internal/cards"
	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/task"
)

// HistoryFile is the basename of the delegation history.
const HistoryFile = "DELEGATION_HISTORY.json"

// maxHistory caps the history; older entries are dropped first.
const maxHistory = 1000

// docFormat is the format tag carried by collection files.
const docFormat = "1.0"

// Scoring knobs.
const (
	specializationBonus    = 0.05
	specializationBonusCap = 0.15
	baselineScore          = 0.5
)

// ErrNoCandidate means no active agent can take the task.
var ErrNoCandidate = errors.New("no suitable agent")

// priorityBoost nudges scores by task urgency.
var priorityBoost = map[task.Priority]float64{
	task.PriorityCritical: 0.10,
	task.PriorityHigh:     0.05,
	task.PriorityNormal:   0,
	task.PriorityLow:      -0.05,
}

// Candidate is one scored agent.
type Candidate struct {
	AgentID     string             `json:"agent_id"`
	Score       float64            `json:"score"`
	SkillScores map[string]float64 `json:"skill_scores,omitempty"`
}

// Record is one immutable delegation outcome.
type Record struct {
	DelegationID string        `json:"delegation_id"`
	TaskID       string        `json:"task_id"`
	AssignedTo   string        `json:"assigned_to,omitempty"`
	Score        float64       `json:"score"`
	Alternatives []Candidate   `json:"alternatives,omitempty"`
	Requirements []Requirement `json:"requirements,omitempty"`
	Assigned     bool          `json:"assigned"`
	Reason       string        `json:"reason,omitempty"`
	DelegatedAt  time.Time     `json:"delegated_at"`
}

type historyDoc struct {
	Version     string    `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
	Delegations []Record  `json:"delegations"`
}

// Engine scores agents and assigns tasks to the winners.
type Engine struct {
	store *state.Store
	cards *cards.Registry
	tasks *task.Store
	path  string

	now   func() time.Time // overridden in tests
	newID func() string
}

// NewEngine wires the delegation engine.
func NewEngine(st *state.Store, cardReg *cards.Registry, taskStore *task.Store, root string) *Engine {
	return &Engine{
		store: st,
		cards: cardReg,
		tasks: taskStore,
		path:  filepath.Join(root, HistoryFile),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// ScoreAgent rates one card against the task's requirements: weighted
// mean of proficiency times importance, plus a capped specialization
// bonus and the priority boost, clamped to [0,1]. Skills under their
// minimum proficiency contribute zero but do not disqualify the agent.
// With no requirements every agent scores the baseline plus boost.
func ScoreAgent(c cards.Card, reqs []Requirement, priority task.Priority) (float64, map[string]float64) {
	boost := priorityBoost[priority]
	if len(reqs) == 0 {
		return clamp01(baselineScore + boost), map[string]float64{}
	}

	skillScores := make(map[string]float64, len(reqs))
	var weighted, totalImportance, bonus float64
	for _, req := range reqs {
		totalImportance += req.Importance
		p := c.Proficiency(req.Skill)
		if p < req.MinimumProficiency {
			p = 0
		}
		skillScores[req.Skill] = p
		weighted += p * req.Importance
		if p > 0 && c.HasSpecialization(req.Skill) {
			bonus += specializationBonus * req.Importance
		}
	}
	if bonus > specializationBonusCap {
		bonus = specializationBonusCap
	}
	score := weighted/totalImportance + bonus + boost
	return clamp01(score), skillScores
}

// FindBest scores every active card against the task and returns the
// winner plus the ranked runner-up list. Excluded agents and agents
// missing a required tool are filtered out; a best score of zero means
// no candidate.
func (e *Engine) FindBest(t task.Task, exclude []string, requiredTools []string) (*Candidate, []Candidate, error) {
	active, err := e.cards.ActiveCards()
	if err != nil {
		return nil, nil, err
	}
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	reqs := ExtractSkills(t)
	var ranked []Candidate
	for _, c := range active {
		if excluded[c.AgentID] {
			continue
		}
		if !hasAllTools(c, requiredTools) {
			continue
		}
		score, skillScores := ScoreAgent(c, reqs, t.Priority)
		ranked = append(ranked, Candidate{AgentID: c.AgentID, Score: score, SkillScores: skillScores})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})

	if len(ranked) == 0 || ranked[0].Score == 0 {
		return nil, ranked, nil
	}
	best := ranked[0]
	return &best, ranked[1:], nil
}

// Delegate assigns the task to the named agent, or to the best candidate
// when agentID is empty. The outcome is recorded in the history either
// way. Naming an unknown or non-active agent is rejected.
func (e *Engine) Delegate(t task.Task, agentID string) (Record, error) {
	reqs := ExtractSkills(t)
	rec := Record{
		DelegationID: e.newID(),
		TaskID:       t.TaskID,
		Requirements: reqs,
		DelegatedAt:  e.now().UTC(),
	}

	if agentID == "" {
		best, rest, err := e.FindBest(t, nil, nil)
		if err != nil {
			return Record{}, err
		}
		if best == nil {
			rec.Reason = "no suitable agent"
			if err := e.append(rec); err != nil {
				return Record{}, err
			}
			return rec, fmt.Errorf("task %s: %w", t.TaskID, ErrNoCandidate)
		}
		agentID = best.AgentID
		rec.Score = best.Score
		if len(rest) > 3 {
			rest = rest[:3]
		}
		rec.Alternatives = rest
	} else {
		card, err := e.cards.Get(agentID)
		if err != nil {
			return Record{}, err
		}
		if card.Availability != cards.Active {
			return Record{}, fmt.Errorf("agent %s is %s, not active", agentID, card.Availability)
		}
		score, _ := ScoreAgent(card, reqs, t.Priority)
		rec.Score = score
	}

	// Task state is authoritative; the history entry is informational
	// and written second.
	if _, err := e.tasks.Assign(t.TaskID, agentID, t.CreatedBy); err != nil {
		rec.Reason = err.Error()
		if appendErr := e.append(rec); appendErr != nil {
			log.Printf("warning: recording failed delegation: %v", appendErr)
		}
		return Record{}, err
	}
	rec.AssignedTo = agentID
	rec.Assigned = true
	if err := e.append(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// History returns the recorded delegations, newest last.
func (e *Engine) History() ([]Record, error) {
	data, err := e.store.ReadLocked(e.path)
	if err != nil {
		return nil, err
	}
	return decodeHistory(data), nil
}

// append adds a record, dropping the oldest entries past the cap.
func (e *Engine) append(rec Record) error {
	return e.store.Update(e.path, func(old []byte) ([]byte, error) {
		records := append(decodeHistory(old), rec)
		if len(records) > maxHistory {
			records = records[len(records)-maxHistory:]
		}
		return json.MarshalIndent(historyDoc{
			Version:     docFormat,
			UpdatedAt:   e.now().UTC(),
			Delegations: records,
		}, "", "  ")
	})
}

func decodeHistory(data []byte) []Record {
	if len(data) == 0 {
		return nil
	}
	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", HistoryFile, err)
		return nil
	}
	return doc.Delegations
}

func hasAllTools(c cards.Card, tools []string) bool {
	for _, tool := range tools {
		if !c.HasTool(tool) {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
