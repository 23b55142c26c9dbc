package memory

import (
	"encoding/json"
	"log"
	"path/filepath"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/cards"
	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// LearningFile is the basename of the aggregate learning store.
const LearningFile = "LEARNING_DATA.json"

// learningEMAWeight blends new outcomes into the running rates.
const learningEMAWeight = 0.1

// docFormat is the format tag carried by collection files.
const docFormat = "1.0"

// AgentStats is the aggregate record for one agent.
type AgentStats struct {
	TasksInProgress   int                `json:"tasks_in_progress"`
	TasksCompleted    int                `json:"tasks_completed"`
	TasksFailed       int                `json:"tasks_failed"`
	SuccessRate       float64            `json:"success_rate"`
	SkillRates        map[string]float64 `json:"skill_rates,omitempty"`
	AvgCompletionSecs float64            `json:"avg_completion_seconds"`
}

type learningDoc struct {
	Version   string                `json:"version"`
	UpdatedAt time.Time             `json:"updated_at"`
	Agents    map[string]AgentStats `json:"agents"`
}

// Learning maintains LEARNING_DATA.json and feeds skill rates back into
// the card registry.
type Learning struct {
	store *state.Store
	cards *cards.Registry
	path  string

	now func() time.Time // overridden in tests
}

// NewLearning wires the learning layer. The card registry may be nil in
// contexts that only read stats.
func NewLearning(st *state.Store, cardReg *cards.Registry, root string) *Learning {
	return &Learning{
		store: st,
		cards: cardReg,
		path:  filepath.Join(root, LearningFile),
		now:   time.Now,
	}
}

// RecordTaskStarted counts a task as in progress for the agent.
func (l *Learning) RecordTaskStarted(agentID string) error {
	return l.mutate(agentID, func(s *AgentStats) {
		s.TasksInProgress++
	})
}

// RecordTaskCompleted folds one finished task into the agent's running
// rates: per-agent and per-skill success EMAs and the completion-time
// EMA. The resulting skill rates are propagated to the agent's card
// when one exists.
func (l *Learning) RecordTaskCompleted(agentID string, skills []string, success bool, duration time.Duration) error {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	var rates map[string]float64
	err := l.mutate(agentID, func(s *AgentStats) {
		if s.TasksInProgress > 0 {
			s.TasksInProgress--
		}
		first := s.TasksCompleted == 0 && s.TasksFailed == 0
		if success {
			s.TasksCompleted++
		} else {
			s.TasksFailed++
		}

		if first {
			s.SuccessRate = outcome
			s.AvgCompletionSecs = duration.Seconds()
		} else {
			s.SuccessRate = ema(s.SuccessRate, outcome)
			s.AvgCompletionSecs = ema(s.AvgCompletionSecs, duration.Seconds())
		}

		if s.SkillRates == nil {
			s.SkillRates = make(map[string]float64)
		}
		for _, skill := range skills {
			if prev, ok := s.SkillRates[skill]; ok {
				s.SkillRates[skill] = ema(prev, outcome)
			} else {
				s.SkillRates[skill] = outcome
			}
		}
		rates = make(map[string]float64, len(skills))
		for _, skill := range skills {
			rates[skill] = s.SkillRates[skill]
		}
	})
	if err != nil {
		return err
	}

	if l.cards != nil {
		for skill, rate := range rates {
			if err := l.cards.SetSuccessRate(agentID, skill, rate); err != nil {
				// No card registered yet; the rates still live here.
				log.Printf("warning: propagating %s rate to card %s: %v", skill, agentID, err)
				break
			}
		}
	}
	return nil
}

// Stats returns the aggregate record for one agent.
func (l *Learning) Stats(agentID string) (AgentStats, error) {
	agents, err := l.load()
	if err != nil {
		return AgentStats{}, err
	}
	return agents[agentID], nil
}

// All returns every agent's aggregate record.
func (l *Learning) All() (map[string]AgentStats, error) {
	return l.load()
}

func (l *Learning) mutate(agentID string, fn func(*AgentStats)) error {
	if err := validate.AgentID(agentID); err != nil {
		return err
	}
	return l.store.Update(l.path, func(old []byte) ([]byte, error) {
		agents := decodeLearning(old)
		s := agents[agentID]
		fn(&s)
		agents[agentID] = s
		return json.MarshalIndent(learningDoc{
			Version:   docFormat,
			UpdatedAt: l.now().UTC(),
			Agents:    agents,
		}, "", "  ")
	})
}

func (l *Learning) load() (map[string]AgentStats, error) {
	data, err := l.store.ReadLocked(l.path)
	if err != nil {
		return nil, err
	}
	return decodeLearning(data), nil
}

func decodeLearning(data []byte) map[string]AgentStats {
	if len(data) == 0 {
		return make(map[string]AgentStats)
	}
	var doc learningDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", LearningFile, err)
		return make(map[string]AgentStats)
	}
	if doc.Agents == nil {
		doc.Agents = make(map[string]AgentStats)
	}
	return doc.Agents
}

func ema(prev, sample float64) float64 {
	return (1-learningEMAWeight)*prev + learningEMAWeight*sample
}
