package task

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// ContextsFile is the basename of the context store.
const ContextsFile = "CONTEXTS.json"

// Context groups related tasks with the decisions made and files touched
// while working on them.
type Context struct {
	ContextID   string    `json:"context_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	Decisions   []string  `json:"decisions,omitempty"`
	Files       []string  `json:"files,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type contextsDoc struct {
	Version   string             `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Contexts  map[string]Context `json:"contexts"`
}

// ContextStore persists contexts in CONTEXTS.json.
type ContextStore struct {
	store *state.Store
	path  string

	now   func() time.Time // overridden in tests
	newID func() string
}

// NewContextStore creates a context store rooted at the project root.
func NewContextStore(st *state.Store, root string) *ContextStore {
	return &ContextStore{
		store: st,
		path:  filepath.Join(root, ContextsFile),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create adds a context and returns it.
func (s *ContextStore) Create(name, description, createdBy string) (Context, error) {
	if err := validate.AgentID(createdBy); err != nil {
		return Context{}, err
	}
	if name == "" {
		return Context{}, fmt.Errorf("context name is empty")
	}
	now := s.now().UTC()
	c := Context{
		ContextID:   s.newID(),
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.mutate(func(contexts map[string]Context) error {
		contexts[c.ContextID] = c
		return nil
	})
	if err != nil {
		return Context{}, err
	}
	return c, nil
}

// Get returns one context by id.
func (s *ContextStore) Get(contextID string) (Context, error) {
	contexts, err := s.load()
	if err != nil {
		return Context{}, err
	}
	c, ok := contexts[contextID]
	if !ok {
		return Context{}, fmt.Errorf("context %s: %w", contextID, ErrNotFound)
	}
	return c, nil
}

// List returns every context.
func (s *ContextStore) List() ([]Context, error) {
	contexts, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Context, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, c)
	}
	return out, nil
}

// AddDecision appends a decision record to a context.
func (s *ContextStore) AddDecision(contextID, decision string) (Context, error) {
	return s.update(contextID, func(c *Context) {
		c.Decisions = append(c.Decisions, decision)
	})
}

// AddFiles records files touched while working in the context,
// deduplicated.
func (s *ContextStore) AddFiles(contextID string, files ...string) (Context, error) {
	return s.update(contextID, func(c *Context) {
		seen := make(map[string]bool, len(c.Files))
		for _, f := range c.Files {
			seen[f] = true
		}
		for _, f := range files {
			if !seen[f] {
				c.Files = append(c.Files, f)
				seen[f] = true
			}
		}
	})
}

func (s *ContextStore) update(contextID string, fn func(*Context)) (Context, error) {
	var result Context
	err := s.mutate(func(contexts map[string]Context) error {
		c, ok := contexts[contextID]
		if !ok {
			return fmt.Errorf("context %s: %w", contextID, ErrNotFound)
		}
		fn(&c)
		c.UpdatedAt = s.now().UTC()
		contexts[contextID] = c
		result = c
		return nil
	})
	if err != nil {
		return Context{}, err
	}
	return result, nil
}

func (s *ContextStore) load() (map[string]Context, error) {
	data, err := s.store.ReadLocked(s.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return make(map[string]Context), nil
	}
	var doc contextsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", ContextsFile, err)
		return make(map[string]Context), nil
	}
	if doc.Contexts == nil {
		doc.Contexts = make(map[string]Context)
	}
	return doc.Contexts, nil
}

func (s *ContextStore) mutate(fn func(contexts map[string]Context) error) error {
	return s.store.Update(s.path, func(old []byte) ([]byte, error) {
		contexts := make(map[string]Context)
		if len(old) > 0 {
			var doc contextsDoc
			if err := json.Unmarshal(old, &doc); err == nil && doc.Contexts != nil {
				contexts = doc.Contexts
			}
		}
		if err := fn(contexts); err != nil {
			return nil, err
		}
		return json.MarshalIndent(contextsDoc{
			Version:   docFormat,
			UpdatedAt: s.now().UTC(),
			Contexts:  contexts,
		}, "", "  ")
	})
}
