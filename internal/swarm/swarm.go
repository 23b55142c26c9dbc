// Package swarm assembles the coordination substrate into one handle.
// Nothing here is a singleton: callers construct a Swarm per project
// root (tests construct many) and every subsystem hangs off it.
package swarm

import (
	"fmt"
	"os"
	"time"

	"github.com/claudeswarm/claudeswarm/internal/ack"
	"github.com/claudeswarm/claudeswarm/internal/backend"
	"github.com/claudeswarm/claudeswarm/internal/cards"
	"github.com/claudeswarm/claudeswarm/internal/config"
	"github.com/claudeswarm/claudeswarm/internal/conflict"
	"github.com/claudeswarm/claudeswarm/internal/coordination"
	"github.com/claudeswarm/claudeswarm/internal/delegate"
	"github.com/claudeswarm/claudeswarm/internal/discovery"
	"github.com/claudeswarm/claudeswarm/internal/filelock"
	"github.com/claudeswarm/claudeswarm/internal/memory"
	"github.com/claudeswarm/claudeswarm/internal/messaging"
	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/swarmfs"
	"github.com/claudeswarm/claudeswarm/internal/task"
)

// Swarm is the application context: one project root, one config, and
// the wired subsystems.
type Swarm struct {
	Root    string
	Config  *config.Config
	Store   *state.Store
	Backend backend.Backend

	Discovery *discovery.Registry
	Locks     *filelock.Manager
	Messaging *messaging.Service
	Acks      *ack.Engine
	Tasks     *task.Store
	Contexts  *task.ContextStore
	Cards     *cards.Registry
	Delegate  *delegate.Engine
	Conflicts *conflict.Resolver
	Memory    *memory.Manager
	Learning  *memory.Learning
	Board     *coordination.Board
}

// Options overrides pieces of the default wiring, mainly for tests.
type Options struct {
	Root    string          // explicit project root; empty resolves it
	Backend backend.Backend // nil selects by config and environment
}

// New resolves the project root, loads configuration, and wires every
// subsystem.
func New(opts Options) (*Swarm, error) {
	root, err := swarmfs.Resolve(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	store := state.NewStore(time.Duration(cfg.LockAcquireTimeoutSeconds) * time.Second)
	be := opts.Backend
	if be == nil {
		be = backend.Select(cfg)
	}

	reg := discovery.NewRegistry(store, be, root, cfg.SessionName,
		time.Duration(cfg.StaleThresholdSeconds)*time.Second)
	svc := messaging.NewService(store, reg, be, root,
		cfg.RateLimit.MaxMessages, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	if os.Getenv(messaging.EnvSecret) == "" && cfg.SharedSecret != "" {
		svc.SetSecret([]byte(cfg.SharedSecret))
	}
	taskStore := task.NewStore(store, root)
	cardReg := cards.NewRegistry(store, root)

	return &Swarm{
		Root:      root,
		Config:    cfg,
		Store:     store,
		Backend:   be,
		Discovery: reg,
		Locks:     filelock.NewManager(root, time.Duration(cfg.LockStaleTimeoutSeconds)*time.Second),
		Messaging: svc,
		Acks:      ack.NewEngine(store, svc, root),
		Tasks:     taskStore,
		Contexts:  task.NewContextStore(store, root),
		Cards:     cardReg,
		Delegate:  delegate.NewEngine(store, cardReg, taskStore, root),
		Conflicts: conflict.NewResolver(store, taskStore, root),
		Memory:    memory.NewManager(store, root),
		Learning:  memory.NewLearning(store, cardReg, root),
		Board:     coordination.NewBoard(store, root),
	}, nil
}

// AcquireLock wraps the lock manager so that a denial is also recorded
// as a file_lock conflict, giving the resolver something to work with.
func (s *Swarm) AcquireLock(path, agentID, reason string) (bool, *filelock.Conflict, error) {
	ok, c, err := s.Locks.Acquire(path, agentID, reason)
	if err != nil || ok || c == nil {
		return ok, c, err
	}
	if _, logErr := s.Conflicts.FileLockConflict(agentID, c.Holder, c.Path); logErr != nil {
		return ok, c, fmt.Errorf("recording lock conflict: %w", logErr)
	}
	return ok, c, nil
}
