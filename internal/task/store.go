package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// TasksFile is the basename of the task store.
const TasksFile = "TASKS.json"

// docFormat is the format tag carried by collection files.
const docFormat = "1.0"

var (
	// ErrNotFound means the task id has no entry.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition means the requested edge is not in the state
	// machine. The error text carries both states.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// tasksDoc is the on-disk shape of TASKS.json.
type tasksDoc struct {
	Version   string          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Tasks     map[string]Task `json:"tasks"`
}

// Store persists tasks and enforces the state machine.
type Store struct {
	store *state.Store
	path  string

	now   func() time.Time // overridden in tests
	newID func() string
}

// NewStore creates a task store rooted at the project root.
func NewStore(st *state.Store, root string) *Store {
	return &Store{
		store: st,
		path:  filepath.Join(root, TasksFile),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreateOptions carries the optional fields of a new task.
type CreateOptions struct {
	Priority     Priority
	ContextID    string
	Constraints  []string
	Files        []string
	ParentTaskID string
}

// Create adds a pending task and returns it.
func (s *Store) Create(objective, createdBy string, opts CreateOptions) (Task, error) {
	if err := validate.AgentID(createdBy); err != nil {
		return Task{}, err
	}
	objective = validate.SanitizeContent(objective)
	if err := validate.Content(objective); err != nil {
		return Task{}, err
	}
	if opts.Priority == "" {
		opts.Priority = PriorityNormal
	}
	if _, ok := priorityRank[opts.Priority]; !ok {
		return Task{}, fmt.Errorf("unknown task priority %q", opts.Priority)
	}

	now := s.now().UTC()
	t := Task{
		TaskID:       s.newID(),
		Objective:    objective,
		Status:       StatusPending,
		Priority:     opts.Priority,
		CreatedBy:    createdBy,
		ContextID:    opts.ContextID,
		Constraints:  opts.Constraints,
		Files:        opts.Files,
		History:      []HistoryEntry{},
		ParentTaskID: opts.ParentTaskID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.mutate(func(tasks map[string]Task) error {
		if opts.ParentTaskID != "" {
			if _, ok := tasks[opts.ParentTaskID]; !ok {
				return fmt.Errorf("parent %s: %w", opts.ParentTaskID, ErrNotFound)
			}
		}
		tasks[t.TaskID] = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// Get returns one task by id.
func (s *Store) Get(taskID string) (Task, error) {
	tasks, err := s.load()
	if err != nil {
		return Task{}, err
	}
	t, ok := tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%s: %w", taskID, ErrNotFound)
	}
	return t, nil
}

// Assign moves a pending (or blocked, or re-assignable) task to assigned
// and records the assignee.
func (s *Store) Assign(taskID, assignee, byAgent string) (Task, error) {
	if err := validate.AgentID(assignee); err != nil {
		return Task{}, err
	}
	return s.apply(taskID, StatusAssigned, byAgent, "assigned to "+assignee, nil, func(t *Task) {
		t.AssignedTo = assignee
	})
}

// Transition moves a task along a state machine edge with an optional
// history message and metadata.
func (s *Store) Transition(taskID string, to Status, agentID, message string, metadata map[string]any) (Task, error) {
	return s.apply(taskID, to, agentID, message, metadata, nil)
}

// Complete finishes a task and stores its result.
func (s *Store) Complete(taskID, agentID, result string) (Task, error) {
	return s.apply(taskID, StatusCompleted, agentID, "completed", nil, func(t *Task) {
		t.Result = result
	})
}

// Fail marks a task failed and stores the error text.
func (s *Store) Fail(taskID, agentID, errText string) (Task, error) {
	return s.apply(taskID, StatusFailed, agentID, "failed", nil, func(t *Task) {
		t.Error = errText
	})
}

// Block marks a task blocked on the given task ids. The assignee is
// kept so Unblock can return to it.
func (s *Store) Block(taskID, agentID string, blockedBy []string, message string) (Task, error) {
	return s.apply(taskID, StatusBlocked, agentID, message, nil, func(t *Task) {
		t.BlockedBy = blockedBy
	})
}

// Unblock releases a blocked task: back to assigned when it still has an
// assignee, otherwise back to pending. The target state is decided from
// the task as read under the store lock, so a concurrent reassignment
// cannot route it wrong.
func (s *Store) Unblock(taskID, agentID string) (Task, error) {
	choose := func(t Task) Status {
		if t.AssignedTo != "" {
			return StatusAssigned
		}
		return StatusPending
	}
	return s.applyTo(taskID, choose, agentID, "unblocked", nil, func(t *Task) {
		t.BlockedBy = nil
	})
}

// Cancel terminates a task with a reason.
func (s *Store) Cancel(taskID, agentID, reason string) (Task, error) {
	return s.apply(taskID, StatusCancelled, agentID, reason, nil, nil)
}

// apply performs one validated transition under the exclusive lock,
// appends the history entry, and maintains the assignee invariant.
func (s *Store) apply(taskID string, to Status, agentID, message string, metadata map[string]any, extra func(*Task)) (Task, error) {
	return s.applyTo(taskID, func(Task) Status { return to }, agentID, message, metadata, extra)
}

// applyTo is apply with the target state chosen from the task value read
// under the lock.
func (s *Store) applyTo(taskID string, choose func(Task) Status, agentID, message string, metadata map[string]any, extra func(*Task)) (Task, error) {
	if err := validate.AgentID(agentID); err != nil {
		return Task{}, err
	}
	var result Task
	err := s.mutate(func(tasks map[string]Task) error {
		t, ok := tasks[taskID]
		if !ok {
			return fmt.Errorf("%s: %w", taskID, ErrNotFound)
		}
		to := choose(t)
		if !CanTransition(t.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
		}

		now := s.now().UTC()
		t.History = append(t.History, HistoryEntry{
			Timestamp: now,
			From:      t.Status,
			To:        to,
			AgentID:   agentID,
			Message:   message,
			Metadata:  metadata,
		})
		t.Status = to
		t.UpdatedAt = now
		if extra != nil {
			extra(&t)
		}
		if !keepsAssignee(to) {
			t.AssignedTo = ""
		}
		tasks[taskID] = t
		result = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return result, nil
}

// Filter selects tasks for List. Zero values match everything.
type Filter struct {
	Status          Status
	AssignedTo      string
	CreatedBy       string
	ContextID       string
	Priority        Priority
	IncludeTerminal bool
}

func (f Filter) matches(t Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.CreatedBy != "" && t.CreatedBy != f.CreatedBy {
		return false
	}
	if f.ContextID != "" && t.ContextID != f.ContextID {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if !f.IncludeTerminal && f.Status == "" && t.Status.Terminal() {
		return false
	}
	return true
}

// List returns matching tasks sorted by priority (critical first) then
// creation time. Terminal tasks are omitted unless the filter includes
// them or names a terminal status explicitly.
func (s *Store) List(f Filter) ([]Task, error) {
	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range tasks {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out, nil
}

// Subtasks returns the children of a parent task, sorted like List.
func (s *Store) Subtasks(parentID string) ([]Task, error) {
	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range tasks {
		if t.ParentTaskID == parentID {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out, nil
}

// ContextTasks returns every task in a context, terminal included.
func (s *Store) ContextTasks(contextID string) ([]Task, error) {
	return s.List(Filter{ContextID: contextID, IncludeTerminal: true})
}

// Stats summarizes the task collection.
type Stats struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
}

// Stats counts tasks by status and priority.
func (s *Store) Stats() (Stats, error) {
	tasks, err := s.load()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		ByStatus:   make(map[Status]int),
		ByPriority: make(map[Priority]int),
	}
	for _, t := range tasks {
		st.Total++
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
	}
	return st, nil
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		ri, rj := priorityRank[tasks[i].Priority], priorityRank[tasks[j].Priority]
		if ri != rj {
			return ri < rj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// load reads the collection, treating missing or corrupt files as empty.
func (s *Store) load() (map[string]Task, error) {
	data, err := s.store.ReadLocked(s.path)
	if err != nil {
		return nil, err
	}
	return decodeTasks(data), nil
}

// mutate runs a read-modify-write cycle on the collection under the
// exclusive lock.
func (s *Store) mutate(fn func(tasks map[string]Task) error) error {
	return s.store.Update(s.path, func(old []byte) ([]byte, error) {
		tasks := decodeTasks(old)
		if err := fn(tasks); err != nil {
			return nil, err
		}
		return json.MarshalIndent(tasksDoc{
			Version:   docFormat,
			UpdatedAt: s.now().UTC(),
			Tasks:     tasks,
		}, "", "  ")
	})
}

func decodeTasks(data []byte) map[string]Task {
	if len(data) == 0 {
		return make(map[string]Task)
	}
	var doc tasksDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", TasksFile, err)
		return make(map[string]Task)
	}
	if doc.Tasks == nil {
		doc.Tasks = make(map[string]Task)
	}
	return doc.Tasks
}
