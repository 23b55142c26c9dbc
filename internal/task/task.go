// Package task implements the shared task store and its state machine,
// persisted in TASKS.json under the project root.
package task

import (
	"fmt"
	"time"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusWorking   Status = "working"
	StatusReview    Status = "review"
	StatusCompleted Status = "completed"
	StatusBlocked   Status = "blocked"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// validTransitions holds the allowed state machine edges. Completed and
// cancelled are terminal.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusWorking, StatusBlocked, StatusCancelled, StatusPending},
	StatusWorking:   {StatusReview, StatusBlocked, StatusFailed, StatusCancelled, StatusCompleted},
	StatusReview:    {StatusCompleted, StatusWorking, StatusFailed, StatusCancelled},
	StatusBlocked:   {StatusPending, StatusAssigned, StatusWorking, StatusCancelled, StatusFailed},
	StatusFailed:    {StatusPending},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether the edge from one status to another is
// part of the state machine.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return st, nil
}

// Priority orders tasks for listing and boosts delegation scores.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// priorityRank maps priority to sort order, most urgent first.
var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityNormal:   2,
	PriorityLow:      3,
}

// ParsePriority validates a priority string. Empty selects normal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(s)
	if _, ok := priorityRank[p]; !ok {
		return "", fmt.Errorf("unknown task priority %q", s)
	}
	return p, nil
}

// HistoryEntry records one state change.
type HistoryEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	From      Status         `json:"from"`
	To        Status         `json:"to"`
	AgentID   string         `json:"agent_id"`
	Message   string         `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Task is one element of TASKS.json.
type Task struct {
	TaskID       string         `json:"task_id"`
	Objective    string         `json:"objective"`
	Status       Status         `json:"status"`
	Priority     Priority       `json:"priority"`
	CreatedBy    string         `json:"created_by"`
	AssignedTo   string         `json:"assigned_to,omitempty"`
	ContextID    string         `json:"context_id,omitempty"`
	Constraints  []string       `json:"constraints,omitempty"`
	Files        []string       `json:"files,omitempty"`
	BlockedBy    []string       `json:"blocked_by,omitempty"`
	Blocks       []string       `json:"blocks,omitempty"`
	Result       string         `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	History      []HistoryEntry `json:"history"`
	ParentTaskID string         `json:"parent_task_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// keepsAssignee reports whether the status may carry an assignee. A
// blocked task keeps its prior assignee so unblock can return to it.
func keepsAssignee(s Status) bool {
	switch s {
	case StatusAssigned, StatusWorking, StatusReview, StatusBlocked:
		return true
	}
	return false
}
