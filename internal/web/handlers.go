package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/claudeswarm/claudeswarm/internal/task"
)

// writeJSON serializes v with a generic error to the client on failure.
// Internal details stay in the server log.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("dashboard: encoding response: %v", err)
	}
}

// writeError logs the real error and returns a generic message.
func writeError(w http.ResponseWriter, err error, status int) {
	log.Printf("dashboard: %v", err)
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.swarm.Discovery.Load()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"agents": agents})
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	includeStale := r.URL.Query().Get("include_stale") == "true"
	locks, err := s.swarm.Locks.ListAll(includeStale)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"locks": locks})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{
		AssignedTo:      q.Get("assigned_to"),
		CreatedBy:       q.Get("created_by"),
		ContextID:       q.Get("context_id"),
		IncludeTerminal: q.Get("include_terminal") == "true",
	}
	if v := q.Get("status"); v != "" {
		status, err := task.ParseStatus(v)
		if err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		f.Status = status
	}
	if v := q.Get("priority"); v != "" {
		priority, err := task.ParsePriority(v)
		if err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		f.Priority = priority
	}

	tasks, err := s.swarm.Tasks.List(f)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"tasks": tasks})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.swarm.Tasks.Get(id)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, err, http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	subtasks, err := s.swarm.Tasks.Subtasks(id)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"task": t, "subtasks": subtasks})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, errors.New("limit outside [1, 1000]"), http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := s.swarm.Messaging.RecentLog(limit)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"messages": recs})
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.swarm.Cards.All()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"cards": cards})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.swarm.Conflicts.List("")
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"conflicts": conflicts})
}

func (s *Server) handleLearning(w http.ResponseWriter, r *http.Request) {
	stats, err := s.swarm.Learning.All()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"agents": stats})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	content, err := s.swarm.Board.Read()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"content": content})
}

// handleStats aggregates the one-screen summary the dashboard's front
// page polls.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	agents, err := s.swarm.Discovery.Load()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	locks, err := s.swarm.Locks.ListAll(false)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	taskStats, err := s.swarm.Tasks.Stats()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	pending, err := s.swarm.Acks.CheckPending("")
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"agents":       len(agents),
		"locks":        len(locks),
		"tasks":        taskStats,
		"pending_acks": len(pending),
	})
}
