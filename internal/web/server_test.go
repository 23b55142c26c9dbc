package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claudeswarm/claudeswarm/internal/backend"
	"github.com/claudeswarm/claudeswarm/internal/swarm"
	"github.com/claudeswarm/claudeswarm/internal/task"
)

// fakeBackend returns a scripted peer list.
type fakeBackend struct {
	peers []backend.Peer
}

func (f *fakeBackend) Name() string                             { return "fake" }
func (f *fakeBackend) Peers(string) ([]backend.Peer, error)     { return f.peers, nil }
func (f *fakeBackend) Push(string, string) (bool, error)        { return true, nil }
func (f *fakeBackend) Alive(string) bool                        { return true }
func (f *fakeBackend) CurrentIdentifier() (string, error)       { return "self", nil }
func (f *fakeBackend) CreateMonitorPane(string) (string, error) { return "", backend.ErrUnsupported }

func newTestServer(t *testing.T) (*Server, *swarm.Swarm) {
	t.Helper()
	fb := &fakeBackend{peers: []backend.Peer{
		{Identifier: "%1", PID: 100},
		{Identifier: "%2", PID: 200},
	}}
	sw, err := swarm.New(swarm.Options{Root: t.TempDir(), Backend: fb})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sw.Discovery.Refresh(); err != nil {
		t.Fatal(err)
	}
	return NewServer(sw), sw
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAgentsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/api/agents")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Agents []struct {
			ID string `json:"id"`
		} `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Agents) != 2 || body.Agents[0].ID != "agent-1" {
		t.Errorf("agents = %+v", body.Agents)
	}
}

func TestTasksEndpointFilters(t *testing.T) {
	s, sw := newTestServer(t)
	t1, err := sw.Tasks.Create("fix the login flow", "agent-1", task.CreateOptions{Priority: task.PriorityHigh})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sw.Tasks.Create("write docs", "agent-2", task.CreateOptions{}); err != nil {
		t.Fatal(err)
	}

	rec := get(t, s.Handler(), "/api/tasks?priority=high")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Tasks []task.Task `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tasks) != 1 || body.Tasks[0].TaskID != t1.TaskID {
		t.Errorf("tasks = %+v", body.Tasks)
	}

	if rec := get(t, s.Handler(), "/api/tasks?status=bogus"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d", rec.Code)
	}
}

func TestTaskEndpointNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := get(t, s.Handler(), "/api/tasks/ghost"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMessagesLimitValidation(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := get(t, s.Handler(), "/api/messages?limit=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", rec.Code)
	}
	if rec := get(t, s.Handler(), "/api/messages?limit=5000"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=5000 status = %d", rec.Code)
	}
	if rec := get(t, s.Handler(), "/api/messages"); rec.Code != http.StatusOK {
		t.Errorf("default limit status = %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, sw := newTestServer(t)
	if _, err := sw.Tasks.Create("triage the flaky suite", "agent-1", task.CreateOptions{}); err != nil {
		t.Fatal(err)
	}
	if ok, _, err := sw.AcquireLock("src/main.go", "agent-1", "editing"); err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}

	rec := get(t, s.Handler(), "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Agents int `json:"agents"`
		Locks  int `json:"locks"`
		Tasks  struct {
			Total int `json:"total"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Agents != 2 || body.Locks != 1 || body.Tasks.Total != 1 {
		t.Errorf("stats = %+v", body)
	}
}

func TestBasicAuth(t *testing.T) {
	t.Setenv(EnvUser, "admin")
	t.Setenv(EnvPass, "hunter2")
	s, _ := newTestServer(t)
	h := s.Handler()

	if rec := get(t, h, "/api/agents"); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	t.Setenv(EnvCORSOrigins, "https://dash.example.com")
	s, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin for unknown origin = %q", got)
	}
}
