package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/coordinator"
	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/run"
	"github.com/conclave-ai/conclave/pkg/models"
)

type scriptedBackend struct {
	mu    sync.Mutex
	steps []*models.ModelResponse
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) Generate(_ context.Context, _ provider.Request) (*models.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return &models.ModelResponse{Text: "thinking"}, nil
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next, nil
}

// newTestServer wires a server whose runs use a scripted backend and a temp
// workspace instead of a real provider.
func newTestServer(t *testing.T, steps ...*models.ModelResponse) *Server {
	t.Helper()
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, nil, logger)

	s.newRun = func(opts run.Options) (*run.Run, error) {
		opts.Backend = &scriptedBackend{steps: steps}
		opts.WorkspaceDir = t.TempDir()
		opts.Coordinator = coordinator.Config{
			MaxTurns:     50,
			BackoffBase:  time.Millisecond,
			BackoffMax:   4 * time.Millisecond,
			FailurePause: 10 * time.Millisecond,
			HumanWait:    5 * time.Millisecond,
			WorkerPoll:   time.Millisecond,
		}
		r, err := run.New(opts)
		if err == nil {
			t.Cleanup(r.Shutdown)
		}
		return r, err
	}
	return s
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createRun(t *testing.T, s *Server, body map[string]any) string {
	t.Helper()
	rec := postJSON(t, s.Router(), "/api/runs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run: status %d, body %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if view.ID == "" {
		t.Fatal("create response has no id")
	}
	return view.ID
}

func TestCreateRunAndFetch(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	id := createRun(t, s, map[string]any{"goal": "summarize the quarterly results"})

	rec := get(t, router, "/api/runs/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run: status %d", rec.Code)
	}
	var view struct {
		Goal   string `json:"goal"`
		Mode   string `json:"mode"`
		Status string `json:"status"`
	}
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.Goal != "summarize the quarterly results" {
		t.Errorf("goal = %q", view.Goal)
	}
	if view.Mode != "finite" {
		t.Errorf("mode = %q, want default finite", view.Mode)
	}

	rec = get(t, router, "/api/runs")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), id) {
		t.Errorf("list runs missing %s: %s", id, rec.Body.String())
	}
}

func TestCreateRunRequiresGoal(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Router(), "/api/runs", map[string]any{"mode": "finite"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateRunWithTeamSeedsWorkers(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	id := createRun(t, s, map[string]any{"goal": "research the topic", "team": "research"})

	rec := get(t, router, "/api/runs/"+id+"/workers")
	if rec.Code != http.StatusOK {
		t.Fatalf("workers: status %d", rec.Code)
	}
	var workers []models.Worker
	if err := json.Unmarshal(rec.Body.Bytes(), &workers); err != nil {
		t.Fatalf("decode workers: %v", err)
	}
	if len(workers) != 3 {
		t.Fatalf("workers = %d, want 3 from the research template", len(workers))
	}
}

func TestCreateRunWithUnknownTeam(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Router(), "/api/runs", map[string]any{"goal": "g", "team": "nonexistent"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMessageRespondStopResume(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()
	id := createRun(t, s, map[string]any{"goal": "keep working"})

	rec := postJSON(t, router, "/api/runs/"+id+"/message", map[string]any{"content": "focus on section two"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("message: status %d", rec.Code)
	}
	rec = postJSON(t, router, "/api/runs/"+id+"/message", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message: status %d, want 400", rec.Code)
	}

	rec = postJSON(t, router, "/api/runs/"+id+"/respond", map[string]any{"answer": "yes"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("respond: status %d", rec.Code)
	}

	rec = postJSON(t, router, "/api/runs/"+id+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("stop: status %d", rec.Code)
	}
	rec = postJSON(t, router, "/api/runs/"+id+"/resume", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("resume: status %d", rec.Code)
	}
}

func TestUnknownRunReturns404(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()
	for _, path := range []string{
		"/api/runs/missing",
		"/api/runs/missing/board",
		"/api/runs/missing/workers",
		"/api/runs/missing/events",
		"/api/runs/missing/conversation",
	} {
		if rec := get(t, router, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status %d, want 404", path, rec.Code)
		}
	}
}

func TestEventFeedStreamsCatchUp(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	id := createRun(t, s, map[string]any{"goal": "emit some events"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev models.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type == "" {
		t.Errorf("event has no type: %+v", ev)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s.Router(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}
