// Package server is the HTTP front door: run creation and control, board and
// event views, a live WebSocket event feed, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/coordinator"
	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/run"
	"github.com/conclave-ai/conclave/internal/state"
)

// Server hosts the HTTP API over a set of live runs.
type Server struct {
	cfg   *config.Config
	store *state.DB
	log   *slog.Logger
	teams map[string]*config.TeamTemplate

	mu   sync.Mutex
	runs map[string]*run.Run

	// newRun is the run factory; tests swap it to inject scripted backends.
	newRun func(run.Options) (*run.Run, error)
}

// New builds a server. store may be nil (no persistence); logger defaults to
// slog.Default().
func New(cfg *config.Config, store *state.DB, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		store:  store,
		log:    logger,
		teams:  config.BuiltinTeams(),
		runs:   make(map[string]*run.Run),
		newRun: run.New,
	}
}

// SetTeams replaces the team templates available to POST /api/runs.
func (s *Server) SetTeams(teams map[string]*config.TeamTemplate) {
	s.teams = teams
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", s.handleCreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/board", s.handleBoard).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/workers", s.handleWorkers).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/conversation", s.handleConversation).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/message", s.handleMessage).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/respond", s.handleRespond).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/resume", s.handleResume).Methods(http.MethodPost)

	r.HandleFunc("/ws/runs/{id}", s.handleEventFeed).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

// ListenAndServe runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the WebSocket feed is long-lived
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.shutdownRuns()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) shutdownRuns() {
	s.mu.Lock()
	runs := make([]*run.Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	for _, r := range runs {
		r.Shutdown()
	}
}

func (s *Server) getRun(id string) *run.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

type createRunRequest struct {
	Goal  string `json:"goal"`
	Mode  string `json:"mode"`
	Model string `json:"model"`
	Team  string `json:"team"`
}

type runView struct {
	ID     string `json:"id"`
	Goal   string `json:"goal"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, req *http.Request) {
	var body createRunRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Goal == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}

	model := body.Model
	if model == "" {
		model = s.cfg.Defaults.CoordinatorModel
	}
	mode := body.Mode
	if mode == "" {
		mode = s.cfg.Defaults.Mode
	}

	opts := run.Options{
		Goal:             body.Goal,
		Mode:             mode,
		CoordinatorModel: model,
		WorkspaceDir:     s.cfg.Defaults.Workspace,
		AgentCLICommand:  s.cfg.AgentCLI.Command,
		ProviderOpts:     s.providerOpts(),
		Coordinator:      s.coordinatorConfig(),
		HumanTimeout:     s.cfg.Limits.HumanTimeout,
		SearchProvider:   s.cfg.Search.Provider,
		BraveAPIKey:      s.cfg.Search.BraveAPIKey,
		SerperAPIKey:     s.cfg.Search.SerperAPIKey,
		State:            s.store,
		MaxWorkers:       s.cfg.Defaults.MaxWorkers,
	}

	if body.Team != "" {
		team := s.teams[body.Team]
		if team == nil {
			writeError(w, http.StatusBadRequest, "unknown team: "+body.Team)
			return
		}
		workers, err := team.Roster(model)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Workers = workers
	}

	r, err := s.newRun(opts)
	if err != nil {
		s.log.Error("create run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.runs[r.ID] = r
	s.mu.Unlock()

	r.Start()
	s.log.Info("run started", "run_id", r.ID, "mode", mode, "team", body.Team)

	writeJSON(w, http.StatusCreated, runView{
		ID:     r.ID,
		Goal:   r.Goal,
		Mode:   r.Mode,
		Status: string(r.Status()),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	views := make([]runView, 0, len(s.runs))
	for _, r := range s.runs {
		views = append(views, runView{ID: r.ID, Goal: r.Goal, Mode: r.Mode, Status: string(r.Status())})
	}
	s.mu.Unlock()

	// Include finished runs from the store that are no longer live.
	if s.store != nil {
		live := make(map[string]bool, len(views))
		for _, v := range views {
			live[v.ID] = true
		}
		if records, err := s.store.ListRuns(0); err == nil {
			for _, rec := range records {
				if !live[rec.ID] {
					views = append(views, runView{ID: rec.ID, Goal: rec.Goal, Mode: rec.Mode, Status: rec.Status})
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRun(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if r := s.getRun(id); r != nil {
		writeJSON(w, http.StatusOK, runView{ID: r.ID, Goal: r.Goal, Mode: r.Mode, Status: string(r.Status())})
		return
	}
	if s.store != nil {
		if rec, err := s.store.GetRun(id); err == nil && rec != nil {
			writeJSON(w, http.StatusOK, runView{ID: rec.ID, Goal: rec.Goal, Mode: rec.Mode, Status: rec.Status})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no such run")
}

func (s *Server) handleBoard(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	writeJSON(w, http.StatusOK, r.Items())
}

func (s *Server) handleWorkers(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	writeJSON(w, http.StatusOK, r.Workers())
}

func (s *Server) handleEvents(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	limit := queryInt(req, "limit", 100)
	offset := queryInt(req, "offset", 0)
	writeJSON(w, http.StatusOK, r.Events(limit, offset))
}

func (s *Server) handleConversation(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	writeJSON(w, http.StatusOK, r.Conversation())
}

func (s *Server) handleMessage(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	r.SendMessage(body.Content)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delivered"})
}

func (s *Server) handleRespond(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Answer == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}
	if err := r.RespondToQuestion(body.Answer); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delivered"})
}

func (s *Server) handleStop(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	r.Stop()
	s.log.Info("run stopped", "run_id", r.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(coordinator.StatusWaitingForHuman)})
}

func (s *Server) handleResume(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}
	r.Resume()
	s.log.Info("run resumed", "run_id", r.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(r.Status())})
}

func (s *Server) providerOpts() provider.Options {
	key, _ := config.GetAPIKey(s.cfg)
	return provider.Options{
		APIKey:            key,
		UseAWSBedrock:     s.cfg.Anthropic.UseBedrock,
		AWSRegion:         s.cfg.Anthropic.AWSRegion,
		AWSProfile:        s.cfg.Anthropic.AWSProfile,
		RequestsPerMinute: s.cfg.Anthropic.RequestsPerMinute,
	}
}

func (s *Server) coordinatorConfig() coordinator.Config {
	return coordinator.Config{
		MaxTurns:            s.cfg.Limits.MaxTurns,
		MaxConsecutiveFails: s.cfg.Limits.MaxConsecutiveFails,
		BackoffBase:         s.cfg.Limits.BackoffBase,
		BackoffMax:          s.cfg.Limits.BackoffMax,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(req *http.Request, name string, fallback int) int {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
