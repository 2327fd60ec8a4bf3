package run

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conclave-ai/conclave/internal/coordinator"
	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/state"
	"github.com/conclave-ai/conclave/pkg/models"
)

type scriptedBackend struct {
	mu    sync.Mutex
	steps []*models.ModelResponse
	calls int
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) Generate(_ context.Context, _ provider.Request) (*models.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.steps) == 0 {
		return &models.ModelResponse{Text: "nothing more to say"}, nil
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next, nil
}

func finishCall() *models.ModelResponse {
	return &models.ModelResponse{
		ToolCalls: []models.ToolCall{{ID: "tc_1", Name: "finish", Args: map[string]any{"summary": "all done"}}},
	}
}

func fastOptions(t *testing.T, backend provider.Provider) Options {
	t.Helper()
	return Options{
		Goal:         "write a haiku about concurrency",
		WorkspaceDir: t.TempDir(),
		Backend:      backend,
		Coordinator: coordinator.Config{
			MaxTurns:     20,
			BackoffBase:  time.Millisecond,
			BackoffMax:   4 * time.Millisecond,
			FailurePause: 10 * time.Millisecond,
			HumanWait:    5 * time.Millisecond,
			WorkerPoll:   time.Millisecond,
		},
	}
}

func TestRunFinishesWhenCoordinatorCallsFinish(t *testing.T) {
	backend := &scriptedBackend{steps: []*models.ModelResponse{finishCall()}}
	r, err := New(fastOptions(t, backend))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}

	if got := r.Status(); got != coordinator.StatusCompleted {
		t.Fatalf("status = %q, want %q", got, coordinator.StatusCompleted)
	}
	events := r.Events(50, 0)
	var sawFinished bool
	for _, ev := range events {
		if ev.Type == "run.finished" {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatalf("no run.finished event in %d events", len(events))
	}
}

func TestNewRegistersCoreMailboxes(t *testing.T) {
	backend := &scriptedBackend{}
	r, err := New(fastOptions(t, backend))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	registered := map[string]bool{}
	for _, e := range r.messages.Entities() {
		registered[e] = true
	}
	for _, want := range []string{"coordinator", "human"} {
		if !registered[want] {
			t.Errorf("mailbox %q not registered at construction", want)
		}
	}

	// A broadcast before anyone has spoken still reaches the coordinator.
	recipients := r.messages.Broadcast("scout", "status update", "human", "human_to_coordinator")
	var sawCoordinator bool
	for _, to := range recipients {
		if to == "coordinator" {
			sawCoordinator = true
		}
	}
	if !sawCoordinator {
		t.Errorf("broadcast recipients = %v, want coordinator included", recipients)
	}
}

func TestSendMessageReachesCoordinatorMailboxAndLog(t *testing.T) {
	backend := &scriptedBackend{steps: []*models.ModelResponse{finishCall()}}
	r, err := New(fastOptions(t, backend))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	r.SendMessage("please prioritize the summary item")

	pending := r.messages.Peek("human_to_coordinator")
	if len(pending) != 1 || pending[0].Content != "please prioritize the summary item" {
		t.Fatalf("human_to_coordinator mailbox = %+v", pending)
	}
	entries := r.Conversation()
	if len(entries) != 1 || entries[0].Role != "human" {
		t.Fatalf("conversation = %+v", entries)
	}
}

func TestRespondToQuestionRejectsWhenQueueFull(t *testing.T) {
	backend := &scriptedBackend{steps: []*models.ModelResponse{finishCall()}}
	r, err := New(fastOptions(t, backend))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	for i := 0; i < cap(r.humanResponses); i++ {
		if err := r.RespondToQuestion("yes"); err != nil {
			t.Fatalf("response %d rejected: %v", i, err)
		}
	}
	if err := r.RespondToQuestion("one too many"); err == nil {
		t.Fatal("expected an error once the response queue is full")
	}
}

func TestStopCancelsExecutionsAndResumeRearms(t *testing.T) {
	backend := &scriptedBackend{}
	r, err := New(fastOptions(t, backend))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	r.Stop()
	r.execMu.Lock()
	stoppedErr := r.execCtx.Err()
	r.execMu.Unlock()
	if stoppedErr == nil {
		t.Fatal("Stop did not cancel the execution context")
	}

	r.Resume()
	r.execMu.Lock()
	resumedErr := r.execCtx.Err()
	r.execMu.Unlock()
	if resumedErr != nil {
		t.Fatalf("execution context still cancelled after Resume: %v", resumedErr)
	}
}

func TestFiredTriggerMessagesCoordinator(t *testing.T) {
	backend := &scriptedBackend{}
	r, err := New(fastOptions(t, backend))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	trig := &models.Trigger{ID: "trig_1", Kind: models.TriggerKindHeartbeat}
	r.fireTrigger(trig, "check the build status")

	pending := r.messages.Peek("coordinator")
	if len(pending) != 1 {
		t.Fatalf("coordinator mailbox = %+v", pending)
	}
	if !strings.Contains(pending[0].Content, "[Trigger heartbeat fired]") ||
		!strings.Contains(pending[0].Content, "check the build status") {
		t.Fatalf("trigger message = %q", pending[0].Content)
	}
}

func TestRunPersistsLifecycleToStore(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	backend := &scriptedBackend{steps: []*models.ModelResponse{finishCall()}}
	opts := fastOptions(t, backend)
	opts.State = db
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}

	rec, err := db.GetRun(r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec == nil {
		t.Fatal("run was not persisted")
	}
	if rec.Status != string(coordinator.StatusCompleted) {
		t.Fatalf("persisted status = %q, want completed", rec.Status)
	}
	if rec.FinishedAt == nil {
		t.Fatal("finished_at was not stamped")
	}
}
