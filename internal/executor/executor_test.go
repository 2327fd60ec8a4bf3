package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/conclave-ai/conclave/internal/board"
	"github.com/conclave-ai/conclave/internal/bus"
	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/tool"
	"github.com/conclave-ai/conclave/internal/trigger"
	"github.com/conclave-ai/conclave/internal/workspace"
	"github.com/conclave-ai/conclave/pkg/models"
)

// step is one scripted backend response.
type step struct {
	resp *models.ModelResponse
	err  error
}

// scriptedBackend replays a fixed sequence of responses and records every
// request it sees.
type scriptedBackend struct {
	mu       sync.Mutex
	steps    []step
	requests []provider.Request
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) Generate(_ context.Context, req provider.Request) (*models.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return &models.ModelResponse{}, nil
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next.resp, next.err
}

func (s *scriptedBackend) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type env struct {
	base   tool.Context
	reg    *tool.Registry
	worker *models.Worker
	item   *models.WorkItem
}

// newEnv builds a run-scoped context with one busy worker assigned to one
// running-ready item, the state an execution starts from.
func newEnv(t *testing.T) *env {
	t.Helper()
	ws := workspace.New(t.TempDir())
	if err := ws.Init("test goal"); err != nil {
		t.Fatalf("workspace init: %v", err)
	}
	runDir, err := ws.RunDir("run-1")
	if err != nil {
		t.Fatalf("run dir: %v", err)
	}

	b := board.New()
	pool := board.NewPool(4)

	worker := &models.Worker{
		ID:            "w1",
		Name:          "scout",
		Role:          "researcher",
		Type:          models.WorkerTypeReact,
		Status:        models.WorkerStatusIdle,
		MaxIterations: 5,
	}
	if err := pool.Add(worker); err != nil {
		t.Fatalf("add worker: %v", err)
	}
	if err := ws.InitWorkerDir("run-1", worker); err != nil {
		t.Fatalf("worker dir: %v", err)
	}

	item := &models.WorkItem{ID: "item1", Task: "summarize the findings"}
	if err := ws.InitItemDir("run-1", item); err != nil {
		t.Fatalf("item dir: %v", err)
	}
	if err := b.Add(item); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := b.Assign(item.ID, worker.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	pool.SetStatus(worker.ID, models.WorkerStatusBusy)

	reg, err := tool.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	return &env{
		base: tool.Context{
			RunID:     "run-1",
			RunDir:    runDir,
			Workspace: ws,
			Board:     b,
			Pool:      pool,
			Messages:  bus.NewMessageBus(""),
			Events:    bus.NewEventBus(""),
			Triggers:  trigger.NewStore(),
		},
		reg:    reg,
		worker: worker,
		item:   item,
	}
}

func publishResponse(summary string) *models.ModelResponse {
	return &models.ModelResponse{
		ToolCalls: []models.ToolCall{{
			ID:   "tc_1",
			Name: "publish",
			Args: map[string]any{"summary": summary},
		}},
	}
}

func TestReactPublishCompletesItemAndReleasesWorker(t *testing.T) {
	e := newEnv(t)
	backend := &scriptedBackend{steps: []step{{resp: publishResponse("report written")}}}
	ex := NewReact(backend, e.reg, e.base)

	result, err := ex.Execute(context.Background(), e.worker, e.item)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result != "report written" {
		t.Errorf("result = %q, want the publish summary", result)
	}
	if got := e.base.Board.Get("item1").Status; got != models.ItemStatusCompleted {
		t.Errorf("item status = %s, want completed", got)
	}
	if got := e.base.Pool.Get("w1").Status; got != models.WorkerStatusIdle {
		t.Errorf("worker status = %s, want idle", got)
	}
}

func TestReactBudgetExhaustion(t *testing.T) {
	e := newEnv(t)
	e.worker.MaxIterations = 3

	// Three text-only turns that never publish.
	var steps []step
	for i := 0; i < 3; i++ {
		steps = append(steps, step{resp: &models.ModelResponse{Text: "still thinking"}})
	}
	backend := &scriptedBackend{steps: steps}
	ex := NewReact(backend, e.reg, e.base)

	if _, err := ex.Execute(context.Background(), e.worker, e.item); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := e.base.Board.Get("item1").Status; got != models.ItemStatusFailed {
		t.Errorf("item status = %s, want failed", got)
	}
	if got := e.base.Pool.Get("w1").Status; got != models.WorkerStatusIdle {
		t.Errorf("worker status = %s, want idle", got)
	}

	notes, err := os.ReadFile(filepath.Join(e.item.Dir, "failure_notes.md"))
	if err != nil {
		t.Fatalf("failure notes: %v", err)
	}
	if !strings.Contains(string(notes), "summarize the findings") {
		t.Errorf("failure notes missing the task: %q", notes)
	}

	msgs := e.base.Messages.Receive("coordinator")
	if len(msgs) != 1 {
		t.Fatalf("coordinator received %d messages, want exactly 1", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].Content, "[WORKER FAILED] scout failed on item [item1].") {
		t.Errorf("unexpected failure message: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "Max iterations (3) reached without publishing.") {
		t.Errorf("failure message missing reason: %q", msgs[0].Content)
	}
}

func TestReactBackendRetrySucceeds(t *testing.T) {
	e := newEnv(t)
	backend := &scriptedBackend{steps: []step{
		{err: errors.New("rate limited")},
		{resp: publishResponse("done after retry")},
	}}
	ex := NewReact(backend, e.reg, e.base)

	result, err := ex.Execute(context.Background(), e.worker, e.item)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result != "done after retry" {
		t.Errorf("result = %q", result)
	}
	if backend.callCount() != 2 {
		t.Errorf("backend called %d times, want 2", backend.callCount())
	}
	if got := e.base.Board.Get("item1").Status; got != models.ItemStatusCompleted {
		t.Errorf("item status = %s, want completed", got)
	}
}

func TestReactBackendDoubleFailure(t *testing.T) {
	e := newEnv(t)
	backend := &scriptedBackend{steps: []step{
		{err: errors.New("first outage")},
		{err: errors.New("second outage")},
	}}
	ex := NewReact(backend, e.reg, e.base)

	if _, err := ex.Execute(context.Background(), e.worker, e.item); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := e.base.Board.Get("item1").Status; got != models.ItemStatusFailed {
		t.Errorf("item status = %s, want failed", got)
	}
	if got := e.base.Pool.Get("w1").Status; got != models.WorkerStatusIdle {
		t.Errorf("worker status = %s, want idle", got)
	}

	notes, err := os.ReadFile(filepath.Join(e.item.Dir, "failure_notes.md"))
	if err != nil {
		t.Fatalf("failure notes: %v", err)
	}
	if !strings.Contains(string(notes), "first outage") || !strings.Contains(string(notes), "second outage") {
		t.Errorf("failure notes missing the backend errors: %q", notes)
	}

	msgs := e.base.Messages.Receive("coordinator")
	if len(msgs) != 1 {
		t.Fatalf("coordinator received %d messages, want 1", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "second outage") {
		t.Errorf("failure message missing final error: %q", msgs[0].Content)
	}
}

func TestReactDrainsMailboxIntoConversation(t *testing.T) {
	e := newEnv(t)
	e.base.Messages.Send("coordinator", "scout", "focus on the 2025 data")

	backend := &scriptedBackend{steps: []step{{resp: publishResponse("narrowed report")}}}
	ex := NewReact(backend, e.reg, e.base)

	if _, err := ex.Execute(context.Background(), e.worker, e.item); err != nil {
		t.Fatalf("execute: %v", err)
	}

	req := backend.requests[0]
	found := false
	for _, turn := range req.Turns {
		if turn.Role == "user" && strings.Contains(turn.Text, "[Message from coordinator]: focus on the 2025 data") {
			found = true
		}
	}
	if !found {
		t.Errorf("mailbox message did not enter the conversation: %+v", req.Turns)
	}
}

func TestReactStallFailsItem(t *testing.T) {
	e := newEnv(t)
	backend := &scriptedBackend{steps: []step{{resp: &models.ModelResponse{}}}}
	ex := NewReact(backend, e.reg, e.base)

	if _, err := ex.Execute(context.Background(), e.worker, e.item); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := e.base.Board.Get("item1").Status; got != models.ItemStatusFailed {
		t.Errorf("item status = %s, want failed", got)
	}
	if backend.callCount() != 1 {
		t.Errorf("backend called %d times after a stall, want 1", backend.callCount())
	}
}

func TestReactAgentFinishedCompletesItem(t *testing.T) {
	e := newEnv(t)
	backend := &scriptedBackend{steps: []step{
		{resp: &models.ModelResponse{Text: "AGENT_FINISHED: nothing left to do"}},
	}}
	ex := NewReact(backend, e.reg, e.base)

	result, err := ex.Execute(context.Background(), e.worker, e.item)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(result, "nothing left to do") {
		t.Errorf("result = %q", result)
	}
	if got := e.base.Board.Get("item1").Status; got != models.ItemStatusCompleted {
		t.Errorf("item status = %s, want completed", got)
	}
}

func TestReactCancellation(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &scriptedBackend{}
	ex := NewReact(backend, e.reg, e.base)

	if _, err := ex.Execute(ctx, e.worker, e.item); err != nil {
		t.Fatalf("execute: %v", err)
	}

	item := e.base.Board.Get("item1")
	if item.Status != models.ItemStatusFailed {
		t.Errorf("item status = %s, want failed", item.Status)
	}
	if item.Result != stoppedByUser {
		t.Errorf("item result = %q, want %q", item.Result, stoppedByUser)
	}
	if got := e.base.Pool.Get("w1").Status; got != models.WorkerStatusIdle {
		t.Errorf("worker status = %s, want idle", got)
	}
	if backend.callCount() != 0 {
		t.Errorf("backend called %d times after cancellation, want 0", backend.callCount())
	}
}

func TestInitialMessageIncludesRefs(t *testing.T) {
	e := newEnv(t)
	refPath := filepath.Join(e.base.RunDir, "upstream.md")
	if err := os.WriteFile(refPath, []byte("upstream findings here"), 0644); err != nil {
		t.Fatalf("write ref: %v", err)
	}
	e.item.Refs = map[string]string{"findings": "upstream.md"}

	tc := scopedContext(e.base, e.worker, e.item)
	msg := initialMessage(tc)

	if !strings.Contains(msg, "## Your Assignment") {
		t.Errorf("missing assignment header: %q", msg)
	}
	if !strings.Contains(msg, "## Input Data (From Upstream Items)") {
		t.Errorf("missing input data section: %q", msg)
	}
	if !strings.Contains(msg, "upstream findings here") {
		t.Errorf("missing ref content: %q", msg)
	}
}

func TestRouterRejectsUnconfiguredStrategies(t *testing.T) {
	r := &Router{}
	w := &models.Worker{Type: models.WorkerTypeAgentCLI}
	if _, err := r.Execute(context.Background(), w, &models.WorkItem{}); err == nil {
		t.Error("expected error for missing agent-cli executor")
	}
	w.Type = models.WorkerTypeFileBridge
	if _, err := r.Execute(context.Background(), w, &models.WorkItem{}); err == nil {
		t.Error("expected error for missing file-bridge executor")
	}
	w.Type = models.WorkerTypeReact
	if _, err := r.Execute(context.Background(), w, &models.WorkItem{}); err == nil {
		t.Error("expected error for missing react executor")
	}
}

func TestFileBridgeSeedAndOutbox(t *testing.T) {
	e := newEnv(t)
	fb := NewFileBridge(e.base)
	tc := scopedContext(e.base, e.worker, e.item)
	scratch := scratchDir(e.item)

	if err := fb.seedBridgeFiles(tc, scratch); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, name := range []string{bridgeTaskFile, bridgeContextFile, bridgeInboxFile, bridgeOutboxFile} {
		if _, err := os.Stat(filepath.Join(scratch, name)); err != nil {
			t.Errorf("missing bridge file %s: %v", name, err)
		}
	}

	outbox := "TO: scout2\nhere is the schema\n---\nprogress update for you\n---\n"
	if err := os.WriteFile(filepath.Join(scratch, bridgeOutboxFile), []byte(outbox), 0644); err != nil {
		t.Fatalf("write outbox: %v", err)
	}
	fb.bridgeOutbox(tc, scratch)

	addressed := e.base.Messages.Receive("scout2")
	if len(addressed) != 1 || addressed[0].Content != "here is the schema" {
		t.Errorf("addressed message = %+v", addressed)
	}
	// Entries without a TO: line default to the coordinator.
	def := e.base.Messages.Receive("coordinator")
	if len(def) != 1 || def[0].Content != "progress update for you" {
		t.Errorf("default-addressed message = %+v", def)
	}

	data, _ := os.ReadFile(filepath.Join(scratch, bridgeOutboxFile))
	if len(data) != 0 {
		t.Errorf("outbox not cleared: %q", data)
	}
}

func TestFileBridgeInboxAppends(t *testing.T) {
	e := newEnv(t)
	fb := NewFileBridge(e.base)
	tc := scopedContext(e.base, e.worker, e.item)
	scratch := scratchDir(e.item)
	if err := fb.seedBridgeFiles(tc, scratch); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e.base.Messages.Send("coordinator", "scout", "check the inbox path")
	fb.bridgeInbox(tc, scratch)

	data, err := os.ReadFile(filepath.Join(scratch, bridgeInboxFile))
	if err != nil {
		t.Fatalf("read inbox: %v", err)
	}
	if !strings.Contains(string(data), "FROM: coordinator\ncheck the inbox path\n---\n") {
		t.Errorf("inbox content = %q", data)
	}
}

func TestFileBridgeRequiresAgentCommand(t *testing.T) {
	e := newEnv(t)
	e.worker.Type = models.WorkerTypeFileBridge
	fb := NewFileBridge(e.base)

	if _, err := fb.Execute(context.Background(), e.worker, e.item); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := e.base.Board.Get("item1").Status; got != models.ItemStatusFailed {
		t.Errorf("item status = %s, want failed", got)
	}
	msgs := e.base.Messages.Receive("coordinator")
	if len(msgs) != 1 || !strings.Contains(msgs[0].Content, "no agent command") {
		t.Errorf("coordinator messages = %+v", msgs)
	}
}
