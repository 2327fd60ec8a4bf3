package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conclave-ai/conclave/internal/board"
	"github.com/conclave-ai/conclave/internal/bus"
	"github.com/conclave-ai/conclave/internal/trigger"
	"github.com/conclave-ai/conclave/internal/workspace"
	"github.com/conclave-ai/conclave/pkg/models"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	ws := workspace.New(t.TempDir())
	if err := ws.Init("test goal"); err != nil {
		t.Fatalf("workspace init: %v", err)
	}
	runDir, err := ws.RunDir("run-1")
	if err != nil {
		t.Fatalf("run dir: %v", err)
	}
	return &Context{
		RunID:        "run-1",
		RunDir:       runDir,
		Workspace:    ws,
		Board:        board.New(),
		Pool:         board.NewPool(4),
		Messages:     bus.NewMessageBus(""),
		Events:       bus.NewEventBus(""),
		Triggers:     trigger.NewStore(),
		HumanTimeout: 50 * time.Millisecond,
		DefaultModel: "anthropic/claude-sonnet-4-5",
	}
}

func TestDispatchUnknownToolReturnsErrorString(t *testing.T) {
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	tc := testContext(t)

	out := r.Dispatch(context.Background(), models.ToolCall{ID: "tc_1", Name: "no_such_tool"}, tc)
	if out != "Error: Unknown tool 'no_such_tool'" {
		t.Errorf("unexpected dispatch result: %q", out)
	}

	// Same contract on an empty registry.
	out = NewRegistry().Dispatch(context.Background(), models.ToolCall{Name: "publish"}, tc)
	if !strings.HasPrefix(out, "Error: Unknown tool") {
		t.Errorf("empty registry dispatch: %q", out)
	}
}

func TestDispatchValidatesArguments(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "send_message", Args: map[string]any{"to": "coordinator"}}, tc)
	if !strings.HasPrefix(out, "Error: invalid arguments for send_message") {
		t.Errorf("expected validation failure, got %q", out)
	}

	out = r.Dispatch(context.Background(), models.ToolCall{Name: "bash", Args: map[string]any{"command": 42}}, tc)
	if !strings.HasPrefix(out, "Error: invalid arguments") {
		t.Errorf("expected type validation failure, got %q", out)
	}
}

func TestDispatchConvertsErrorsAndPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(models.ToolDef{Name: "fails"}, func(context.Context, *Context, map[string]any) (string, error) {
		return "", errors.New("backend exploded")
	})
	r.Register(models.ToolDef{Name: "panics"}, func(context.Context, *Context, map[string]any) (string, error) {
		panic("nil map write")
	})
	tc := testContext(t)

	if out := r.Dispatch(context.Background(), models.ToolCall{Name: "fails"}, tc); out != "Error: backend exploded" {
		t.Errorf("error conversion: %q", out)
	}
	if out := r.Dispatch(context.Background(), models.ToolCall{Name: "panics"}, tc); !strings.Contains(out, "panicked") {
		t.Errorf("panic conversion: %q", out)
	}
}

func TestWorkerToolsExcludeCoordinatorOnly(t *testing.T) {
	r, _ := NewDefaultRegistry()

	worker := r.WorkerTools()
	for _, def := range worker {
		if def.CoordinatorOnly {
			t.Errorf("coordinator-only tool %s offered to workers", def.Name)
		}
	}

	coord := r.CoordinatorTools()
	if len(coord) <= len(worker) {
		t.Error("coordinator offering should be a strict superset")
	}

	names := map[string]bool{}
	for _, def := range coord {
		names[def.Name] = true
	}
	for _, want := range []string{"publish", "bash", "assign_worker", "spawn_worker", "finish", "schedule"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestCoordinatorOnlyBypassEmitsWarning(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)
	tc.Worker = &models.Worker{ID: "w1", Name: "Alice"}
	tc.Pool.Add(tc.Worker)

	r.Dispatch(context.Background(), models.ToolCall{Name: "check_board"}, tc)

	found := false
	for _, ev := range tc.Events.History() {
		if ev.Type == "tool.coordinator_only_bypass" {
			found = true
		}
	}
	if !found {
		t.Error("expected a bypass warning event")
	}
}

func TestPublishCompletesItemAndIdlesWorker(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)

	item := &models.WorkItem{ID: "a", Task: "write the report"}
	if err := tc.Workspace.InitItemDir("run-1", item); err != nil {
		t.Fatalf("item dir: %v", err)
	}
	tc.Board.Add(item)
	tc.Board.SetStatus("a", models.ItemStatusRunning)

	worker := &models.Worker{ID: "w1", Name: "Alice", Status: models.WorkerStatusBusy}
	tc.Workspace.InitWorkerDir("run-1", worker)
	tc.Pool.Add(worker)
	tc.Item = item
	tc.Worker = worker

	os.WriteFile(filepath.Join(item.Dir, "scratch", "report.md"), []byte("done"), 0644)

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "publish", Args: map[string]any{"summary": "report written"}}, tc)
	if strings.HasPrefix(out, "Error") {
		t.Fatalf("publish failed: %q", out)
	}

	if got := tc.Board.Get("a").Status; got != models.ItemStatusCompleted {
		t.Errorf("item status = %s, want completed", got)
	}
	if got := tc.Pool.Get("w1").Status; got != models.WorkerStatusIdle {
		t.Errorf("worker status = %s, want idle", got)
	}
	if _, err := os.Stat(filepath.Join(item.Dir, "published", "report.md")); err != nil {
		t.Error("scratch file not promoted to published/")
	}
}

func TestCreateWorkItemAddsToBoard(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)

	ticked := false
	tc.Ticker = func() { ticked = true }

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "create_work_item", Args: map[string]any{"task": "collect data"}}, tc)
	if strings.HasPrefix(out, "Error") {
		t.Fatalf("create failed: %q", out)
	}
	if tc.Board.Size() != 1 {
		t.Fatalf("board size = %d", tc.Board.Size())
	}
	if !ticked {
		t.Error("expected a scheduler tick after item creation")
	}

	item := tc.Board.Items()[0]
	if _, err := os.Stat(filepath.Join(item.Dir, "_spec.md")); err != nil {
		t.Error("item workspace not initialized")
	}
}

func TestAskHumanTimesOut(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)
	responses := make(chan string)
	tc.HumanResponses = responses

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "ask_human", Args: map[string]any{"question": "which format?"}}, tc)
	if out != "Human did not respond within timeout. Proceeding with best judgment." {
		t.Errorf("timeout result: %q", out)
	}
	if !tc.Messages.HasMessages("human") {
		t.Error("question not delivered to the human mailbox")
	}
}

func TestAskHumanReceivesResponse(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)
	responses := make(chan string, 1)
	responses <- "use CSV"
	tc.HumanResponses = responses
	tc.HumanTimeout = time.Second

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "ask_human", Args: map[string]any{"question": "which format?"}}, tc)
	if out != "Human responded: use CSV" {
		t.Errorf("response result: %q", out)
	}
}

func TestFinishSignalsTermination(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "finish", Args: map[string]any{"summary": "all goals met"}}, tc)
	if !strings.HasPrefix(out, "AGENT_FINISHED:") {
		t.Errorf("finish result: %q", out)
	}
}

func TestSpawnWorkerRegistersMailbox(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "spawn_worker", Args: map[string]any{"name": "Alice", "role": "researcher"}}, tc)
	if strings.HasPrefix(out, "Error") {
		t.Fatalf("spawn failed: %q", out)
	}
	if tc.Pool.GetByName("Alice") == nil {
		t.Fatal("worker not in pool")
	}

	tc.Messages.Send("coordinator", "Alice", "hello")
	if !tc.Messages.HasMessages("Alice") {
		t.Error("spawned worker has no mailbox")
	}
}

func TestBroadcastSkipsHumanChannels(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)
	tc.Worker = &models.Worker{ID: "w1", Name: "Alice"}
	tc.Pool.Add(tc.Worker)

	tc.Messages.Register("coordinator")
	tc.Messages.Register("human")
	tc.Messages.Register("Alice")
	tc.Messages.Register("Bob")
	tc.Messages.Send("human", "human_to_coordinator", "status please")
	tc.Messages.Receive("human_to_coordinator")

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "send_message", Args: map[string]any{"to": "all", "content": "pausing for lunch"}}, tc)
	if !strings.HasPrefix(out, "Broadcast sent to") {
		t.Fatalf("broadcast failed: %q", out)
	}

	if !tc.Messages.HasMessages("coordinator") {
		t.Error("broadcast skipped the coordinator")
	}
	if !tc.Messages.HasMessages("Bob") {
		t.Error("broadcast skipped a fellow worker")
	}
	for _, ch := range []string{"human", "human_to_coordinator"} {
		for _, m := range tc.Messages.Peek(ch) {
			if m.From == "Alice" {
				t.Errorf("worker broadcast landed in %s: %+v", ch, m)
			}
		}
	}
}

func TestReadWriteListFiles(t *testing.T) {
	r, _ := NewDefaultRegistry()
	tc := testContext(t)

	out := r.Dispatch(context.Background(), models.ToolCall{Name: "write_file", Args: map[string]any{"path": "notes/draft.md", "content": "hello"}}, tc)
	if strings.HasPrefix(out, "Error") {
		t.Fatalf("write failed: %q", out)
	}

	out = r.Dispatch(context.Background(), models.ToolCall{Name: "read_file", Args: map[string]any{"path": "notes/draft.md"}}, tc)
	if out != "hello" {
		t.Errorf("read: %q", out)
	}

	out = r.Dispatch(context.Background(), models.ToolCall{Name: "list_files", Args: map[string]any{"path": "notes"}}, tc)
	if out != "draft.md" {
		t.Errorf("list: %q", out)
	}

	// Traversal out of the workspace is rejected.
	out = r.Dispatch(context.Background(), models.ToolCall{Name: "read_file", Args: map[string]any{"path": "../../../etc/passwd"}}, tc)
	if !strings.HasPrefix(out, "Error") {
		t.Errorf("expected traversal rejection, got %q", out)
	}
}
