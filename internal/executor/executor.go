// Package executor runs one work item on one worker. Three strategies share
// the same launch signature: an in-process reasoning loop (react), an
// external coding-agent subprocess (agent-cli), and a file-bridged arbitrary
// process (file-bridge). Every strategy settles the item to a terminal
// status on its own failure paths and leaves the worker releasable.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/tool"
	"github.com/conclave-ai/conclave/internal/workspace"
	"github.com/conclave-ai/conclave/pkg/models"
)

const (
	defaultMaxIterations = 20
	maxRefBytes          = 5000
	maxFailureNotes      = 2000
	stoppedByUser        = "Stopped by user"
)

// Router picks the executor strategy from the worker's type. Its Execute
// method satisfies the scheduler's Launcher signature.
type Router struct {
	React      *ReactExecutor
	AgentCLI   *AgentCLIExecutor
	FileBridge *FileBridgeExecutor
}

// Execute dispatches to the strategy matching the worker's type.
func (r *Router) Execute(ctx context.Context, worker *models.Worker, item *models.WorkItem) (string, error) {
	switch worker.Type {
	case models.WorkerTypeAgentCLI:
		if r.AgentCLI == nil {
			return "", fmt.Errorf("no agent-cli executor configured")
		}
		return r.AgentCLI.Execute(ctx, worker, item)
	case models.WorkerTypeFileBridge:
		if r.FileBridge == nil {
			return "", fmt.Errorf("no file-bridge executor configured")
		}
		return r.FileBridge.Execute(ctx, worker, item)
	default:
		if r.React == nil {
			return "", fmt.Errorf("no react executor configured")
		}
		return r.React.Execute(ctx, worker, item)
	}
}

// scopedContext copies the run-wide tool context and binds it to one
// execution.
func scopedContext(base tool.Context, worker *models.Worker, item *models.WorkItem) *tool.Context {
	tc := base
	tc.Worker = worker
	tc.Item = item
	return &tc
}

func scratchDir(item *models.WorkItem) string {
	return filepath.Join(item.Dir, "scratch")
}

// markStarted moves the item to running and announces the execution.
func markStarted(tc *tool.Context) {
	tc.Board.SetStatus(tc.Item.ID, models.ItemStatusRunning)
	tc.Emit("item.started", map[string]any{
		"item_id":     tc.Item.ID,
		"worker_id":   tc.Worker.ID,
		"worker_name": tc.Worker.Name,
		"task":        truncate(tc.Item.Task, 200),
	})
	tc.Logger.Log("executor: %s started item %s", tc.Worker.Name, tc.Item.ID)
}

// reportFailure runs the shared failure protocol: persist failure notes in
// the item workspace, notify the coordinator once, mark the item failed, and
// leave the worker idle. notes has already been capped by buildFailureNotes.
func reportFailure(tc *tool.Context, reason string, notes string) {
	if tc.Item.Dir != "" {
		if err := workspace.WriteFailureNotes(tc.Item.Dir, notes); err != nil {
			tc.Logger.Log("executor: write failure notes for %s: %v", tc.Item.ID, err)
		}
	}

	msg := fmt.Sprintf("[WORKER FAILED] %s failed on item [%s].\nTask: %s\nError: %s\nWorker notes:\n%s",
		tc.Worker.Name, tc.Item.ID, truncate(tc.Item.Task, 200), reason, truncate(notes, 1500))
	tc.Messages.Send(tc.Worker.Name, "coordinator", msg)

	tc.Board.Fail(tc.Item.ID, reason)
	tc.Pool.Release(tc.Worker.ID)
	tc.Emit("item.failed", map[string]any{
		"item_id":     tc.Item.ID,
		"worker_name": tc.Worker.Name,
		"reason":      truncate(reason, 200),
	})
	tc.Logger.Log("executor: %s failed item %s: %s", tc.Worker.Name, tc.Item.ID, reason)
}

// cancelExecution settles an item whose run was cancelled mid-flight. The
// coordinator is not notified; the whole run is going down with it.
func cancelExecution(tc *tool.Context) {
	if tc.Item.Dir != "" {
		workspace.WriteFailureNotes(tc.Item.Dir, stoppedByUser)
	}
	tc.Board.Fail(tc.Item.ID, stoppedByUser)
	tc.Pool.Release(tc.Worker.ID)
	tc.Emit("item.cancelled", map[string]any{"item_id": tc.Item.ID, "worker_name": tc.Worker.Name})
	tc.Logger.Log("executor: item %s cancelled", tc.Item.ID)
}

// completeWithResult promotes the item's scratch output and marks it
// completed. Used by the subprocess executors; the react path completes
// through the publish tool instead.
func completeWithResult(tc *tool.Context, result string) error {
	if tc.Item.Dir != "" {
		if _, err := workspace.Publish(tc.Item.Dir); err != nil {
			return fmt.Errorf("publish item output: %w", err)
		}
		status := fmt.Sprintf("COMPLETED\n\n%s\n", result)
		os.WriteFile(filepath.Join(tc.Item.Dir, "_status.md"), []byte(status), 0644)
	}
	if err := tc.Board.Complete(tc.Item.ID, result); err != nil {
		return err
	}
	if tc.Worker.Dir != "" {
		workspace.AppendWorkerMemory(tc.Worker.Dir, fmt.Sprintf("item %s: %s", tc.Item.ID, truncate(result, 200)))
	}
	tc.Pool.Release(tc.Worker.ID)
	tc.Emit("item.completed", map[string]any{"item_id": tc.Item.ID, "summary": truncate(result, 200)})
	return nil
}

// initialMessage assembles the first user turn / subprocess prompt: the
// assignment, upstream inputs resolved from the item's refs, and workspace
// pointers.
func initialMessage(tc *tool.Context) string {
	var b strings.Builder
	b.WriteString("## Your Assignment\n\n")
	b.WriteString(tc.Item.Task)
	b.WriteString("\n")

	if len(tc.Item.Refs) > 0 {
		b.WriteString("\n## Input Data (From Upstream Items)\n")
		for name, ref := range tc.Item.Refs {
			b.WriteString("\n### " + name + "\n")
			b.WriteString(readRef(tc, ref))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Your Workspace\n")
	b.WriteString("Draft files in scratch/ (" + scratchDir(tc.Item) + ").\n")
	b.WriteString("When you call publish, everything in scratch/ not starting with '_' is promoted to published/ for downstream items.\n")
	return b.String()
}

// readRef loads one upstream reference, truncated so a large artifact cannot
// crowd out the task itself.
func readRef(tc *tool.Context, ref string) string {
	path := ref
	if !filepath.IsAbs(path) {
		resolved, err := tc.ResolvePath(ref)
		if err != nil {
			return fmt.Sprintf("[unreadable ref %s: %v]", ref, err)
		}
		path = resolved
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("[unreadable ref %s: %v]", ref, err)
	}
	return truncate(string(data), maxRefBytes)
}

// drainMailbox converts pending messages into user turns so they enter the
// worker's conversation at the next model call.
func drainMailbox(tc *tool.Context) []provider.Turn {
	msgs := tc.Messages.Receive(tc.Worker.Name)
	if len(msgs) == 0 {
		return nil
	}
	turns := make([]provider.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, provider.UserTurn(fmt.Sprintf("[Message from %s]: %s", m.From, m.Content)))
	}
	return turns
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n\n[... truncated ...]"
}

// iterationRecord is one line of an item's log.jsonl.
type iterationRecord struct {
	Iteration int               `json:"iteration"`
	Timestamp time.Time         `json:"ts"`
	Worker    string            `json:"worker"`
	Text      string            `json:"text,omitempty"`
	ToolCalls []string          `json:"tool_calls,omitempty"`
	Usage     models.TokenUsage `json:"usage"`
}

func logIteration(tc *tool.Context, iteration int, resp *models.ModelResponse) {
	if tc.Item.Dir == "" {
		return
	}
	names := make([]string, 0, len(resp.ToolCalls))
	for _, c := range resp.ToolCalls {
		names = append(names, c.Name)
	}
	rec := iterationRecord{
		Iteration: iteration,
		Timestamp: time.Now().UTC(),
		Worker:    tc.Worker.Name,
		Text:      truncate(resp.Text, 200),
		ToolCalls: names,
		Usage:     resp.Usage,
	}
	if err := workspace.AppendJSONL(filepath.Join(tc.Item.Dir, "log.jsonl"), rec); err != nil {
		tc.Logger.Log("executor: append log.jsonl for %s: %v", tc.Item.ID, err)
	}
}
