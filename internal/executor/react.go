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
	"github.com/conclave-ai/conclave/pkg/models"
)

const backendRetryDelay = 2 * time.Second

const workerOperatingRules = `## Operating Rules

1. Work only inside your item workspace. Draft everything in scratch/.
2. Use your tools to act. Never claim work you did not actually do.
3. When the task is done, call publish with a concise summary of what you
   produced. Publishing is the only way to finish successfully.
4. If you are blocked or the task is unclear, send_message the coordinator
   instead of guessing.
5. Other workers may message you mid-task; their messages appear in your
   conversation. Use check_messages if you expect an input that has not
   arrived yet.`

// ReactExecutor drives a worker through an in-process reasoning loop: call
// the backend, dispatch the requested tools, feed the results back, repeat
// until the worker publishes or the iteration budget runs out.
type ReactExecutor struct {
	backend   provider.Provider
	registry  *tool.Registry
	base      tool.Context
	maxTokens int64
}

// NewReact creates a react executor. base carries the run-scoped context;
// each execution gets a copy bound to its worker and item.
func NewReact(backend provider.Provider, registry *tool.Registry, base tool.Context) *ReactExecutor {
	return &ReactExecutor{
		backend:   backend,
		registry:  registry,
		base:      base,
		maxTokens: 8192,
	}
}

// backendError records both attempts of a failed backend call.
type backendError struct {
	First error
	Final error
}

func (e *backendError) Error() string {
	return e.Final.Error()
}

// Execute runs the item to a terminal status. It always settles the item
// itself (publish, failure report, or cancellation) and returns the item's
// result text on success.
func (e *ReactExecutor) Execute(ctx context.Context, worker *models.Worker, item *models.WorkItem) (string, error) {
	tc := scopedContext(e.base, worker, item)
	markStarted(tc)

	system := e.systemPrompt(worker)
	tools := e.registry.WorkerTools()
	turns := []provider.Turn{provider.UserTurn(initialMessage(tc))}

	maxIter := worker.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	for i := 1; i <= maxIter; i++ {
		if ctx.Err() != nil {
			cancelExecution(tc)
			return "", nil
		}

		turns = append(turns, drainMailbox(tc)...)

		resp, berr := e.generate(ctx, provider.Request{
			System:    system,
			Turns:     turns,
			Tools:     tools,
			MaxTokens: e.maxTokens,
		})
		if berr != nil {
			if ctx.Err() != nil {
				cancelExecution(tc)
				return "", nil
			}
			notes := failureNotes(tc, berr.First, berr.Final, turns)
			reportFailure(tc, "Backend error: "+berr.Final.Error(), notes)
			return "", nil
		}

		logIteration(tc, i, resp)
		if resp.Text != "" {
			tc.Emit("worker.message", map[string]any{
				"worker_name": worker.Name,
				"item_id":     item.ID,
				"text":        truncate(resp.Text, 300),
			})
		}
		turns = append(turns, provider.AssistantTurn(resp))

		if resp.Empty() {
			// The model returned nothing to say and nothing to do; looping
			// again would just replay the same context.
			notes := failureNotes(tc, nil, nil, turns)
			reportFailure(tc, "Worker produced an empty response without publishing.", notes)
			return "", nil
		}

		if len(resp.ToolCalls) > 0 {
			results := make([]provider.ToolResult, 0, len(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				out := e.registry.Dispatch(ctx, call, tc)
				results = append(results, provider.ToolResult{
					CallID:  call.ID,
					Content: out,
					IsError: strings.HasPrefix(out, "Error:"),
				})
			}
			turns = append(turns, provider.ResultsTurn(results))

			if current := tc.Board.Get(item.ID); current != nil && current.Status.Terminal() {
				// publish settled the item; the mailbox drain and release
				// already happened inside the tool.
				if current.Status == models.ItemStatusCompleted {
					return current.Result, nil
				}
				return "", nil
			}
			continue
		}

		if strings.Contains(resp.Text, "AGENT_FINISHED") {
			result := strings.TrimSpace(resp.Text)
			if err := completeWithResult(tc, result); err != nil {
				tc.Logger.Log("executor: complete %s: %v", item.ID, err)
			}
			return result, nil
		}
	}

	reason := fmt.Sprintf("Max iterations (%d) reached without publishing.", maxIter)
	notes := failureNotes(tc, nil, nil, turns)
	reportFailure(tc, reason, notes)
	return "", nil
}

// generate performs one backend call with a single retry after a short
// delay. Both errors travel together so the failure notes can show them.
func (e *ReactExecutor) generate(ctx context.Context, req provider.Request) (*models.ModelResponse, *backendError) {
	resp, first := e.backend.Generate(ctx, req)
	if first == nil {
		return resp, nil
	}
	e.base.Logger.Log("executor: backend call failed, retrying in %s: %v", backendRetryDelay, first)

	select {
	case <-time.After(backendRetryDelay):
	case <-ctx.Done():
		return nil, &backendError{First: first, Final: ctx.Err()}
	}

	resp, final := e.backend.Generate(ctx, req)
	if final == nil {
		return resp, nil
	}
	return nil, &backendError{First: first, Final: final}
}

// systemPrompt assembles the worker's identity, accumulated memory, and the
// operating rules.
func (e *ReactExecutor) systemPrompt(worker *models.Worker) string {
	parts := []string{e.identity(worker)}

	if worker.Dir != "" {
		if data, err := os.ReadFile(filepath.Join(worker.Dir, "MEMORY.md")); err == nil {
			if mem := strings.TrimSpace(string(data)); mem != "" {
				parts = append(parts, "## Your Memory (From Past Work)\n\n"+mem)
			}
		}
	}

	parts = append(parts, workerOperatingRules)
	return strings.Join(parts, "\n\n---\n\n")
}

func (e *ReactExecutor) identity(worker *models.Worker) string {
	if worker.Dir != "" {
		if data, err := os.ReadFile(filepath.Join(worker.Dir, "identity.md")); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	return fmt.Sprintf("You are %s, a %s.", worker.Name, worker.Role)
}

// failureNotes builds the notes persisted beside a failed item: the task,
// the backend errors when there were any, and the tail of the transcript.
func failureNotes(tc *tool.Context, first, final error, turns []provider.Turn) string {
	var b strings.Builder
	b.WriteString("# Failure Notes\n\n")
	b.WriteString("Task: " + truncate(tc.Item.Task, 500) + "\n")

	if first != nil {
		b.WriteString("\nFirst error: " + first.Error() + "\n")
	}
	if final != nil {
		b.WriteString("Final error: " + final.Error() + "\n")
	}

	b.WriteString("\n## Recent Transcript\n")
	start := 0
	if len(turns) > 6 {
		start = len(turns) - 6
	}
	for _, t := range turns[start:] {
		text := t.Text
		if text == "" && len(t.ToolResults) > 0 {
			text = fmt.Sprintf("[%d tool results]", len(t.ToolResults))
		}
		for _, c := range t.ToolCalls {
			text += fmt.Sprintf(" [called %s]", c.Name)
		}
		b.WriteString(fmt.Sprintf("- %s: %s\n", t.Role, truncate(strings.TrimSpace(text), 300)))
	}

	return truncate(b.String(), maxFailureNotes)
}
