// Package coordinator runs the engine's brain: a turn-capped reasoning loop
// with the coordinator-only tool set, responsive to human messages, that
// decomposes the goal into work items and reacts as workers finish.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/metrics"
	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/scheduler"
	"github.com/conclave-ai/conclave/internal/tool"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Status is the coordinator's externally visible state.
type Status string

const (
	StatusWorking         Status = "working"
	StatusWaitingForHuman Status = "waiting_for_human"
	StatusCompleted       Status = "completed"
)

// Config tunes the coordinator loop. Zero values take the defaults used in
// production; tests shrink the waits.
type Config struct {
	Goal  string
	Mode  string // "finite" or "infinite"
	Model string

	// AgentCLICommand is the subprocess used when Model names an external
	// coding agent. Defaults to "claude".
	AgentCLICommand string

	MaxTurns            int           // default 200
	MaxTokens           int64         // default 4096
	BackoffBase         time.Duration // default 3s, doubled per consecutive failure
	BackoffMax          time.Duration // default 60s
	MaxConsecutiveFails int           // default 5
	FailurePause        time.Duration // default 5m wait for human after giving up
	HumanWait           time.Duration // default 60s idle wait for human input
	WorkerPoll          time.Duration // default 2s poll while executions run
}

func (c *Config) applyDefaults() {
	if c.AgentCLICommand == "" {
		c.AgentCLICommand = "claude"
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 200
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 3 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 60 * time.Second
	}
	if c.MaxConsecutiveFails <= 0 {
		c.MaxConsecutiveFails = 5
	}
	if c.FailurePause <= 0 {
		c.FailurePause = 5 * time.Minute
	}
	if c.HumanWait <= 0 {
		c.HumanWait = 60 * time.Second
	}
	if c.WorkerPoll <= 0 {
		c.WorkerPoll = 2 * time.Second
	}
}

// Coordinator drives the run. It owns the coordinator conversation; the
// board, pool, and buses arrive through the shared tool context.
type Coordinator struct {
	cfg      Config
	backend  provider.Provider
	registry *tool.Registry
	base     tool.Context
	sched    *scheduler.Scheduler
	conv     *Conversation
	pause    *PauseController

	mu       sync.Mutex
	status   Status
	finished bool

	turns []provider.Turn
}

// New creates a coordinator. backend may be nil when cfg.Model names an
// agent-cli coordinator.
func New(cfg Config, backend provider.Provider, registry *tool.Registry, base tool.Context, sched *scheduler.Scheduler, conv *Conversation) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:      cfg,
		backend:  backend,
		registry: registry,
		base:     base,
		sched:    sched,
		conv:     conv,
		pause:    NewPauseController(),
		status:   StatusWorking,
	}
}

// Status returns the coordinator's current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Coordinator) isFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

func (c *Coordinator) setFinished() {
	c.mu.Lock()
	c.finished = true
	c.status = StatusCompleted
	c.mu.Unlock()
}

// Stop parks the loop at its next suspension point. Workers in flight are
// the run's to cancel; the coordinator only stops talking.
func (c *Coordinator) Stop() {
	c.pause.Stop()
}

// Resume clears a pending stop.
func (c *Coordinator) Resume() {
	c.pause.Resume()
}

// NotifyHuman wakes the loop after a human message lands on the bus.
func (c *Coordinator) NotifyHuman() {
	c.pause.Wake()
}

// Wake wakes the loop without a human message (worker completion).
func (c *Coordinator) Wake() {
	c.pause.Wake()
}

// Run executes the coordinator loop until finish, turn exhaustion, or
// context cancellation. It never returns an error; failures degrade to
// waiting for the human.
func (c *Coordinator) Run(ctx context.Context) {
	c.setStatus(StatusWorking)
	c.base.Emit("run.started", map[string]any{"goal": c.cfg.Goal, "mode": c.cfg.Mode})

	if provider.IsAgentCLI(c.cfg.Model) {
		c.runAgentCLI(ctx)
		return
	}

	system := c.systemPrompt()
	tools := c.registry.CoordinatorTools()
	c.turns = []provider.Turn{provider.UserTurn("Your goal:\n\n" + c.cfg.Goal)}

	consecutiveFails := 0

	for turn := 0; turn < c.cfg.MaxTurns; turn++ {
		if c.isFinished() || ctx.Err() != nil {
			break
		}

		if c.pause.IsStopped() {
			c.waitWhileStopped(ctx)
			if c.isFinished() || ctx.Err() != nil {
				break
			}
		}

		c.yieldPoint()

		resp, err := c.backend.Generate(ctx, provider.Request{
			System:    system,
			Turns:     c.turns,
			Tools:     tools,
			MaxTokens: c.cfg.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			consecutiveFails++
			c.handleBackendFailure(ctx, err, &consecutiveFails)
			continue
		}
		consecutiveFails = 0
		metrics.CoordinatorTurns.Inc()

		c.turns = append(c.turns, provider.AssistantTurn(resp))
		if resp.Text != "" {
			c.base.Logger.Log("coordinator: %.200s", resp.Text)
			c.conv.Append("coordinator", resp.Text)
		}

		launched := false
		if len(resp.ToolCalls) > 0 {
			launched = c.dispatchAll(ctx, resp.ToolCalls)
		}

		if !c.isFinished() {
			c.waitForActivity(ctx, launched)
		}
	}

	if !c.isFinished() && ctx.Err() == nil {
		c.base.Logger.Log("coordinator: hit max turns (%d), forcing completion", c.cfg.MaxTurns)
		c.setFinished()
	}
	c.base.Emit("run.finished", map[string]any{"status": string(c.Status())})
}

// dispatchAll runs every tool call in the response and appends all results
// before any other turn can be injected; providers require results to
// immediately follow their calls. Returns true when a call implies newly
// schedulable work.
func (c *Coordinator) dispatchAll(ctx context.Context, calls []models.ToolCall) bool {
	results := make([]provider.ToolResult, 0, len(calls))
	needsTick := false

	for _, call := range calls {
		c.base.Emit("tool.called", map[string]any{"tool": call.Name, "source": "coordinator"})

		result := c.registry.Dispatch(ctx, call, &c.base)

		c.base.Emit("tool.result", map[string]any{"tool": call.Name, "result": excerpt(result, 200)})
		results = append(results, provider.ToolResult{
			CallID:  call.ID,
			Content: result,
			IsError: strings.HasPrefix(result, "Error:"),
		})

		switch call.Name {
		case "create_work_item", "spawn_worker", "assign_worker", "reconvene":
			needsTick = true
		}

		if call.Name == "finish" || strings.Contains(result, "AGENT_FINISHED") {
			c.setFinished()
		}
	}

	c.turns = append(c.turns, provider.ResultsTurn(results))

	// All results are on the conversation; safe to suspend.
	c.yieldPoint()
	if needsTick && !c.isFinished() {
		c.sched.Tick()
		return true
	}
	return false
}

// handleBackendFailure applies the escalating backoff: doubling sleeps up to
// the cap, and after the configured limit the coordinator parks and waits
// for a human before trying again.
func (c *Coordinator) handleBackendFailure(ctx context.Context, err error, consecutiveFails *int) {
	n := *consecutiveFails
	c.base.Logger.Log("coordinator: backend call failed (%d/%d): %v", n, c.cfg.MaxConsecutiveFails, err)
	c.base.Emit("tool.error", map[string]any{"error": err.Error(), "source": "coordinator"})

	if n >= c.cfg.MaxConsecutiveFails {
		c.setStatus(StatusWaitingForHuman)
		c.conv.Append("coordinator", fmt.Sprintf(
			"[Error] Backend failed %d times in a row. Pausing until you send a message. Last error: %v",
			c.cfg.MaxConsecutiveFails, err))
		c.pause.WaitForWake(ctx, c.cfg.FailurePause)
		*consecutiveFails = 0
		c.setStatus(StatusWorking)
		return
	}

	backoff := c.cfg.BackoffBase << (n - 1)
	if backoff > c.cfg.BackoffMax {
		backoff = c.cfg.BackoffMax
	}
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
	}
}

// waitWhileStopped injects a state summary and parks until the human says
// something.
func (c *Coordinator) waitWhileStopped(ctx context.Context) {
	c.turns = append(c.turns, provider.UserTurn(c.contextSummary()))
	c.base.Logger.Log("coordinator: stopped, waiting for human")
	c.setStatus(StatusWaitingForHuman)

	for !c.isFinished() && ctx.Err() == nil {
		woken := c.pause.WaitForWake(ctx, c.cfg.HumanWait)
		c.yieldPoint()
		if !c.pause.IsStopped() {
			break
		}
		if woken && (c.hasRecentHumanTurn() || c.base.Messages.HasMessages("coordinator")) {
			break
		}
	}

	c.pause.Resume()
	c.setStatus(StatusWorking)
	c.base.Logger.Log("coordinator: resumed after stop")
}

// hasRecentHumanTurn reports whether one of the last few turns came from the
// human.
func (c *Coordinator) hasRecentHumanTurn() bool {
	start := 0
	if len(c.turns) > 5 {
		start = len(c.turns) - 5
	}
	for _, t := range c.turns[start:] {
		if t.Role == "user" && strings.HasPrefix(t.Text, "[Human]") {
			return true
		}
	}
	return false
}

// waitForActivity parks until something changes so the loop never calls the
// backend twice on identical state. With executions in flight it polls for
// their completion; otherwise it waits for the human.
func (c *Coordinator) waitForActivity(ctx context.Context, launched bool) {
	if launched || c.sched.ActiveCount() > 0 {
		for c.sched.ActiveCount() > 0 && !c.isFinished() && ctx.Err() == nil {
			if c.pause.WaitForWake(ctx, c.cfg.WorkerPoll) {
				// Human message or completion wake; handle it now.
				break
			}
			c.yieldPoint()
			if c.base.Messages.HasMessages("coordinator") {
				break
			}
		}
		return
	}

	c.setStatus(StatusWaitingForHuman)
	c.pause.WaitForWake(ctx, c.cfg.HumanWait)
	if c.Status() == StatusWaitingForHuman {
		c.setStatus(StatusWorking)
	}
}

// yieldPoint drains the coordinator's mailboxes into the conversation:
// worker traffic and human messages delivered through the run.
func (c *Coordinator) yieldPoint() {
	for _, msg := range c.base.Messages.Receive("coordinator") {
		c.turns = append(c.turns, provider.UserTurn(fmt.Sprintf("[Message from %s]: %s", msg.From, msg.Content)))
		if msg.From != "human" {
			c.conv.AppendTo(msg.From, "coordinator", msg.Content)
		}
	}
	for _, msg := range c.base.Messages.Receive("human_to_coordinator") {
		c.turns = append(c.turns, provider.UserTurn("[Human]: "+msg.Content))
		c.pause.Wake()
	}
}

// contextSummary renders the board and team for the resumed-after-stop turn.
func (c *Coordinator) contextSummary() string {
	var b strings.Builder
	b.WriteString("[System] The user stopped execution. All workers have been halted.\n")
	b.WriteString("Here is the current state of work; use it to answer questions or continue.\n")

	items := c.base.Board.Items()
	if len(items) > 0 {
		b.WriteString("\n## Work Board\n")
		for _, item := range items {
			fmt.Fprintf(&b, "  [%s] %s: %.80s (%s)\n", statusIcon(item.Status), item.ID, item.Task, item.Status)
			if item.Result != "" {
				fmt.Fprintf(&b, "      Result: %.300s\n", item.Result)
			}
		}
	}

	workers := c.base.Pool.Workers()
	if len(workers) > 0 {
		b.WriteString("\n## Team\n")
		for _, w := range workers {
			fmt.Fprintf(&b, "  - %s (%s, %s): %s\n", w.Name, w.Role, w.Type, w.Status)
		}
	}

	b.WriteString("\nThe user may now give further instructions. Respond with full context of what was accomplished and what remains.")
	return b.String()
}

func statusIcon(s models.ItemStatus) string {
	switch s {
	case models.ItemStatusCompleted:
		return "+"
	case models.ItemStatusFailed:
		return "X"
	case models.ItemStatusRunning:
		return "~"
	case models.ItemStatusAssigned:
		return ">"
	default:
		return "."
	}
}

const defaultCoordinatorIdentity = `# You Are The Coordinator

You've been given a goal. Your job is to get it done: well, completely, and efficiently.

You can work alone on simple tasks or spawn a team of workers for complex ones.
Use create_work_item to define tasks, spawn_worker to create workers, and
assign_worker to connect them. Workers execute and publish results; use
check_board to monitor progress. When done, call finish() with a summary.`

const coordinatorOperatingRules = `## Operating Rules

You are the COORDINATOR, a responsive manager, NOT a worker.

### Responsiveness
- Always respond to human messages immediately with context-aware replies.
- Never do heavy work yourself. Delegate to workers.
- Your main job: triage requests, plan work, spawn workers, monitor progress, report to the human.
- When the human asks a question, answer it from your existing context.
- When the human gives a new task, create work items and assign workers.

### Delegation
- For ANY task that requires reading files, writing code, searching, or analysis: create a work item and spawn a worker.
- Give workers clear, specific specs. Not "look into this" but "produce a 500-word analysis of X".
- After workers complete, use reconvene to assess results and plan next steps.
- Only use tools directly for quick checks (check_board, send_message).

### Communication
- Keep the human informed. Summarize worker progress.
- When asked "what's happening?", report the current board state.
- Write important findings to files. Your conversation may be compacted.
- When the goal is met, call finish().`

// systemPrompt assembles identity, goal, date, mode, memory, and the
// operating rules.
func (c *Coordinator) systemPrompt() string {
	sections := []string{c.identitySection()}

	sections = append(sections, "## Goal\n\n"+c.cfg.Goal)
	sections = append(sections, "Today is "+time.Now().Format("2006-01-02"))

	if c.cfg.Mode == "infinite" {
		sections = append(sections, "## Mode: Infinite Game\n\n"+
			"This is an ongoing mission. Work in cycles. Checkpoint between them. Never conclude; keep going.")
	} else {
		sections = append(sections, "## Mode: Finite Game\n\n"+
			"Work until the goal is fully achieved, then call finish().")
	}

	if c.base.Workspace != nil {
		if data, err := os.ReadFile(filepath.Join(c.base.Workspace.Root, "MEMORY.md")); err == nil {
			if mem := strings.TrimSpace(string(data)); mem != "" {
				sections = append(sections, "## Your Memory\n\n"+mem)
			}
		}
	}

	sections = append(sections, coordinatorOperatingRules)
	return strings.Join(sections, "\n\n---\n\n")
}

func (c *Coordinator) identitySection() string {
	if c.base.Workspace != nil {
		if data, err := os.ReadFile(filepath.Join(c.base.Workspace.Root, "SOUL.md")); err == nil {
			if soul := strings.TrimSpace(string(data)); soul != "" {
				return soul
			}
		}
	}
	return defaultCoordinatorIdentity
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
