// Package run assembles one engine run: the workspace, board, worker pool,
// buses, tool registry, trigger evaluator, executors, scheduler, and
// coordinator, behind the control surface the CLI and HTTP server use.
package run

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/board"
	"github.com/conclave-ai/conclave/internal/bus"
	"github.com/conclave-ai/conclave/internal/coordinator"
	"github.com/conclave-ai/conclave/internal/exec"
	"github.com/conclave-ai/conclave/internal/executor"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/metrics"
	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/scheduler"
	"github.com/conclave-ai/conclave/internal/state"
	"github.com/conclave-ai/conclave/internal/tool"
	"github.com/conclave-ai/conclave/internal/trigger"
	"github.com/conclave-ai/conclave/internal/workspace"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Options configures a run.
type Options struct {
	ID   string // generated when empty
	Goal string
	Mode string // "finite" (default) or "infinite"

	WorkspaceDir     string
	CoordinatorModel string
	AgentCLICommand  string

	// Backend overrides the provider built from CoordinatorModel; tests use
	// it to script responses.
	Backend      provider.Provider
	ProviderOpts provider.Options

	// Coordinator carries loop tuning; Goal, Mode, and Model are filled in
	// from the options above.
	Coordinator coordinator.Config

	// HumanTimeout bounds how long a worker's ask_human blocks.
	HumanTimeout time.Duration

	SearchProvider string
	BraveAPIKey    string
	SerperAPIKey   string

	// State, when set, persists the run for `conclave status`.
	State *state.DB

	MaxWorkers int

	// Workers seeds the pool with a predefined team; the coordinator can
	// still spawn more.
	Workers []*models.Worker
}

// Run is one live engine run.
type Run struct {
	ID   string
	Goal string
	Mode string

	ws       *workspace.Workspace
	runDir   string
	board    *board.Board
	pool     *board.Pool
	messages *bus.MessageBus
	events   *bus.EventBus
	registry *tool.Registry
	triggers *trigger.Store
	eval     *trigger.Evaluator
	logger   *logging.RunLogger
	conv     *coordinator.Conversation
	coord    *coordinator.Coordinator
	sched    *scheduler.Scheduler
	router   *executor.Router
	store    *state.DB

	humanResponses chan string

	ctx    context.Context
	cancel context.CancelFunc

	// execCtx bounds in-flight item executions separately from the run so
	// Stop can halt workers while the coordinator stays alive.
	execMu     sync.Mutex
	execCtx    context.Context
	execCancel context.CancelFunc

	wg   sync.WaitGroup
	done chan struct{}
}

// New builds a run. Nothing executes until Start.
func New(opts Options) (*Run, error) {
	if opts.Goal == "" {
		return nil, fmt.Errorf("a run needs a goal")
	}
	if opts.ID == "" {
		opts.ID = models.NewID()
	}
	if opts.Mode == "" {
		opts.Mode = "finite"
	}
	if opts.CoordinatorModel == "" {
		opts.CoordinatorModel = "anthropic/claude-sonnet-4-5"
	}
	if opts.HumanTimeout <= 0 {
		opts.HumanTimeout = 5 * time.Minute
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = "."
	}

	ws := workspace.New(opts.WorkspaceDir)
	if err := ws.Init(opts.Goal); err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}
	runDir, err := ws.RunDir(opts.ID)
	if err != nil {
		return nil, fmt.Errorf("init run dir: %w", err)
	}

	logger := logging.NewRunLoggerForDir(runDir)

	backend := opts.Backend
	if backend == nil && !provider.IsAgentCLI(opts.CoordinatorModel) {
		backend, err = provider.New(opts.CoordinatorModel, opts.ProviderOpts)
		if err != nil {
			return nil, err
		}
	}

	registry, err := tool.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	r := &Run{
		ID:             opts.ID,
		Goal:           opts.Goal,
		Mode:           opts.Mode,
		ws:             ws,
		runDir:         runDir,
		board:          board.New(),
		pool:           board.NewPool(opts.MaxWorkers),
		messages:       bus.NewMessageBus(ws.MessageLogPath(opts.ID)),
		events:         bus.NewEventBus(ws.EventLogPath(opts.ID)),
		registry:       registry,
		triggers:       trigger.NewStore(),
		logger:         logger,
		conv:           coordinator.NewConversation(ws.ConversationLogPath(opts.ID)),
		store:          opts.State,
		humanResponses: make(chan string, 4),
		done:           make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.execCtx, r.execCancel = context.WithCancel(r.ctx)

	r.messages.Register("coordinator")
	r.messages.Register("human")

	base := tool.Context{
		RunID:          r.ID,
		RunDir:         runDir,
		Workspace:      ws,
		Board:          r.board,
		Pool:           r.pool,
		Messages:       r.messages,
		Events:         r.events,
		Triggers:       r.triggers,
		Runner:         exec.NewRunner(),
		Logger:         logger,
		HumanResponses: r.humanResponses,
		HumanTimeout:   opts.HumanTimeout,
		DefaultModel:   opts.CoordinatorModel,
		SearchProvider: opts.SearchProvider,
		BraveAPIKey:    opts.BraveAPIKey,
		SerperAPIKey:   opts.SerperAPIKey,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
	}

	r.sched = scheduler.New(r.ctx, r.board, r.pool, r.launch, r.events, logger)
	base.Ticker = r.sched.Tick

	r.router = &executor.Router{
		AgentCLI:   executor.NewAgentCLI(base, opts.AgentCLICommand),
		FileBridge: executor.NewFileBridge(base),
	}
	if backend != nil {
		r.router.React = executor.NewReact(backend, registry, base)
	}

	cfg := opts.Coordinator
	cfg.Goal = opts.Goal
	cfg.Mode = opts.Mode
	cfg.Model = opts.CoordinatorModel
	cfg.AgentCLICommand = opts.AgentCLICommand
	r.coord = coordinator.New(cfg, backend, registry, base, r.sched, r.conv)

	r.eval = trigger.NewEvaluator(r.triggers, r.fireTrigger)

	for _, w := range opts.Workers {
		if err := r.seedWorker(w); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// seedWorker adds a pre-configured team member to the pool before the
// coordinator's first turn.
func (r *Run) seedWorker(w *models.Worker) error {
	if err := r.ws.InitWorkerDir(r.ID, w); err != nil {
		return fmt.Errorf("seed worker %s: %w", w.Name, err)
	}
	identity := fmt.Sprintf("# %s\n\n%s\n", w.Name, w.Role)
	if err := os.WriteFile(filepath.Join(w.Dir, "identity.md"), []byte(identity), 0644); err != nil {
		return fmt.Errorf("seed worker %s: %w", w.Name, err)
	}
	if err := r.pool.Add(w); err != nil {
		return fmt.Errorf("seed worker %s: %w", w.Name, err)
	}
	r.messages.Register(w.Name)
	r.events.Publish("worker.spawned", r.ID, map[string]any{"worker_id": w.ID, "name": w.Name, "role": w.Role})
	return nil
}

// launch satisfies the scheduler's Launcher using the run's current
// execution context, which Stop can cancel independently.
func (r *Run) launch(_ context.Context, w *models.Worker, item *models.WorkItem) (string, error) {
	r.execMu.Lock()
	ctx := r.execCtx
	r.execMu.Unlock()
	return r.router.Execute(ctx, w, item)
}

// fireTrigger delivers a fired trigger as a coordinator wake message.
func (r *Run) fireTrigger(t *models.Trigger, action string) {
	r.messages.Send("trigger", "coordinator", fmt.Sprintf("[Trigger %s fired] %s", t.Kind, action))
	r.events.Publish("trigger.fired", r.ID, map[string]any{"trigger_id": t.ID, "kind": string(t.Kind)})
	r.coord.Wake()
}

// Start launches the coordinator, trigger evaluator, and bookkeeping
// goroutines. It returns immediately; use Wait for completion.
func (r *Run) Start() {
	metrics.RunsActive.Inc()
	r.persistStart()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.eval.Run(r.ctx)
	}()

	r.wg.Add(1)
	go r.watchEvents()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.done)
		r.coord.Run(r.ctx)
		r.sched.Wait()
		r.persistFinish()
		metrics.RunsActive.Dec()
		metrics.RunsTotal.WithLabelValues(string(r.coord.Status())).Inc()
	}()
}

// watchEvents wakes the coordinator on execution lifecycle events and keeps
// the persisted snapshot fresh.
func (r *Run) watchEvents() {
	defer r.wg.Done()
	id, ch := r.events.Subscribe()
	defer r.events.Unsubscribe(id)

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case "item.completed", "item.failed", "item.cancelled":
				r.coord.Wake()
				r.persistSnapshot()
			case "worker.spawned", "item.created":
				r.persistSnapshot()
			}
		}
	}
}

// Wait blocks until the coordinator loop has finished and every execution
// has settled, or the context expires.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessage delivers a human message to the coordinator and wakes it.
func (r *Run) SendMessage(content string) {
	r.conv.Append("human", content)
	r.messages.Send("human", "human_to_coordinator", content)
	r.coord.NotifyHuman()
}

// RespondToQuestion answers a pending ask_human. There is one shared
// response channel per run, so with several questions outstanding the
// earliest blocked worker takes the next answer.
func (r *Run) RespondToQuestion(answer string) error {
	select {
	case r.humanResponses <- answer:
		r.events.Publish("human.answered", r.ID, map[string]any{"answer_len": len(answer)})
		return nil
	default:
		return fmt.Errorf("response queue is full")
	}
}

// Stop halts in-flight executions and parks the coordinator until a human
// message arrives.
func (r *Run) Stop() {
	r.execMu.Lock()
	r.execCancel()
	r.execMu.Unlock()
	r.coord.Stop()
	r.events.Publish("run.stopped", r.ID, nil)
	r.persistSnapshot()
}

// Resume re-arms execution after a Stop.
func (r *Run) Resume() {
	r.execMu.Lock()
	r.execCtx, r.execCancel = context.WithCancel(r.ctx)
	r.execMu.Unlock()
	r.coord.Resume()
	r.events.Publish("run.resumed", r.ID, nil)
}

// Shutdown cancels everything and waits for the goroutines to exit.
func (r *Run) Shutdown() {
	r.cancel()
	r.wg.Wait()
	r.logger.Close()
}

// Status reports the run's externally visible state.
func (r *Run) Status() coordinator.Status {
	return r.coord.Status()
}

// Items returns the board contents.
func (r *Run) Items() []*models.WorkItem {
	return r.board.Items()
}

// Workers returns the pool contents.
func (r *Run) Workers() []*models.Worker {
	return r.pool.Workers()
}

// Events returns a page of recent events.
func (r *Run) Events(limit, offset int) []models.Event {
	return r.events.Recent(limit, offset)
}

// Conversation returns the human-facing conversation log.
func (r *Run) Conversation() []coordinator.ConversationEntry {
	return r.conv.Entries()
}

// Subscribe attaches a live event listener (WebSocket feed).
func (r *Run) Subscribe() (int, <-chan models.Event) {
	return r.events.Subscribe()
}

// Unsubscribe detaches a live event listener.
func (r *Run) Unsubscribe(id int) {
	r.events.Unsubscribe(id)
}

func (r *Run) persistStart() {
	if r.store == nil {
		return
	}
	err := r.store.CreateRun(&state.RunRecord{
		ID:        r.ID,
		Goal:      r.Goal,
		Mode:      r.Mode,
		Status:    string(coordinator.StatusWorking),
		StartedAt: time.Now(),
	})
	if err != nil {
		r.logger.Log("run: persist start: %v", err)
	}
}

func (r *Run) persistSnapshot() {
	if r.store == nil {
		return
	}
	if err := r.store.Snapshot(r.ID, r.board.Items(), r.pool.Workers()); err != nil {
		r.logger.Log("run: persist snapshot: %v", err)
	}
}

func (r *Run) persistFinish() {
	if r.store == nil {
		return
	}
	r.persistSnapshot()
	if err := r.store.UpdateRunStatus(r.ID, string(r.coord.Status())); err != nil {
		r.logger.Log("run: persist finish: %v", err)
	}
}
