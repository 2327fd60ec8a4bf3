// Package scheduler matches ready work items to idle workers and owns the
// lifetime of each in-flight execution.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/board"
	"github.com/conclave-ai/conclave/internal/bus"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/metrics"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Launcher runs one item on one worker and returns its result text. The
// launcher owns the item's terminal status on its own failure paths; if it
// returns without having moved the item to a terminal status, the scheduler
// completes it with the returned result.
type Launcher func(ctx context.Context, worker *models.Worker, item *models.WorkItem) (string, error)

// Scheduler drives the board. Tick is safe to call from any goroutine; each
// completed execution re-ticks so dependent items run without an external
// poller.
type Scheduler struct {
	board  *board.Board
	pool   *board.Pool
	launch Launcher
	events *bus.EventBus
	logger *logging.RunLogger

	// tickMu serializes Tick so two concurrent ticks cannot double-launch
	// the same item.
	tickMu sync.Mutex

	mu      sync.Mutex
	running map[string]struct{}
	baseCtx context.Context
	wg      sync.WaitGroup
}

// New creates a scheduler. ctx bounds every execution it launches; cancelling
// it cancels all in-flight work.
func New(ctx context.Context, b *board.Board, p *board.Pool, launch Launcher, events *bus.EventBus, logger *logging.RunLogger) *Scheduler {
	return &Scheduler{
		board:   b,
		pool:    p,
		launch:  launch,
		events:  events,
		logger:  logger,
		running: make(map[string]struct{}),
		baseCtx: ctx,
	}
}

// Tick scans ready items and launches them onto dispatchable workers: a
// pre-assigned worker is honored if the pool offers it, otherwise the first
// offered worker is taken. Stops as soon as the pool offers nothing, which is
// also how Pool.MaxConcurrent bounds launches.
func (s *Scheduler) Tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	idle := s.pool.Idle()

	for _, item := range s.board.ReadyItems() {
		if len(idle) == 0 {
			break
		}

		if item.AssignedWorker != "" {
			if worker := take(&idle, item.AssignedWorker); worker != nil {
				s.start(item, worker)
			}
			continue
		}

		worker := idle[0]
		idle = idle[1:]
		s.start(item, worker)
	}
}

// take removes and returns the worker with the given id, or nil if absent.
func take(workers *[]*models.Worker, id string) *models.Worker {
	for i, w := range *workers {
		if w.ID == id {
			*workers = append((*workers)[:i], (*workers)[i+1:]...)
			return w
		}
	}
	return nil
}

func (s *Scheduler) start(item *models.WorkItem, worker *models.Worker) {
	if err := s.board.Assign(item.ID, worker.ID); err != nil {
		s.logger.Log("scheduler: assign %s to %s: %v", item.ID, worker.Name, err)
		return
	}
	s.pool.SetStatus(worker.ID, models.WorkerStatusBusy)

	s.mu.Lock()
	s.running[item.ID] = struct{}{}
	s.mu.Unlock()
	metrics.ExecutionsActive.Inc()

	s.logger.Log("scheduler: launching %s on item %s: %.60s", worker.Name, item.ID, item.Task)
	if s.events != nil {
		s.events.Publish("item.launched", "", map[string]any{
			"item_id":     item.ID,
			"worker_id":   worker.ID,
			"worker_name": worker.Name,
		})
	}

	s.wg.Add(1)
	go s.executeAndCleanup(item, worker)
}

func (s *Scheduler) executeAndCleanup(item *models.WorkItem, worker *models.Worker) {
	defer s.wg.Done()
	start := time.Now()

	result, err := s.launch(s.baseCtx, worker, item)

	// The launcher handles its own failure protocol; only fill in a terminal
	// status it did not set.
	status, known := s.board.StatusOf(item.ID)
	switch {
	case known && status.Terminal():
		// Already settled by the executor (publish, failure report, cancel).
	case err != nil:
		s.board.Fail(item.ID, "Execution error: "+err.Error())
		s.logger.Log("scheduler: item %s failed: %v", item.ID, err)
	default:
		if cerr := s.board.Complete(item.ID, result); cerr != nil {
			s.logger.Log("scheduler: complete %s: %v", item.ID, cerr)
		}
	}

	if final, ok := s.board.StatusOf(item.ID); ok {
		metrics.ExecutionDuration.WithLabelValues(string(final)).Observe(time.Since(start).Seconds())
		if final == models.ItemStatusFailed {
			metrics.ItemsTotal.WithLabelValues("failed").Inc()
		}
	}

	s.pool.Release(worker.ID)

	s.mu.Lock()
	delete(s.running, item.ID)
	s.mu.Unlock()
	metrics.ExecutionsActive.Dec()

	// Recursive wake: completion may have made dependents ready.
	s.Tick()
}

// ActiveCount returns the number of executions in flight.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// IsStageComplete reports whether every named item is terminal. Unknown ids
// count as complete.
func (s *Scheduler) IsStageComplete(itemIDs []string) bool {
	for _, id := range itemIDs {
		if status, ok := s.board.StatusOf(id); ok && !status.Terminal() {
			return false
		}
	}
	return true
}

// WaitForItems blocks until every named item is terminal or the timeout
// elapses. A timeout logs a warning and returns false rather than erroring;
// stage contracts bound wall-clock time, they do not abort work.
func (s *Scheduler) WaitForItems(ctx context.Context, itemIDs []string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for !s.IsStageComplete(itemIDs) {
		if time.Now().After(deadline) {
			s.logger.Log("scheduler: timeout waiting for items %v", itemIDs)
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// Wait blocks until every launched execution has cleaned up. Used on run
// shutdown after cancelling the base context.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
