package board

import (
	"fmt"
	"sync"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Pool is the keyed collection of workers for a run.
type Pool struct {
	mu      sync.RWMutex
	workers map[string]*models.Worker
	order   []string

	// MaxConcurrent caps simultaneously active workers; once reached, Idle
	// stops offering workers for dispatch. Zero means no cap.
	MaxConcurrent int
}

// NewPool creates an empty worker pool.
func NewPool(maxConcurrent int) *Pool {
	return &Pool{
		workers:       make(map[string]*models.Worker),
		MaxConcurrent: maxConcurrent,
	}
}

// Add registers a worker. Workers are never removed, only stopped.
func (p *Pool) Add(w *models.Worker) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w.ID == "" {
		return fmt.Errorf("worker has no id")
	}
	if _, exists := p.workers[w.ID]; exists {
		return fmt.Errorf("worker %s already in pool", w.ID)
	}
	if w.Status == "" {
		w.Status = models.WorkerStatusIdle
	}
	p.workers[w.ID] = w
	p.order = append(p.order, w.ID)
	return nil
}

// Get returns a snapshot copy of the worker for an ID, or nil if not found.
func (p *Pool) Get(id string) *models.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return snapshotWorker(p.workers[id])
}

// GetByName returns a snapshot copy of the worker with the given display
// name, or nil.
func (p *Pool) GetByName(name string) *models.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range p.order {
		if p.workers[id].Name == name {
			return snapshotWorker(p.workers[id])
		}
	}
	return nil
}

// Idle returns snapshot copies of the workers available for dispatch, in
// registration order. When MaxConcurrent is set, the list is trimmed so that
// launching everything it returns keeps the active count at or below the cap.
func (p *Pool) Idle() []*models.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	budget := -1
	if p.MaxConcurrent > 0 {
		active := 0
		for _, w := range p.workers {
			if w.Status == models.WorkerStatusBusy || w.Status == models.WorkerStatusWaitingForHuman {
				active++
			}
		}
		budget = p.MaxConcurrent - active
		if budget < 0 {
			budget = 0
		}
	}

	var idle []*models.Worker
	for _, id := range p.order {
		if budget == 0 {
			break
		}
		if p.workers[id].Status == models.WorkerStatusIdle {
			idle = append(idle, snapshotWorker(p.workers[id]))
			if budget > 0 {
				budget--
			}
		}
	}
	return idle
}

// SetStatus updates a worker's status.
func (p *Pool) SetStatus(id string, status models.WorkerStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[id]
	if !ok {
		return fmt.Errorf("worker %s not found", id)
	}
	w.Status = status
	return nil
}

// Release returns a busy or waiting worker to idle. Stopped workers stay
// stopped. Used by executors on every exit path so cancellation never leaves
// a worker stuck busy.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[id]
	if !ok || w.Status == models.WorkerStatusStopped {
		return
	}
	w.Status = models.WorkerStatusIdle
}

// Workers returns snapshot copies of all workers in registration order.
func (p *Pool) Workers() []*models.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.Worker, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, snapshotWorker(p.workers[id]))
	}
	return out
}

// View returns a value snapshot of the whole pool, in registration order.
func (p *Pool) View() []models.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Worker, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.workers[id])
	}
	return out
}

func snapshotWorker(w *models.Worker) *models.Worker {
	if w == nil {
		return nil
	}
	copied := *w
	return &copied
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}
