package coordinator

import (
	"context"
	"sync"
	"time"
)

// PauseController owns the coordinator's stop flag and wake signal. Stopping
// does not kill anything by itself; the loop sees the flag at its next
// suspension point, parks, and waits for a human message to resume.
type PauseController struct {
	mu      sync.Mutex
	stopped bool

	// wake carries at most one pending wake signal; extra wakes coalesce.
	wake chan struct{}
}

// NewPauseController creates a controller in the running state.
func NewPauseController() *PauseController {
	return &PauseController{wake: make(chan struct{}, 1)}
}

// Stop flags the coordinator to park at its next suspension point.
func (p *PauseController) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.Wake()
}

// Resume clears the stop flag and wakes the loop.
func (p *PauseController) Resume() {
	p.mu.Lock()
	p.stopped = false
	p.mu.Unlock()
	p.Wake()
}

// IsStopped reports whether a stop is pending or active.
func (p *PauseController) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Wake signals the loop that something happened (human message, worker
// completion). Signals coalesce; waking an awake loop is harmless.
func (p *PauseController) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// WaitForWake blocks until a wake signal, the timeout, or context
// cancellation. Returns true only for a real wake.
func (p *PauseController) WaitForWake(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.wake:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
