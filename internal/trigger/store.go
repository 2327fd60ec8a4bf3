// Package trigger holds scheduled future actions for a run and the evaluator
// that fires them.
package trigger

import (
	"sync"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Store is the mutex-guarded list of a run's triggers.
type Store struct {
	mu       sync.Mutex
	triggers []*models.Trigger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add registers a trigger, defaulting its status to active.
func (s *Store) Add(t *models.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Status == "" {
		t.Status = models.TriggerStatusActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.triggers = append(s.triggers, t)
}

// Get returns the trigger with the given id, or nil.
func (s *Store) Get(id string) *models.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.triggers {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Active returns the triggers currently in active status.
func (s *Store) Active() []*models.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Trigger
	for _, t := range s.triggers {
		if t.Status == models.TriggerStatusActive {
			out = append(out, t)
		}
	}
	return out
}

// Cancel expires the trigger with the given id. It reports whether the id was
// found.
func (s *Store) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.triggers {
		if t.ID == id {
			t.Status = models.TriggerStatusExpired
			return true
		}
	}
	return false
}

// SetStatus updates a trigger's status.
func (s *Store) SetStatus(id string, status models.TriggerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.triggers {
		if t.ID == id {
			t.Status = status
			return
		}
	}
}

// All returns a snapshot of every trigger.
func (s *Store) All() []*models.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Trigger(nil), s.triggers...)
}
