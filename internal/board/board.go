// Package board maintains the run's two keyed collections: the work board of
// items with dependency-based readiness, and the worker pool. All mutation of
// items and workers goes through these collections; callers never write
// struct fields of shared items directly.
package board

import (
	"fmt"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Board is the keyed collection of work items plus the ordered stage list.
// Readiness is recomputed on demand; boards are small (tens to low hundreds
// of items), so the O(items × deps) scan is fine.
type Board struct {
	mu     sync.RWMutex
	items  map[string]*models.WorkItem
	order  []string
	stages []*models.Stage
}

// New creates an empty board.
func New() *Board {
	return &Board{
		items: make(map[string]*models.WorkItem),
	}
}

// Add registers an item on the board. Dependencies must reference items that
// already exist; an unknown dependency is an error. Cycles are NOT rejected
// here; see HasCycle.
func (b *Board) Add(item *models.WorkItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if item.ID == "" {
		return fmt.Errorf("item has no id")
	}
	if _, exists := b.items[item.ID]; exists {
		return fmt.Errorf("item %s already on board", item.ID)
	}
	for _, dep := range item.Dependencies {
		if _, ok := b.items[dep]; !ok {
			return fmt.Errorf("item %s depends on unknown item %s", item.ID, dep)
		}
	}
	if item.Status == "" {
		item.Status = models.ItemStatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	b.items[item.ID] = item
	b.order = append(b.order, item.ID)
	return nil
}

// Get returns a snapshot copy of the item for an ID, or nil if not found.
// Copies keep readers off the live structs, which only the board's own
// methods may touch.
func (b *Board) Get(id string) *models.WorkItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return snapshotItem(b.items[id])
}

// StatusOf returns the item's current status. The second return is false for
// an unknown id.
func (b *Board) StatusOf(id string) (models.ItemStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	item, ok := b.items[id]
	if !ok {
		return "", false
	}
	return item.Status, true
}

// ReadyItems returns snapshot copies of all pending items whose every
// dependency resolves to a completed item, in insertion order.
func (b *Board) ReadyItems() []*models.WorkItem {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ready []*models.WorkItem
	for _, id := range b.order {
		item := b.items[id]
		if item.Status != models.ItemStatusPending {
			continue
		}
		met := true
		for _, dep := range item.Dependencies {
			d, ok := b.items[dep]
			if !ok || d.Status != models.ItemStatusCompleted {
				met = false
				break
			}
		}
		if met {
			ready = append(ready, snapshotItem(item))
		}
	}
	return ready
}

// SetPreferredWorker records which worker an item should run on without
// advancing its status. The scheduler honors the preference at launch time if
// that worker is idle.
func (b *Board) SetPreferredWorker(itemID, workerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[itemID]
	if !ok {
		return fmt.Errorf("item %s not found", itemID)
	}
	if item.Status.Terminal() {
		return fmt.Errorf("item %s is already %s", itemID, item.Status)
	}
	item.AssignedWorker = workerID
	return nil
}

// Assign records a worker on an item and moves it to assigned.
func (b *Board) Assign(itemID, workerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[itemID]
	if !ok {
		return fmt.Errorf("item %s not found", itemID)
	}
	if item.Status.Terminal() {
		return fmt.Errorf("item %s is already %s", itemID, item.Status)
	}
	item.AssignedWorker = workerID
	item.Status = models.ItemStatusAssigned
	return nil
}

// SetStatus advances an item's status. Only forward transitions are allowed
// (pending→assigned→running→terminal); use Fail to force a terminal state on
// cancellation.
func (b *Board) SetStatus(itemID string, status models.ItemStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[itemID]
	if !ok {
		return fmt.Errorf("item %s not found", itemID)
	}
	if !statusAdvances(item.Status, status) {
		return fmt.Errorf("item %s: invalid transition %s → %s", itemID, item.Status, status)
	}
	item.Status = status
	return nil
}

// Complete marks an item completed with its result text.
func (b *Board) Complete(itemID, result string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[itemID]
	if !ok {
		return fmt.Errorf("item %s not found", itemID)
	}
	if item.Status == models.ItemStatusFailed {
		return fmt.Errorf("item %s already failed", itemID)
	}
	item.Status = models.ItemStatusCompleted
	item.Result = result
	return nil
}

// Fail forces an item to failed from any non-terminal state, recording the
// reason as its result. Failing an already-terminal item is a no-op so that
// cancellation never fights a racing completion.
func (b *Board) Fail(itemID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[itemID]
	if !ok || item.Status.Terminal() {
		return
	}
	item.Status = models.ItemStatusFailed
	item.Result = reason
}

// AddChild links a child item to its parent.
func (b *Board) AddChild(parentID, childID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, ok := b.items[parentID]
	if !ok {
		return
	}
	parent.Children = append(parent.Children, childID)
}

// Items returns snapshot copies of all items in insertion order.
func (b *Board) Items() []*models.WorkItem {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*models.WorkItem, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, snapshotItem(b.items[id]))
	}
	return out
}

// View returns a value snapshot of the whole board, in insertion order.
func (b *Board) View() []models.WorkItem {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.WorkItem, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.items[id])
	}
	return out
}

// snapshotItem copies an item so callers never share the live struct. Slice
// and map fields are only written under the board lock and never shrink, so
// sharing their backing storage with a snapshot is safe for readers.
func snapshotItem(item *models.WorkItem) *models.WorkItem {
	if item == nil {
		return nil
	}
	copied := *item
	return &copied
}

// Size returns the number of items on the board.
func (b *Board) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// AddStage appends a stage to the ordered stage list.
func (b *Board) AddStage(stage *models.Stage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stages = append(b.stages, stage)
}

// Stages returns the ordered stage list.
func (b *Board) Stages() []*models.Stage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*models.Stage(nil), b.stages...)
}

// HasCycle reports whether the dependency graph contains a cycle. Creation
// does not reject cycles; this is a diagnostic for board views so a starved
// run is at least visible.
func (b *Board) HasCycle() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(b.items))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, dep := range b.items[id].Dependencies {
			if _, ok := b.items[dep]; !ok {
				continue
			}
			switch colors[dep] {
			case 1:
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range b.items {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// statusAdvances enforces the forward-only item lifecycle.
func statusAdvances(from, to models.ItemStatus) bool {
	switch from {
	case models.ItemStatusPending:
		return to == models.ItemStatusAssigned || to == models.ItemStatusRunning
	case models.ItemStatusAssigned:
		return to == models.ItemStatusRunning || to == models.ItemStatusCompleted || to == models.ItemStatusFailed
	case models.ItemStatusRunning:
		return to == models.ItemStatusCompleted || to == models.ItemStatusFailed
	default:
		return false
	}
}
