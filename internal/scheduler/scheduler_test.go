package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/conclave-ai/conclave/internal/board"
	"github.com/conclave-ai/conclave/internal/bus"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/pkg/models"
)

type launchRecorder struct {
	mu       sync.Mutex
	launched []string
	byWorker map[string]string
	block    chan struct{}
	err      error
}

func newRecorder() *launchRecorder {
	return &launchRecorder{byWorker: make(map[string]string)}
}

func (r *launchRecorder) launch(ctx context.Context, worker *models.Worker, item *models.WorkItem) (string, error) {
	r.mu.Lock()
	r.launched = append(r.launched, item.ID)
	r.byWorker[item.ID] = worker.ID
	block := r.block
	err := r.err
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "done " + item.ID, err
}

func (r *launchRecorder) launchedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.launched...)
}

func setup(t *testing.T, rec *launchRecorder, workers int) (*Scheduler, *board.Board, *board.Pool) {
	t.Helper()
	b := board.New()
	p := board.NewPool(workers)
	for i := 0; i < workers; i++ {
		p.Add(&models.Worker{ID: string(rune('a' + i)), Name: string(rune('A' + i))})
	}
	s := New(context.Background(), b, p, rec.launch, bus.NewEventBus(""), logging.NopLogger())
	return s, b, p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// A dependent item launches only after its dependency completes, driven
// entirely by the recursive re-tick.
func TestDependentItemRunsAfterDependency(t *testing.T) {
	rec := newRecorder()
	s, b, _ := setup(t, rec, 1)

	b.Add(&models.WorkItem{ID: "a", Task: "first"})
	b.Add(&models.WorkItem{ID: "b", Task: "second", Dependencies: []string{"a"}})

	s.Tick()
	waitFor(t, func() bool { return len(rec.launchedIDs()) == 2 })
	s.Wait()

	ids := rec.launchedIDs()
	if ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("launch order: %v", ids)
	}
	if got := b.Get("b").Status; got != models.ItemStatusCompleted {
		t.Errorf("b status = %s", got)
	}
}

// With one worker and two independent items, the second launches only after
// the first releases the worker.
func TestBusyWorkerDefersSecondItem(t *testing.T) {
	rec := newRecorder()
	rec.block = make(chan struct{})
	s, b, p := setup(t, rec, 1)

	b.Add(&models.WorkItem{ID: "a", Task: "one"})
	b.Add(&models.WorkItem{ID: "b", Task: "two"})

	s.Tick()
	waitFor(t, func() bool { return len(rec.launchedIDs()) == 1 })

	// Re-ticking while the worker is busy must not launch the second item.
	s.Tick()
	if len(rec.launchedIDs()) != 1 {
		t.Fatal("second item launched on a busy worker")
	}
	if p.Get("a").Status != models.WorkerStatusBusy {
		t.Fatal("worker should be busy")
	}

	close(rec.block)
	waitFor(t, func() bool { return len(rec.launchedIDs()) == 2 })
	s.Wait()

	if p.Get("a").Status != models.WorkerStatusIdle {
		t.Error("worker not released after completion")
	}
}

// With MaxConcurrent below the worker count, launches are bounded by the cap
// rather than by how many workers sit idle.
func TestTickHonorsPoolConcurrencyCap(t *testing.T) {
	rec := newRecorder()
	rec.block = make(chan struct{})

	b := board.New()
	p := board.NewPool(1)
	p.Add(&models.Worker{ID: "a", Name: "A"})
	p.Add(&models.Worker{ID: "b", Name: "B"})
	s := New(context.Background(), b, p, rec.launch, bus.NewEventBus(""), logging.NopLogger())

	b.Add(&models.WorkItem{ID: "x", Task: "one"})
	b.Add(&models.WorkItem{ID: "y", Task: "two"})

	s.Tick()
	waitFor(t, func() bool { return len(rec.launchedIDs()) == 1 })

	s.Tick()
	if len(rec.launchedIDs()) != 1 {
		t.Fatal("cap exceeded: second item launched while the first is in flight")
	}

	close(rec.block)
	waitFor(t, func() bool { return len(rec.launchedIDs()) == 2 })
	s.Wait()
}

func TestPreAssignedWorkerHonored(t *testing.T) {
	rec := newRecorder()
	s, b, _ := setup(t, rec, 2)

	b.Add(&models.WorkItem{ID: "x", Task: "targeted"})
	b.SetPreferredWorker("x", "b")

	s.Tick()
	s.Wait()

	rec.mu.Lock()
	got := rec.byWorker["x"]
	rec.mu.Unlock()
	if got != "b" {
		t.Errorf("item ran on %s, want pre-assigned worker b", got)
	}
}

func TestPreAssignedBusyWorkerSkipsItem(t *testing.T) {
	rec := newRecorder()
	s, b, p := setup(t, rec, 2)

	p.SetStatus("b", models.WorkerStatusBusy)
	b.Add(&models.WorkItem{ID: "x", Task: "targeted"})
	b.SetPreferredWorker("x", "b")

	s.Tick()
	if len(rec.launchedIDs()) != 0 {
		t.Error("item with a busy pre-assigned worker must wait for that worker")
	}
}

func TestLauncherErrorFailsItem(t *testing.T) {
	rec := newRecorder()
	rec.err = errors.New("model unreachable")
	s, b, p := setup(t, rec, 1)

	b.Add(&models.WorkItem{ID: "a", Task: "doomed"})
	s.Tick()
	s.Wait()

	item := b.Get("a")
	if item.Status != models.ItemStatusFailed {
		t.Fatalf("status = %s, want failed", item.Status)
	}
	if p.Get("a").Status != models.WorkerStatusIdle {
		t.Error("worker not released after failure")
	}
}

func TestIsStageCompleteAndWait(t *testing.T) {
	rec := newRecorder()
	s, b, _ := setup(t, rec, 2)

	b.Add(&models.WorkItem{ID: "a", Task: "one"})
	b.Add(&models.WorkItem{ID: "b", Task: "two"})

	if s.IsStageComplete([]string{"a", "b"}) {
		t.Fatal("stage complete before any work ran")
	}

	s.Tick()
	if !s.WaitForItems(context.Background(), []string{"a", "b"}, 5*time.Second) {
		t.Fatal("WaitForItems timed out")
	}
	if !s.IsStageComplete([]string{"a", "b"}) {
		t.Error("stage should be complete")
	}
	// Unknown ids count as complete.
	if !s.IsStageComplete([]string{"missing"}) {
		t.Error("unknown id should count as complete")
	}
}

func TestWaitForItemsTimeout(t *testing.T) {
	rec := newRecorder()
	rec.block = make(chan struct{})
	defer close(rec.block)
	s, b, _ := setup(t, rec, 1)

	b.Add(&models.WorkItem{ID: "a", Task: "slow"})
	s.Tick()

	start := time.Now()
	if s.WaitForItems(context.Background(), []string{"a"}, 1200*time.Millisecond) {
		t.Error("expected timeout")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout overshot")
	}
}

func TestActiveCount(t *testing.T) {
	rec := newRecorder()
	rec.block = make(chan struct{})
	s, b, _ := setup(t, rec, 2)

	b.Add(&models.WorkItem{ID: "a", Task: "one"})
	b.Add(&models.WorkItem{ID: "b", Task: "two"})
	s.Tick()

	waitFor(t, func() bool { return s.ActiveCount() == 2 })
	close(rec.block)
	waitFor(t, func() bool { return s.ActiveCount() == 0 })
	s.Wait()
}
