package bus

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// subscriberBuffer is the channel capacity handed to each subscriber. A
// subscriber that falls further behind than this silently loses events;
// history and the JSONL log remain complete.
const subscriberBuffer = 256

// EventBus fans events out to subscribers and keeps the full in-memory
// history for late joiners and views.
type EventBus struct {
	mu          sync.Mutex
	history     []models.Event
	subscribers map[int]chan models.Event
	nextSubID   int
	logPath     string

	dropped atomic.Uint64
}

// NewEventBus creates a bus. logPath, if non-empty, receives one JSON line
// per event.
func NewEventBus(logPath string) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan models.Event),
		logPath:     logPath,
	}
}

// Publish records the event and delivers it to every subscriber. Delivery is
// non-blocking: a full subscriber channel drops the event for that subscriber
// only.
func (b *EventBus) Publish(eventType, runID string, data map[string]any) models.Event {
	ev := models.Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.Lock()
	b.history = append(b.history, ev)
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.Unlock()

	b.appendLog(ev)
	return ev
}

// Subscribe returns a buffered channel of future events and an id for
// Unsubscribe. The channel carries no history; use Recent for catch-up.
func (b *EventBus) Subscribe() (int, <-chan models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan models.Event, subscriberBuffer)
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Recent returns up to limit events counted from the tail of the history,
// skipping offset events from the end first. Recent(10, 0) is the last 10;
// Recent(10, 10) is the 10 before those.
func (b *EventBus) Recent(limit, offset int) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.history)
	end := n - offset
	if end <= 0 {
		return nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.Event, end-start)
	copy(out, b.history[start:end])
	return out
}

// History returns a copy of the full event history.
func (b *EventBus) History() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Event, len(b.history))
	copy(out, b.history)
	return out
}

// Dropped returns the total number of per-subscriber deliveries lost to full
// channels.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *EventBus) appendLog(ev models.Event) {
	if b.logPath == "" {
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	f, err := os.OpenFile(b.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}
