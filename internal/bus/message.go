// Package bus provides the in-process message and event fabric for a run.
// Mailboxes and event history are guarded by a single mutex each; the
// optional JSONL logs are append-only audit trails, never read back.
package bus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// MessageBus routes point-to-point messages between named entities. Every
// participant (coordinator, workers, "human") registers a mailbox; senders
// append, receivers drain.
type MessageBus struct {
	mu        sync.Mutex
	mailboxes map[string][]models.Message
	logPath   string
}

// NewMessageBus creates a bus. logPath, if non-empty, receives one JSON line
// per delivered message.
func NewMessageBus(logPath string) *MessageBus {
	return &MessageBus{
		mailboxes: make(map[string][]models.Message),
		logPath:   logPath,
	}
}

// Register creates an empty mailbox for the entity. Registering an existing
// entity is a no-op so restarts are idempotent.
func (b *MessageBus) Register(entity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[entity]; !ok {
		b.mailboxes[entity] = nil
	}
}

// Send appends a message to the recipient's mailbox. The recipient is
// auto-registered if unknown, so a worker can message the coordinator before
// the coordinator has polled anything.
func (b *MessageBus) Send(from, to, content string) models.Message {
	msg := models.Message{
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.mailboxes[to] = append(b.mailboxes[to], msg)
	b.mu.Unlock()

	b.appendLog(msg)
	return msg
}

// Receive drains the entity's mailbox: it returns all pending messages and
// leaves the mailbox empty. A second immediate call returns nothing.
func (b *MessageBus) Receive(entity string) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.mailboxes[entity]
	b.mailboxes[entity] = nil
	return msgs
}

// Peek returns a copy of the entity's pending messages without draining.
func (b *MessageBus) Peek(entity string) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.mailboxes[entity]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// HasMessages reports whether the entity has anything pending.
func (b *MessageBus) HasMessages(entity string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mailboxes[entity]) > 0
}

// Broadcast sends content to every registered mailbox except the sender and
// any entity named in exclude. It returns the recipients in no particular
// order.
func (b *MessageBus) Broadcast(from, content string, exclude ...string) []string {
	skip := map[string]bool{from: true}
	for _, e := range exclude {
		skip[e] = true
	}

	b.mu.Lock()
	var recipients []string
	for entity := range b.mailboxes {
		if !skip[entity] {
			recipients = append(recipients, entity)
		}
	}
	b.mu.Unlock()

	for _, to := range recipients {
		b.Send(from, to, content)
	}
	return recipients
}

// Entities returns the registered mailbox names.
func (b *MessageBus) Entities() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.mailboxes))
	for entity := range b.mailboxes {
		out = append(out, entity)
	}
	return out
}

func (b *MessageBus) appendLog(msg models.Message) {
	if b.logPath == "" {
		return
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return
	}
	f, err := os.OpenFile(b.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bus: message log: %v\n", err)
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}
