package coordinator

import (
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/workspace"
)

// ConversationEntry is one line of the human-facing conversation: what the
// coordinator said, what the human sent, and notable worker traffic.
type ConversationEntry struct {
	Role      string    `json:"role"`
	To        string    `json:"to,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// Conversation is the append-only human-facing log, kept in memory for the
// HTTP surface and mirrored to a JSONL file when a path is configured.
type Conversation struct {
	mu      sync.Mutex
	entries []ConversationEntry
	logPath string
}

// NewConversation creates a conversation log. An empty logPath disables the
// file mirror.
func NewConversation(logPath string) *Conversation {
	return &Conversation{logPath: logPath}
}

// Append records one entry.
func (c *Conversation) Append(role, content string) {
	c.append(ConversationEntry{Role: role, Content: content, Timestamp: time.Now().UTC()})
}

// AppendTo records one addressed entry (worker traffic to the coordinator).
func (c *Conversation) AppendTo(role, to, content string) {
	c.append(ConversationEntry{Role: role, To: to, Content: content, Timestamp: time.Now().UTC()})
}

func (c *Conversation) append(e ConversationEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()

	if c.logPath != "" {
		workspace.AppendJSONL(c.logPath, e)
	}
}

// Entries returns a copy of the log.
func (c *Conversation) Entries() []ConversationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConversationEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
