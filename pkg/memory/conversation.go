// Package memory keeps the sliding-window chat history of a session.
package memory

import (
	"sync"

	"github.com/haivivi/giztalk/go/pkg/llm"
	"github.com/haivivi/giztalk/go/pkg/store"
)

// DefaultWindow is the default maximum number of retained messages.
const DefaultWindow = 16

// rollbackRole marks the sentinel that undoes the latest entry.
const rollbackRole llm.Role = "rollback"

// Rollback is the sentinel message: adding it removes the most recent
// entry instead of appending. Used when a side-effecting tool fired and
// the turn must not persist as normal history.
var Rollback = llm.Message{Role: rollbackRole}

// Conversation is the retained dialogue context of one session.
//
// It holds at most max user/model messages; the system prompt is kept
// separately and prepended on serialization, never stored in the window.
// On overflow the oldest user+model pair drops atomically. Safe for
// concurrent use.
type Conversation struct {
	mu      sync.Mutex
	prompt  string
	max     int
	entries []llm.Message
}

// NewConversation creates a window holding at most max messages under the
// given system prompt. Non-positive max means DefaultWindow.
func NewConversation(prompt string, max int) *Conversation {
	if max <= 0 {
		max = DefaultWindow
	}
	return &Conversation{prompt: prompt, max: max}
}

// Load seeds the window from persisted rows, which must be in ascending
// creation order. Only NORMAL user/assistant rows are retained; the rest
// is tool-call bookkeeping that must not re-enter the model context.
func (c *Conversation) Load(rows []*store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
	for _, row := range rows {
		if row.Kind != store.KindNormal {
			continue
		}
		var role llm.Role
		switch row.Sender {
		case store.SenderUser:
			role = llm.RoleUser
		case store.SenderAssistant:
			role = llm.RoleModel
		default:
			continue
		}
		c.entries = append(c.entries, llm.Message{Role: role, Content: row.Content})
	}
	c.trimLocked()
}

// Add appends one message, or undoes the latest entry when msg is the
// [Rollback] sentinel.
func (c *Conversation) Add(msg llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Role == rollbackRole {
		if n := len(c.entries); n > 0 {
			c.entries = c.entries[:n-1]
		}
		return
	}
	c.entries = append(c.entries, msg)
	c.trimLocked()
}

func (c *Conversation) trimLocked() {
	for len(c.entries) > c.max+1 {
		drop := 2
		if len(c.entries) < drop {
			drop = len(c.entries)
		}
		c.entries = append(c.entries[:0], c.entries[drop:]...)
	}
}

// Snapshot returns a copy of the retained messages.
func (c *Conversation) Snapshot() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, len(c.entries))
	copy(out, c.entries)
	return out
}

// Request serializes the window into a model request, prepending the
// system prompt when non-empty.
func (c *Conversation) Request() *llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]llm.Message, len(c.entries))
	copy(msgs, c.entries)
	return &llm.Request{System: c.prompt, Messages: msgs}
}

// Prompt returns the system prompt.
func (c *Conversation) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// SetPrompt replaces the system prompt, used when the session switches
// role mid-conversation.
func (c *Conversation) SetPrompt(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = p
}

// Clear drops all retained messages but keeps the prompt.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
}

// Len returns the number of retained messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
