// Package tools holds the per-session table of callable tools.
//
// Three sources feed the table: built-in session controls, tools derived
// from IoT device descriptors, and tools the device itself hosts over MCP.
// All are realized per session so handlers can close over session state.
package tools

import (
	"context"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/haivivi/giztalk/go/pkg/llm"
)

// HandlerFunc executes one tool call. The returned string goes back to the
// model, or straight to the user when the tool is return-direct.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one callable entry.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     HandlerFunc

	// ReturnDirect short-circuits the chat loop: the handler result is the
	// reply, with no follow-up model turn.
	ReturnDirect bool

	// Rollback marks tools whose invocation must not persist as a normal
	// conversation turn.
	Rollback bool
}

// Spec declares the tool to a model.
func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// Holder is the tool table of one session. Safe for concurrent use.
type Holder struct {
	mu    sync.RWMutex
	table map[string]*Tool
	order []string
}

// NewHolder creates an empty table.
func NewHolder() *Holder {
	return &Holder{table: make(map[string]*Tool)}
}

// Register adds or replaces a tool by name.
func (h *Holder) Register(t *Tool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.table[t.Name]; !ok {
		h.order = append(h.order, t.Name)
	}
	h.table[t.Name] = t
}

// Unregister removes a tool and reports whether it existed.
func (h *Holder) Unregister(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.table[name]; !ok {
		return false
	}
	delete(h.table, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return true
}

// UnregisterPrefix removes every tool whose name starts with prefix and
// returns how many were removed. Used when a device re-announces its IoT
// descriptors or MCP tool set.
func (h *Holder) UnregisterPrefix(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var removed int
	kept := h.order[:0]
	for _, n := range h.order {
		if strings.HasPrefix(n, prefix) {
			delete(h.table, n)
			removed++
			continue
		}
		kept = append(kept, n)
	}
	h.order = kept
	return removed
}

// Get looks up a tool by name.
func (h *Holder) Get(name string) (*Tool, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.table[name]
	return t, ok
}

// All returns the tools in registration order.
func (h *Holder) All() []*Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Tool, 0, len(h.order))
	for _, n := range h.order {
		out = append(out, h.table[n])
	}
	return out
}

// Names returns the registered names in registration order.
func (h *Holder) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Specs returns the model-facing declarations in registration order.
func (h *Holder) Specs() []llm.ToolSpec {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llm.ToolSpec, 0, len(h.order))
	for _, n := range h.order {
		out = append(out, h.table[n].Spec())
	}
	return out
}

// Len returns the number of registered tools.
func (h *Holder) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.table)
}
