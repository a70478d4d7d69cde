// Package mcp bridges to the MCP server running on the device itself.
//
// JSON-RPC 2.0 rides the session's text channel inside mcp-typed frames.
// The bridge initializes the device server, enumerates its tools and
// registers them on the session's tool table; tool handlers invoke
// tools/call lazily when the model asks for them.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/haivivi/giztalk/go/pkg/tools"
)

const (
	// ProtocolVersion is the MCP revision spoken to devices.
	ProtocolVersion = "2024-11-05"

	// firstRequestID starts the id space high so bridge requests never
	// collide with ids the device may use for its own notifications.
	firstRequestID = 10000

	// DefaultRequestTimeout bounds one request/response round trip.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxTools caps how many device tools register per session.
	DefaultMaxTools = 32
)

// callFailed is the user-facing reply when a device tool cannot answer.
const callFailed = "操作失败"

// Sender delivers one raw JSON-RPC payload to the device.
type Sender func(payload json.RawMessage) error

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int64  `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     json.Number     `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type listedTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// BridgeOptions configure a Bridge.
type BridgeOptions struct {
	// Send delivers payloads to the device. Required.
	Send Sender

	// Holder receives the registered device tools. Required.
	Holder *tools.Holder

	// SessionToken authenticates vision callbacks; the session id.
	SessionToken string

	// VisionURL is the HTTP endpoint the device may push camera frames to.
	VisionURL string

	// MaxTools caps registration; zero means DefaultMaxTools.
	MaxTools int

	// Timeout bounds each request; zero means DefaultRequestTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Bridge drives the MCP conversation with one device. Safe for concurrent
// use.
type Bridge struct {
	send     Sender
	holder   *tools.Holder
	token    string
	vision   string
	maxTools int
	timeout  time.Duration
	log      *slog.Logger

	mu          sync.Mutex
	nextID      int64
	pending     map[int64]chan *rpcResponse
	initialized bool
}

// NewBridge creates a Bridge.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Send == nil {
		return nil, fmt.Errorf("mcp: sender is required")
	}
	if opts.Holder == nil {
		return nil, fmt.Errorf("mcp: tool holder is required")
	}
	if opts.MaxTools <= 0 {
		opts.MaxTools = DefaultMaxTools
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bridge{
		send:     opts.Send,
		holder:   opts.Holder,
		token:    opts.SessionToken,
		vision:   opts.VisionURL,
		maxTools: opts.MaxTools,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		nextID:   firstRequestID,
		pending:  make(map[int64]chan *rpcResponse),
	}, nil
}

// Initialized reports whether the device server completed initialization.
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Initialize handshakes with the device server and registers its tools.
func (b *Bridge) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"clientInfo": map[string]any{
			"name":    "giztalk",
			"version": "1.0.0",
		},
		"capabilities": map[string]any{
			"vision": map[string]any{
				"url":   b.vision,
				"token": b.token,
			},
		},
	}
	if _, err := b.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("mcp: initialize: %w", err)
	}
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return b.listTools(ctx)
}

// listTools pages through tools/list and registers each tool, stopping
// when the cursor runs out or registration would exceed the cap.
func (b *Bridge) listTools(ctx context.Context) error {
	cursor := ""
	for {
		resp, err := b.call(ctx, "tools/list", map[string]any{"cursor": cursor})
		if err != nil {
			return fmt.Errorf("mcp: tools/list: %w", err)
		}
		var result struct {
			Tools      []listedTool `json:"tools"`
			NextCursor string       `json:"nextCursor"`
		}
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return fmt.Errorf("mcp: tools/list result: %w", err)
		}
		if len(result.Tools) == 0 {
			return nil
		}
		if b.holder.Len()+len(result.Tools) > b.maxTools {
			b.log.Warn("mcp tool cap reached, skipping remaining tools",
				"registered", b.holder.Len(), "offered", len(result.Tools), "cap", b.maxTools)
			return nil
		}
		for _, t := range result.Tools {
			b.register(t)
		}
		if result.NextCursor == "" {
			return nil
		}
		cursor = result.NextCursor
	}
}

// ToolName maps a device tool name to its chat-facing name.
func ToolName(deviceName string) string {
	return "mcp_" + strings.ReplaceAll(deviceName, ".", "_")
}

func (b *Bridge) register(t listedTool) {
	schema := t.InputSchema
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object"}
	}
	deviceName := t.Name
	b.holder.Register(&tools.Tool{
		Name:        ToolName(deviceName),
		Description: t.Description,
		InputSchema: schema,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return b.callTool(ctx, deviceName, args), nil
		},
	})
	b.log.Info("mcp tool registered", "tool", ToolName(deviceName))
}

// callTool invokes one device tool. Failures become the canned failure
// reply rather than errors: the model should relay them, not retry.
func (b *Bridge) callTool(ctx context.Context, name string, args map[string]any) string {
	resp, err := b.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		b.log.Error("mcp tools/call failed", "tool", name, "err", err)
		return callFailed
	}
	if resp.Error != nil {
		if resp.Error.Message != "" {
			return resp.Error.Message
		}
		return callFailed
	}
	var result struct {
		IsError any             `json:"isError"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return callFailed
	}
	if callSucceeded(result.IsError) && len(result.Content) > 0 {
		return contentText(result.Content)
	}
	return callFailed
}

// callSucceeded reports whether a tool result's isError field marks
// success. Devices report it as the JSON string "false"; any other value,
// absent and boolean false included, counts as failure.
func callSucceeded(isError any) bool {
	s, ok := isError.(string)
	return ok && s == "false"
}

// contentText flattens an MCP content value to the string handed back to
// the model: text items are concatenated, anything else passes through as
// raw JSON.
func contentText(raw json.RawMessage) string {
	var items []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		var sb strings.Builder
		for _, it := range items {
			if it.Type == "text" {
				sb.WriteString(it.Text)
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// call sends one request and waits for its response or the timeout. On
// timeout the pending entry is dropped so a late response is discarded.
func (b *Bridge) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan *rpcResponse, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{
		Jsonrpc: "2.0",
		Method:  method,
		ID:      id,
		Params:  params,
	})
	if err != nil {
		b.drop(id)
		return nil, err
	}
	if err := b.send(payload); err != nil {
		b.drop(id)
		return nil, err
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		b.drop(id)
		return nil, fmt.Errorf("request %d timed out after %s", id, b.timeout)
	case <-ctx.Done():
		b.drop(id)
		return nil, ctx.Err()
	}
}

func (b *Bridge) drop(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// HandleResponse resolves the pending request a device payload answers.
// Payloads with unknown or missing ids are ignored.
func (b *Bridge) HandleResponse(payload json.RawMessage) {
	var resp rpcResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		b.log.Error("mcp response parse failed", "err", err)
		return
	}
	id, err := resp.ID.Int64()
	if err != nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if ok {
		ch <- &resp
	}
}
