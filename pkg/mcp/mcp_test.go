package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/haivivi/giztalk/go/pkg/tools"
)

// deviceStub answers bridge requests like a device MCP server would.
type deviceStub struct {
	bridge *Bridge
	// respond builds the JSON-RPC response for a parsed request; nil
	// means stay silent.
	respond func(req rpcRequest) map[string]any
}

func (d *deviceStub) send(payload json.RawMessage) error {
	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	resp := d.respond(req)
	if resp == nil {
		return nil
	}
	resp["jsonrpc"] = "2.0"
	resp["id"] = req.ID
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	go d.bridge.HandleResponse(raw)
	return nil
}

func newTestBridge(t *testing.T, respond func(req rpcRequest) map[string]any, opts BridgeOptions) (*Bridge, *tools.Holder) {
	t.Helper()
	holder := tools.NewHolder()
	stub := &deviceStub{respond: respond}
	opts.Send = stub.send
	opts.Holder = holder
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	b, err := NewBridge(opts)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	stub.bridge = b
	return b, holder
}

func toolPage(names []string, next string) map[string]any {
	var ts []map[string]any
	for _, n := range names {
		ts = append(ts, map[string]any{
			"name":        n,
			"description": "desc " + n,
			"inputSchema": map[string]any{"type": "object"},
		})
	}
	return map[string]any{"result": map[string]any{"tools": ts, "nextCursor": next}}
}

func TestInitializeRegistersTools(t *testing.T) {
	var sawVersion string
	b, holder := newTestBridge(t, func(req rpcRequest) map[string]any {
		switch req.Method {
		case "initialize":
			params := req.Params.(map[string]any)
			sawVersion = params["protocolVersion"].(string)
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			return toolPage([]string{"self.camera.take_photo", "lamp_toggle"}, "")
		}
		return nil
	}, BridgeOptions{SessionToken: "s1"})

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if sawVersion != ProtocolVersion {
		t.Errorf("protocolVersion = %q; want %q", sawVersion, ProtocolVersion)
	}
	if !b.Initialized() {
		t.Error("bridge not marked initialized")
	}
	if _, ok := holder.Get("mcp_self_camera_take_photo"); !ok {
		t.Errorf("dotted name not sanitized; have %v", holder.Names())
	}
	if _, ok := holder.Get("mcp_lamp_toggle"); !ok {
		t.Errorf("plain tool missing; have %v", holder.Names())
	}
}

func TestListToolsPaginates(t *testing.T) {
	var cursors []string
	b, holder := newTestBridge(t, func(req rpcRequest) map[string]any {
		switch req.Method {
		case "initialize":
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			cursor := req.Params.(map[string]any)["cursor"].(string)
			cursors = append(cursors, cursor)
			if cursor == "" {
				return toolPage([]string{"a"}, "page2")
			}
			return toolPage([]string{"b"}, "")
		}
		return nil
	}, BridgeOptions{})

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(cursors) != 2 || cursors[0] != "" || cursors[1] != "page2" {
		t.Errorf("cursors = %v; want [\"\", page2]", cursors)
	}
	if holder.Len() != 2 {
		t.Errorf("registered = %d; want 2", holder.Len())
	}
}

func TestListToolsRespectsCap(t *testing.T) {
	var names []string
	for i := 0; i < 5; i++ {
		names = append(names, fmt.Sprintf("t%d", i))
	}
	b, holder := newTestBridge(t, func(req rpcRequest) map[string]any {
		switch req.Method {
		case "initialize":
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			return toolPage(names, "more")
		}
		return nil
	}, BridgeOptions{MaxTools: 3})

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	// The whole page would exceed the cap, so nothing registers and
	// pagination stops.
	if holder.Len() != 0 {
		t.Errorf("registered = %d; want 0", holder.Len())
	}
}

func TestCallToolContentExtraction(t *testing.T) {
	b, holder := newTestBridge(t, func(req rpcRequest) map[string]any {
		switch req.Method {
		case "initialize":
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			return toolPage([]string{"read_temp"}, "")
		case "tools/call":
			return map[string]any{"result": map[string]any{
				"isError": "false",
				"content": []map[string]any{{"type": "text", "text": "25.5度"}},
			}}
		}
		return nil
	}, BridgeOptions{})
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	tl, _ := holder.Get("mcp_read_temp")
	got, err := tl.Handler(context.Background(), map[string]any{})
	if err != nil || got != "25.5度" {
		t.Errorf("handler = %q, %v; want 25.5度", got, err)
	}
}

func TestCallToolBooleanIsErrorFails(t *testing.T) {
	// Devices mark success with the string "false"; a boolean is not the
	// protocol and reads as failure.
	b, holder := newTestBridge(t, func(req rpcRequest) map[string]any {
		switch req.Method {
		case "initialize":
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			return toolPage([]string{"read_temp"}, "")
		case "tools/call":
			return map[string]any{"result": map[string]any{
				"isError": false,
				"content": []map[string]any{{"type": "text", "text": "25.5度"}},
			}}
		}
		return nil
	}, BridgeOptions{})
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	tl, _ := holder.Get("mcp_read_temp")
	got, err := tl.Handler(context.Background(), map[string]any{})
	if err != nil || got != callFailed {
		t.Errorf("handler = %q, %v; want %q", got, err, callFailed)
	}
}

func TestCallToolErrorMessage(t *testing.T) {
	b, holder := newTestBridge(t, func(req rpcRequest) map[string]any {
		switch req.Method {
		case "initialize":
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			return toolPage([]string{"broken"}, "")
		case "tools/call":
			return map[string]any{"error": map[string]any{"code": -32000, "message": "摄像头不可用"}}
		}
		return nil
	}, BridgeOptions{})
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	tl, _ := holder.Get("mcp_broken")
	got, _ := tl.Handler(context.Background(), nil)
	if got != "摄像头不可用" {
		t.Errorf("handler = %q; want the device error message", got)
	}
}

func TestCallTimeout(t *testing.T) {
	b, holder := newTestBridge(t, func(req rpcRequest) map[string]any {
		switch req.Method {
		case "initialize":
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			return toolPage([]string{"slow"}, "")
		case "tools/call":
			return nil // never answers
		}
		return nil
	}, BridgeOptions{Timeout: 50 * time.Millisecond})
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	tl, _ := holder.Get("mcp_slow")
	got, err := tl.Handler(context.Background(), nil)
	if err != nil || got != callFailed {
		t.Errorf("handler = %q, %v; want %q", got, err, callFailed)
	}
	b.mu.Lock()
	pending := len(b.pending)
	b.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending = %d after timeout; want 0", pending)
	}
}

func TestRequestIDsStartHighAndIncrement(t *testing.T) {
	var ids []int64
	b, _ := newTestBridge(t, func(req rpcRequest) map[string]any {
		ids = append(ids, req.ID)
		switch req.Method {
		case "initialize":
			return map[string]any{"result": map[string]any{}}
		case "tools/list":
			return map[string]any{"result": map[string]any{"tools": []any{}}}
		}
		return nil
	}, BridgeOptions{})
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 10000 || ids[1] != 10001 {
		t.Errorf("ids = %v; want [10000 10001]", ids)
	}
}

func TestHandleResponseUnknownID(t *testing.T) {
	b, _ := newTestBridge(t, func(rpcRequest) map[string]any { return nil }, BridgeOptions{})
	// Must not panic or leak.
	b.HandleResponse(json.RawMessage(`{"jsonrpc":"2.0","id":999,"result":{}}`))
	b.HandleResponse(json.RawMessage(`not json`))
	b.HandleResponse(json.RawMessage(`{"jsonrpc":"2.0","method":"notify"}`))
}

func TestCallSucceeded(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{"false", true},
		{"False", false},
		{"FALSE", false},
		{"true", false},
		{nil, false},
		{false, false},
		{true, false},
		{1.0, false},
	}
	for _, tc := range tests {
		if got := callSucceeded(tc.in); got != tc.want {
			t.Errorf("callSucceeded(%v) = %v; want %v", tc.in, got, tc.want)
		}
	}
}
