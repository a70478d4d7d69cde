package llm

import (
	"errors"
	"testing"

	"github.com/haivivi/giztalk/go/pkg/buffer"
)

func TestStreamDeliversChunksThenDone(t *testing.T) {
	sb := NewStreamBuilder()
	go func() {
		sb.Add(Chunk{Text: "你"})
		sb.Add(Chunk{Text: "好"})
		sb.Add(Chunk{ToolCall: &ToolCall{ID: "c1", Name: "lookup", Arguments: `{"q":"x"}`}})
		sb.Done(Usage{PromptTokens: 10, CompletionTokens: 3})
	}()

	s := sb.Stream()
	var text string
	var calls int
	for {
		c, err := s.Next()
		if errors.Is(err, buffer.ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		text += c.Text
		if c.ToolCall != nil {
			calls++
			if c.ToolCall.Name != "lookup" {
				t.Errorf("tool call name = %q; want lookup", c.ToolCall.Name)
			}
		}
	}
	if text != "你好" {
		t.Errorf("text = %q; want 你好", text)
	}
	if calls != 1 {
		t.Errorf("tool calls = %d; want 1", calls)
	}
	if got := s.Usage(); got.PromptTokens != 10 || got.CompletionTokens != 3 {
		t.Errorf("usage = %+v; want 10/3", got)
	}
}

func TestStreamAbortSurfacesError(t *testing.T) {
	sb := NewStreamBuilder()
	sb.Add(Chunk{Text: "partial"})
	sb.Abort(errors.New("upstream failed"))

	s := sb.Stream()
	// Queued chunks drain before the error.
	if c, err := s.Next(); err != nil || c.Text != "partial" {
		t.Fatalf("Next() = %+v, %v; want partial chunk", c, err)
	}
	if _, err := s.Next(); err == nil || errors.Is(err, buffer.ErrIteratorDone) {
		t.Errorf("Next() error = %v; want the abort error", err)
	}
}

func TestNewTextStream(t *testing.T) {
	s := NewTextStream("完整回答", Usage{CompletionTokens: 4})
	c, err := s.Next()
	if err != nil || c.Text != "完整回答" {
		t.Fatalf("Next() = %+v, %v; want the full text", c, err)
	}
	if _, err := s.Next(); !errors.Is(err, buffer.ErrIteratorDone) {
		t.Errorf("Next() error = %v; want ErrIteratorDone", err)
	}
	if s.Usage().CompletionTokens != 4 {
		t.Errorf("usage = %+v", s.Usage())
	}
}

func TestNewTextStreamEmpty(t *testing.T) {
	s := NewTextStream("", Usage{})
	if _, err := s.Next(); !errors.Is(err, buffer.ErrIteratorDone) {
		t.Errorf("Next() error = %v; want immediate ErrIteratorDone", err)
	}
}

func TestUnmarshalRepairsBrokenJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"valid", `{"city": "北京", "days": 3}`},
		{"trailing comma", `{"city": "北京", "days": 3,}`},
		{"single quotes", `{'city': '北京', 'days': 3}`},
		{"unquoted keys", `{city: "北京", days: 3}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got struct {
				City string `json:"city"`
				Days int    `json:"days"`
			}
			if err := Unmarshal([]byte(tc.in), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.City != "北京" || got.Days != 3 {
				t.Errorf("got %+v; want 北京/3", got)
			}
		})
	}
}

func TestUnmarshalTypeErrorNotRepaired(t *testing.T) {
	var got struct {
		Days int `json:"days"`
	}
	// Well-formed JSON with a wrong type must fail as-is, not be "repaired".
	if err := Unmarshal([]byte(`{"days": "three"}`), &got); err == nil {
		t.Error("Unmarshal() = nil; want type error")
	}
}
