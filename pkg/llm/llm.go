// Package llm drives the language models behind the dialogue engine.
//
// A [Generator] produces one model turn from a [Request]: batch via Generate,
// token-by-token via GenerateStream. Two implementations ship, an
// OpenAI-compatible one and a Gemini one; [NewGenerator] picks by the
// provider string in a role's model configuration.
package llm

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/haivivi/giztalk/go/pkg/buffer"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ToolCall is a model request to run a named tool. Arguments is the raw
// JSON string as the model produced it; callers repair-parse it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one turn of conversation context.
//
// A user or model turn carries Content. A model turn that requested tools
// carries ToolCalls instead. A tool turn carries the result in Content and
// the originating call in ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolSpec declares a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Request is the full context for one model turn.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec

	// Zero values mean provider defaults.
	Temperature float32
	MaxTokens   int
}

// Usage is the token accounting of one turn.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Response is one complete model turn. Text and ToolCalls may both be set;
// a turn with ToolCalls is a tool round, not a final answer.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// ErrBlocked reports that the provider refused the turn.
var ErrBlocked = errors.New("llm: response blocked")

// Generator produces model turns.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	GenerateStream(ctx context.Context, req *Request) (*Stream, error)
}

// Chunk is one streamed increment: a text delta or a completed tool call.
type Chunk struct {
	Text     string
	ToolCall *ToolCall
}

// Stream delivers a model turn incrementally. Next blocks for the next
// chunk and returns [buffer.ErrIteratorDone] after the turn finished
// cleanly; any other error is terminal. Usage is valid once Next has
// returned ErrIteratorDone.
type Stream struct {
	q     *buffer.Queue[Chunk]
	usage Usage
}

// Next returns the next chunk.
func (s *Stream) Next() (Chunk, error) {
	return s.q.Next()
}

// Usage returns the token accounting reported at end of stream.
func (s *Stream) Usage() Usage {
	return s.usage
}

// StreamBuilder is the producer side of a Stream.
type StreamBuilder struct {
	s *Stream
}

// NewStreamBuilder creates a builder and its stream.
func NewStreamBuilder() *StreamBuilder {
	return &StreamBuilder{s: &Stream{q: buffer.QueueN[Chunk](32)}}
}

// Stream returns the consumer side.
func (b *StreamBuilder) Stream() *Stream {
	return b.s
}

// Add appends a chunk. It fails once the stream is finished or aborted.
func (b *StreamBuilder) Add(c Chunk) error {
	return b.s.q.Add(c)
}

// Done finishes the stream cleanly with its usage.
func (b *StreamBuilder) Done(u Usage) error {
	b.s.usage = u
	return b.s.q.CloseWrite()
}

// Abort terminates the stream with err; pending and future Next calls see
// it after the already-queued chunks drain.
func (b *StreamBuilder) Abort(err error) error {
	return b.s.q.CloseWithError(err)
}

// NewTextStream wraps an already-complete response as a single-chunk
// stream, for paths that resolved the turn without streaming.
func NewTextStream(text string, u Usage) *Stream {
	b := NewStreamBuilder()
	if text != "" {
		b.Add(Chunk{Text: text})
	}
	b.Done(u)
	return b.Stream()
}
