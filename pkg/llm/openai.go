package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/haivivi/giztalk/go/pkg/store"
)

var _ Generator = (*OpenAIGenerator)(nil)

const (
	oaiFinishStop          = "stop"
	oaiFinishToolCalls     = "tool_calls"
	oaiFinishFunctionCall  = "function_call"
	oaiFinishLength        = "length"
	oaiFinishContentFilter = "content_filter"
)

// OpenAIGenerator speaks the chat-completions protocol. Any provider with
// an OpenAI-compatible endpoint works through it by setting the config's
// api_url.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAIGenerator builds a generator from a model configuration. APIKey
// is required; APIURL overrides the default endpoint.
func NewOpenAIGenerator(cfg *store.ModelConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: openai config %q missing api_key", cfg.ID)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: openai config %q missing model", cfg.ID)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIGenerator{client: &client, model: cfg.Model}, nil
}

// Generate runs one non-streaming turn.
func (g *OpenAIGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	params, err := g.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, choice.Message.Refusal)
	}
	out := &Response{
		Text:  choice.Message.Content,
		Usage: oaiUsage(&resp.Usage),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	switch choice.FinishReason {
	case oaiFinishStop, oaiFinishToolCalls, oaiFinishFunctionCall, oaiFinishLength:
		return out, nil
	case oaiFinishContentFilter:
		return nil, ErrBlocked
	default:
		return nil, fmt.Errorf("llm: unexpected finish reason %q", choice.FinishReason)
	}
}

// GenerateStream runs one streaming turn.
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, req *Request) (*Stream, error) {
	params, err := g.params(req)
	if err != nil {
		return nil, err
	}
	sb := NewStreamBuilder()
	go func() {
		if err := (&oaiPuller{}).pull(sb, g.client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func (g *OpenAIGenerator) params(req *Request) (openai.ChatCompletionNewParams, error) {
	msgs, err := oaiConvMessages(req)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.model,
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  oaiConvSchema(t.InputSchema),
			},
		})
	}
	return params, nil
}

func oaiConvMessages(req *Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: param.NewOpt(req.System),
				},
			},
		})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case RoleModel:
			if len(msg.ToolCalls) > 0 {
				ap := &openai.ChatCompletionAssistantMessageParam{}
				for _, tc := range msg.ToolCalls {
					ap.ToolCalls = append(ap.ToolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					})
				}
				if msg.Content != "" {
					ap.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: param.NewOpt(msg.Content),
					}
				}
				out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: ap})
				continue
			}
			out = append(out, openai.AssistantMessage(msg.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			return nil, fmt.Errorf("llm: unexpected role %q", msg.Role)
		}
	}
	return out, nil
}

func oaiConvSchema(s *jsonschema.Schema) openai.FunctionParameters {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// oaiPuller folds streamed tool-call deltas back into whole calls: a chunk
// with a new ID starts a call, ID-less chunks extend the running one, and
// the finish reason commits it.
type oaiPuller struct {
	running *openai.ChatCompletionChunkChoiceDeltaToolCall
}

func (p *oaiPuller) commit(sb *StreamBuilder) error {
	if p.running == nil {
		return nil
	}
	defer func() { p.running = nil }()
	return sb.Add(Chunk{ToolCall: &ToolCall{
		ID:        p.running.ID,
		Name:      p.running.Function.Name,
		Arguments: p.running.Function.Arguments,
	}})
}

func (p *oaiPuller) pull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	var index int64
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		var sel *openai.ChatCompletionChunkChoice
		if index == 0 {
			index = chunk.Choices[0].Index
			sel = &chunk.Choices[0]
		} else {
			for i := range chunk.Choices {
				if chunk.Choices[i].Index == index {
					sel = &chunk.Choices[i]
					break
				}
			}
			if sel == nil {
				continue
			}
		}
		if s := sel.Delta.Content; s != "" {
			if err := sb.Add(Chunk{Text: s}); err != nil {
				return err
			}
		}
		for _, t := range sel.Delta.ToolCalls {
			switch {
			case p.running == nil:
				if t.ID != "" {
					t := t
					p.running = &t
				}
			case t.ID == "" || t.ID == p.running.ID:
				p.running.Function.Name += t.Function.Name
				p.running.Function.Arguments += t.Function.Arguments
			default:
				if err := p.commit(sb); err != nil {
					return err
				}
				t := t
				p.running = &t
			}
		}
		switch sel.FinishReason {
		case oaiFinishToolCalls, oaiFinishFunctionCall:
			if err := p.commit(sb); err != nil {
				return err
			}
			return sb.Done(oaiUsage(&chunk.Usage))
		case oaiFinishStop, oaiFinishLength:
			return sb.Done(oaiUsage(&chunk.Usage))
		case oaiFinishContentFilter:
			return fmt.Errorf("%w: %s", ErrBlocked, sel.Delta.Refusal)
		}
		if s := sel.Delta.Refusal; s != "" {
			return fmt.Errorf("%w: %s", ErrBlocked, s)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return fmt.Errorf("llm: stream ended without finish reason")
}

func oaiUsage(u *openai.CompletionUsage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	}
}
