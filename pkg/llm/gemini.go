package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"

	"github.com/haivivi/giztalk/go/pkg/store"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator speaks the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator builds a generator from a model configuration.
func NewGeminiGenerator(ctx context.Context, cfg *store.ModelConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: gemini config %q missing api_key", cfg.ID)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: gemini config %q missing model", cfg.ID)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: cfg.Model}, nil
}

// Generate runs one non-streaming turn.
func (g *GeminiGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	cfg, contents, err := geminiConvRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, geminiUnwrap(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("llm: no candidates")
	}
	cand := resp.Candidates[0]
	out := &Response{Usage: geminiUsage(resp.UsageMetadata)}
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		switch {
		case p.Text != "":
			text.WriteString(p.Text)
		case p.FunctionCall != nil:
			args, _ := json.Marshal(p.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        p.FunctionCall.Name,
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			})
		}
	}
	out.Text = text.String()
	switch cand.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return out, nil
	case genai.FinishReasonSafety:
		return nil, ErrBlocked
	default:
		return nil, fmt.Errorf("llm: unexpected finish reason %q", cand.FinishReason)
	}
}

// GenerateStream runs one streaming turn.
func (g *GeminiGenerator) GenerateStream(ctx context.Context, req *Request) (*Stream, error) {
	cfg, contents, err := geminiConvRequest(req)
	if err != nil {
		return nil, err
	}
	sb := NewStreamBuilder()
	go func() {
		if err := geminiPull(sb, g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg)); err != nil {
			sb.Abort(geminiUnwrap(err))
		}
	}()
	return sb.Stream(), nil
}

func geminiPull(sb *StreamBuilder, itr iter.Seq2[*genai.GenerateContentResponse, error]) error {
	var selIdx int32
	for chunk, err := range itr {
		if err != nil {
			return err
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		var sel *genai.Candidate
		if selIdx == 0 {
			selIdx = chunk.Candidates[0].Index
			sel = chunk.Candidates[0]
		} else {
			for _, c := range chunk.Candidates {
				if c.Index == selIdx {
					sel = c
					break
				}
			}
			if sel == nil {
				continue
			}
		}
		for _, p := range sel.Content.Parts {
			switch {
			case p.Text != "":
				if err := sb.Add(Chunk{Text: p.Text}); err != nil {
					return err
				}
			case p.FunctionCall != nil:
				args, _ := json.Marshal(p.FunctionCall.Args)
				if err := sb.Add(Chunk{ToolCall: &ToolCall{
					ID:        p.FunctionCall.Name,
					Name:      p.FunctionCall.Name,
					Arguments: string(args),
				}}); err != nil {
					return err
				}
			}
		}
		switch sel.FinishReason {
		case genai.FinishReasonUnspecified, "":
			// mid-stream
		case genai.FinishReasonStop, genai.FinishReasonMaxTokens:
			return sb.Done(geminiUsage(chunk.UsageMetadata))
		case genai.FinishReasonSafety:
			var cats []string
			for _, sr := range sel.SafetyRatings {
				if sr.Blocked {
					cats = append(cats, string(sr.Category))
				}
			}
			return fmt.Errorf("%w: %s", ErrBlocked, strings.Join(cats, ", "))
		default:
			return fmt.Errorf("llm: unexpected finish reason %q", sel.FinishReason)
		}
	}
	return errors.New("llm: stream ended without finish reason")
}

func geminiConvRequest(req *Request) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdOff},
		},
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.System)}}
	}
	if req.Temperature > 0 {
		t := req.Temperature
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	for _, t := range req.Tools {
		cfg.Tools = append(cfg.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  geminiConvSchema(t.InputSchema),
				},
			},
		})
	}

	var contents []*genai.Content
	appendParts := func(role string, parts ...*genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			appendParts("user", genai.NewPartFromText(msg.Content))
		case RoleModel:
			if len(msg.ToolCalls) > 0 {
				for _, tc := range msg.ToolCalls {
					var args map[string]any
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						args = map[string]any{"text": tc.Arguments}
					}
					appendParts("model", genai.NewPartFromFunctionCall(tc.Name, args))
				}
				continue
			}
			appendParts("model", genai.NewPartFromText(msg.Content))
		case RoleTool:
			var result map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
				result = map[string]any{"text": msg.Content}
			}
			appendParts("user", genai.NewPartFromFunctionResponse(msg.ToolCallID, result))
		default:
			return nil, nil, fmt.Errorf("llm: unexpected role %q", msg.Role)
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("llm: no contents")
	}
	return cfg, contents, nil
}

func geminiConvSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}
	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}
	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       geminiConvSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = geminiConvSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}

func geminiUnwrap(err error) error {
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if inner := ae.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}

func geminiUsage(u *genai.GenerateContentResponseUsageMetadata) Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     int64(u.PromptTokenCount),
		CompletionTokens: int64(u.CandidatesTokenCount),
	}
}
