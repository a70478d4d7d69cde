package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/llm"
	"github.com/haivivi/giztalk/go/pkg/memory"
	"github.com/haivivi/giztalk/go/pkg/session"
	"github.com/haivivi/giztalk/go/pkg/store"
)

// Engine drives one model turn: conversation window in, reply out, with
// the tool-call loop and persistence in between.
//
// When the session has tools registered the streaming entry degrades to a
// single completion; tool calling over naive token streaming is not worth
// the protocol gymnastics, and the sentence pipeline downstream does not
// care whether tokens arrive in one chunk.
type Engine struct {
	messages *store.Messages
	log      *slog.Logger
}

// NewEngine creates an Engine persisting turns to messages.
func NewEngine(messages *store.Messages, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{messages: messages, log: log}
}

// Chat runs one non-streaming turn. text is the user utterance already
// persisted at userTimeMs; the reply is persisted before returning.
func (e *Engine) Chat(ctx context.Context, s *session.Session, gen llm.Generator, text string, userTimeMs int64) (string, error) {
	conv := s.Conversation()
	if conv == nil {
		return "", errors.New("dialogue: session has no conversation")
	}
	conv.Add(llm.Message{Role: llm.RoleUser, Content: text})
	return e.complete(ctx, s, gen, conv, userTimeMs)
}

// ChatStream runs one turn and returns the reply as a token stream. With
// tools registered it resolves the turn non-streaming and returns the
// reply as a single-chunk stream; otherwise tokens flow through as the
// model emits them and finalization happens when the stream drains.
func (e *Engine) ChatStream(ctx context.Context, s *session.Session, gen llm.Generator, text string, userTimeMs int64) (*llm.Stream, error) {
	conv := s.Conversation()
	if conv == nil {
		return nil, errors.New("dialogue: session has no conversation")
	}
	conv.Add(llm.Message{Role: llm.RoleUser, Content: text})

	if s.Tools.Len() > 0 {
		reply, err := e.complete(ctx, s, gen, conv, userTimeMs)
		if err != nil {
			return nil, err
		}
		return llm.NewTextStream(reply, llm.Usage{}), nil
	}

	src, err := gen.GenerateStream(ctx, conv.Request())
	if err != nil {
		return nil, err
	}
	b := llm.NewStreamBuilder()
	go func() {
		var reply []byte
		for {
			c, err := src.Next()
			if errors.Is(err, buffer.ErrIteratorDone) {
				e.finalize(ctx, s, conv, string(reply), false, userTimeMs)
				b.Done(src.Usage())
				return
			}
			if err != nil {
				b.Abort(err)
				return
			}
			reply = append(reply, c.Text...)
			b.Add(c)
		}
	}()
	return b.Stream(), nil
}

// complete resolves one turn whose user message is already in conv.
func (e *Engine) complete(ctx context.Context, s *session.Session, gen llm.Generator, conv *memory.Conversation, userTimeMs int64) (string, error) {
	req := conv.Request()
	if s.Tools.Len() > 0 {
		req.Tools = s.Tools.Specs()
	}
	resp, err := gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	reply, rollback := resp.Text, false
	if len(resp.ToolCalls) > 0 {
		reply, rollback, err = e.runTools(ctx, s, gen, req, resp.ToolCalls)
		if err != nil {
			return "", err
		}
	}
	e.finalize(ctx, s, conv, reply, rollback, userTimeMs)
	return reply, nil
}

// runTools executes the model's tool calls in order. A return-direct tool
// short-circuits the follow-up completion: its result is the reply.
func (e *Engine) runTools(ctx context.Context, s *session.Session, gen llm.Generator, req *llm.Request, calls []llm.ToolCall) (reply string, rollback bool, err error) {
	var toolMsgs []llm.Message
	var direct string
	hasDirect := false
	for _, call := range calls {
		tool, ok := s.Tools.Get(call.Name)
		if !ok {
			e.log.Warn("model called unknown tool", "session", s.ID, "tool", call.Name)
			continue
		}
		args := map[string]any{}
		if call.Arguments != "" {
			if uerr := llm.Unmarshal([]byte(call.Arguments), &args); uerr != nil {
				e.log.Warn("unparseable tool arguments", "session", s.ID, "tool", call.Name, "err", uerr)
				args = map[string]any{}
			}
		}
		result, herr := tool.Handler(ctx, args)
		if herr != nil {
			e.log.Warn("tool failed", "session", s.ID, "tool", call.Name, "err", herr)
			if result == "" {
				result = "操作失败"
			}
		}
		if tool.ReturnDirect {
			direct = result
			hasDirect = true
		}
		if tool.Rollback {
			rollback = true
		}
		toolMsgs = append(toolMsgs, llm.Message{
			Role:       llm.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}
	if hasDirect {
		return direct, rollback, nil
	}

	follow := make([]llm.Message, 0, len(req.Messages)+1+len(toolMsgs))
	follow = append(follow, req.Messages...)
	follow = append(follow, llm.Message{Role: llm.RoleModel, ToolCalls: calls})
	follow = append(follow, toolMsgs...)
	resp, err := gen.Generate(ctx, &llm.Request{
		System:   req.System,
		Messages: follow,
		Tools:    req.Tools,
	})
	if err != nil {
		return "", rollback, err
	}
	return resp.Text, rollback, nil
}

// finalize settles the conversation window and persists the assistant row.
// A rollback turn is erased from the window and both persisted rows are
// re-typed FUNCTION_CALL so the next window load skips them.
func (e *Engine) finalize(ctx context.Context, s *session.Session, conv *memory.Conversation, reply string, rollback bool, userTimeMs int64) {
	if rollback {
		conv.Add(memory.Rollback)
	} else if reply != "" {
		conv.Add(llm.Message{Role: llm.RoleModel, Content: reply})
	}

	device, role := s.Device(), s.Role()
	if e.messages == nil || device == nil || role == nil || reply == "" {
		return
	}
	kind := store.KindNormal
	if rollback {
		kind = store.KindFunctionCall
	}
	ms := s.AssistantTimeMs()
	if ms == 0 {
		ms = time.Now().UnixMilli()
		s.SetAssistantTimeMs(ms)
	}
	err := e.messages.Append(ctx, &store.Message{
		DeviceID:   device.ID,
		SessionID:  s.ID,
		RoleID:     role.ID,
		Sender:     store.SenderAssistant,
		Content:    reply,
		Kind:       kind,
		CreateTime: ms,
	})
	if err != nil {
		e.log.Error("persist assistant message", "session", s.ID, "err", err)
	}
	if rollback && userTimeMs > 0 {
		if err := e.messages.SetKind(ctx, device.ID, role.ID, userTimeMs, store.SenderUser, store.KindFunctionCall); err != nil {
			e.log.Error("retype user message", "session", s.ID, "err", err)
		}
	}
}
