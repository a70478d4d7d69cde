// Package dialogue is the conversational core: it routes device audio and
// control events through VAD, STT, the chat engine and the sentence
// synthesis pipeline that paces Opus playback back to the device.
package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haivivi/giztalk/go/pkg/audio/pcm"
	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/iot"
	"github.com/haivivi/giztalk/go/pkg/llm"
	"github.com/haivivi/giztalk/go/pkg/memory"
	"github.com/haivivi/giztalk/go/pkg/session"
	"github.com/haivivi/giztalk/go/pkg/speech"
	"github.com/haivivi/giztalk/go/pkg/storage"
	"github.com/haivivi/giztalk/go/pkg/store"
	"github.com/haivivi/giztalk/go/pkg/tools"
	"github.com/haivivi/giztalk/go/pkg/vad"
	"github.com/haivivi/giztalk/go/pkg/wire"
)

// wakeGreeting answers a wake-word event without a model round trip.
const wakeGreeting = "你好，我在。"

// ControllerOptions configure a Controller.
type ControllerOptions struct {
	Store  *store.Store
	Speech *speech.Factory

	// Files receives per-turn audio artifacts. Nil disables them.
	Files storage.FileStore

	Logger *slog.Logger

	// TtsMaxRetry, TtsRetryDelay, TtsTimeout and TtsMaxConcurrent are
	// handed to each turn's synthesizer.
	TtsMaxRetry      int
	TtsRetryDelay    time.Duration
	TtsTimeout       time.Duration
	TtsMaxConcurrent int
}

// Controller routes decoded device traffic through the dialogue pipeline:
// audio through VAD and STT into model turns, text events to the session
// they steer.
type Controller struct {
	store   *store.Store
	speech  *speech.Factory
	files   storage.FileStore
	engine  *Engine
	log     *slog.Logger
	retries int
	delay   time.Duration
	ttsWait time.Duration
	ttsConc int

	mu       sync.Mutex
	gens     map[string]llm.Generator
	captures map[string]chan []byte
}

// NewController creates a Controller.
func NewController(opts ControllerOptions) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var messages *store.Messages
	if opts.Store != nil {
		messages = opts.Store.Messages
	}
	return &Controller{
		store:    opts.Store,
		speech:   opts.Speech,
		files:    opts.Files,
		engine:   NewEngine(messages, opts.Logger),
		log:      opts.Logger,
		retries:  opts.TtsMaxRetry,
		delay:    opts.TtsRetryDelay,
		ttsWait:  opts.TtsTimeout,
		ttsConc:  opts.TtsMaxConcurrent,
		captures: make(map[string]chan []byte),
		gens:     make(map[string]llm.Generator),
	}
}

// Engine exposes the chat engine, mainly for tests.
func (c *Controller) Engine() *Engine {
	return c.engine
}

// BindRole loads roleID, rebuilds the conversation window from the
// persisted history and attaches everything to the session, including the
// per-session built-in tools.
func (c *Controller) BindRole(ctx context.Context, s *session.Session, device *store.Device, roleID string) error {
	role, err := c.store.Roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	window := role.MemoryMax
	if window <= 0 {
		window = memory.DefaultWindow
	}
	conv := memory.NewConversation(role.Desc, window)
	rows, err := c.store.Messages.Recent(ctx, device.ID, role.ID, window, true)
	if err != nil {
		c.log.Warn("history unavailable", "device", device.ID, "err", err)
	} else {
		conv.Load(rows)
	}
	s.BindDevice(device, role, conv)
	c.registerBuiltins(ctx, s)
	return nil
}

// registerBuiltins installs the session-control tools. They close over the
// session, so switching roles re-registers them against the new binding.
func (c *Controller) registerBuiltins(ctx context.Context, s *session.Session) {
	s.Tools.Register(tools.NewExitSessionTool(s.MarkCloseAfterChat))
	s.Tools.Register(tools.NewNewChatTool(func() {
		if conv := s.Conversation(); conv != nil {
			conv.Clear()
		}
	}))

	device := s.Device()
	if device == nil || device.UserID == "" {
		return
	}
	roles, err := c.store.Roles.ListByUser(ctx, device.UserID)
	if err != nil {
		c.log.Warn("role list unavailable", "user", device.UserID, "err", err)
		return
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	change := func(ctx context.Context, roleName string) error {
		role, err := c.store.Roles.FindByName(ctx, device.UserID, roleName)
		if err != nil {
			return err
		}
		if role == nil {
			return tools.ErrNoSuchRole
		}
		return c.BindRole(ctx, s, device, role.ID)
	}
	if t := tools.NewChangeRoleTool(names, change); t != nil {
		s.Tools.Register(t)
	}
}

// ProcessAudio feeds one uplink Opus frame through the codec and the
// voice-activity segmenter, driving the STT worker lifecycle.
func (c *Controller) ProcessAudio(ctx context.Context, s *session.Session, frame []byte) {
	if s.Codec == nil || s.Segmenter == nil {
		return
	}
	s.Touch()
	res := s.Segmenter.Process(frame, s.Codec.Decode(frame))
	switch res.Status {
	case vad.SpeechStart:
		if sp := s.Speaker(); sp != nil && sp.InDialog() {
			c.AbortDialogue(s, "vad")
		}
		c.beginCapture(ctx, s, res.Data)
	case vad.SpeechContinue:
		if st := s.AudioStream(); st != nil {
			st.Add(res.Data)
		}
	case vad.SpeechEnd:
		st := s.SetAudioStream(nil)
		if st == nil {
			return
		}
		// Hand the trimmed capture to the STT worker before the stream
		// close releases it.
		var all []byte
		for _, chunk := range s.Segmenter.PCM() {
			all = append(all, chunk...)
		}
		c.mu.Lock()
		if ch, ok := c.captures[s.ID]; ok {
			ch <- all
			delete(c.captures, s.ID)
		}
		c.mu.Unlock()
		st.CloseWrite()
	}
}

// beginCapture opens a fresh STT stream for one utterance and registers
// the channel that will hand the trimmed PCM to the worker on speech end.
func (c *Controller) beginCapture(ctx context.Context, s *session.Session, data []byte) {
	st := buffer.NewByteStream()
	if old := s.SetAudioStream(st); old != nil {
		old.CloseWrite()
	}
	st.Add(data)
	captured := make(chan []byte, 1)
	c.mu.Lock()
	c.captures[s.ID] = captured
	c.mu.Unlock()
	go c.sttWorker(ctx, s, st, captured)
}

// sttWorker turns one captured utterance into text and starts the turn.
func (c *Controller) sttWorker(ctx context.Context, s *session.Session, st *buffer.ByteStream, captured <-chan []byte) {
	var cfg *store.ModelConfig
	if role := s.Role(); role != nil && role.SttConfigID != "" {
		var err error
		cfg, err = c.store.ModelConfigs.Get(ctx, role.SttConfigID)
		if err != nil {
			c.log.Warn("stt config unavailable", "session", s.ID, "err", err)
		}
	}
	text, err := c.speech.Recognizer(cfg).RecognizeStream(ctx, st)
	if err != nil {
		c.log.Error("recognition failed", "session", s.ID, "err", err)
		return
	}
	var pcmData []byte
	select {
	case pcmData = <-captured:
	default:
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.HandleUtterance(ctx, s, text, pcmData)
}

// HandleUtterance runs one full user turn: echo the transcript, persist
// the user row, short-circuit an exit intent, otherwise stream a model
// reply into a fresh synthesis pipeline.
func (c *Controller) HandleUtterance(ctx context.Context, s *session.Session, text string, capturedPCM []byte) {
	device, role := s.Device(), s.Role()
	if device == nil || role == nil {
		c.log.Warn("utterance on unbound session", "session", s.ID)
		return
	}
	s.Touch()
	userMs := time.Now().UnixMilli()
	s.SetAssistantTimeMs(userMs + 1)

	s.SendText(wire.NewSttEvent(s.ID, text))
	s.SendText(wire.NewTtsStart(s.ID))

	audioPath := c.saveUserAudio(ctx, device, role, userMs, capturedPCM)
	err := c.store.Messages.Append(ctx, &store.Message{
		DeviceID:   device.ID,
		SessionID:  s.ID,
		RoleID:     role.ID,
		Sender:     store.SenderUser,
		Content:    text,
		Kind:       store.KindNormal,
		CreateTime: userMs,
		AudioPath:  audioPath,
	})
	if err != nil {
		c.log.Error("persist user message", "session", s.ID, "err", err)
	}

	if IsExitIntent(text) {
		c.log.Info("exit intent", "session", s.ID, "text", text)
		s.MarkCloseAfterChat()
		c.playReply(ctx, s, GoodbyeReply(), true)
		return
	}

	gen, err := c.generator(ctx, role.ModelConfigID)
	if err != nil {
		c.log.Error("chat model unavailable", "session", s.ID, "err", err)
		c.playReply(ctx, s, "对话失败，请检查模型配置", false)
		return
	}
	stream, err := c.engine.ChatStream(ctx, s, gen, text, userMs)
	if err != nil {
		c.log.Error("chat turn failed", "session", s.ID, "err", err)
		c.playReply(ctx, s, fallbackText, false)
		return
	}
	sy := c.newTurn(s)
	sy.StartSynthesis(stream)
}

// saveUserAudio writes the captured utterance as a WAV artifact and
// returns its store path, empty when there is nothing to save.
func (c *Controller) saveUserAudio(ctx context.Context, device *store.Device, role *store.Role, userMs int64, pcmData []byte) string {
	if len(pcmData) == 0 || c.files == nil {
		return ""
	}
	path := storage.UserAudioPath(device.ID, role.ID, time.UnixMilli(userMs))
	w, err := c.files.Write(ctx, path)
	if err != nil {
		c.log.Error("user audio not writable", "path", path, "err", err)
		return ""
	}
	wav := pcm.EncodeWAV(pcm.Header{SampleRate: 16000, Channels: 1}, pcmData)
	if _, err := w.Write(wav); err != nil {
		c.log.Error("user audio write", "path", path, "err", err)
		w.Close()
		return ""
	}
	if err := w.Close(); err != nil {
		c.log.Error("user audio flush", "path", path, "err", err)
		return ""
	}
	return path
}

// playReply speaks a server-composed reply through a fresh pipeline,
// optionally persisting it as an assistant row.
func (c *Controller) playReply(ctx context.Context, s *session.Session, text string, persist bool) {
	if persist {
		device, role := s.Device(), s.Role()
		ms := s.AssistantTimeMs()
		if ms == 0 {
			ms = time.Now().UnixMilli()
			s.SetAssistantTimeMs(ms)
		}
		if device != nil && role != nil {
			err := c.store.Messages.Append(ctx, &store.Message{
				DeviceID:   device.ID,
				SessionID:  s.ID,
				RoleID:     role.ID,
				Sender:     store.SenderAssistant,
				Content:    text,
				Kind:       store.KindNormal,
				CreateTime: ms,
			})
			if err != nil {
				c.log.Error("persist canned reply", "session", s.ID, "err", err)
			}
		}
	}
	sy := c.newTurn(s)
	sy.Append(text)
	sy.SetLast()
}

// Announce speaks a server-composed utterance without touching the
// conversation history. It works on unbound sessions, where the default
// synthesizer and voice apply.
func (c *Controller) Announce(ctx context.Context, s *session.Session, text string) {
	c.playReply(ctx, s, text, false)
}

// newTurn builds and installs a Synthesizer/Player pair for one reply,
// cancelling whatever turn was live before.
func (c *Controller) newTurn(s *session.Session) *Synthesizer {
	role := s.Role()
	var ttsCfg *store.ModelConfig
	voice := speech.Voice{}
	if role != nil {
		voice = speech.Voice{Name: role.VoiceName, Pitch: role.TtsPitch, Speed: role.TtsSpeed}
		if role.TtsConfigID != "" {
			cfg, err := c.store.ModelConfigs.Get(context.Background(), role.TtsConfigID)
			if err != nil {
				c.log.Warn("tts config unavailable", "session", s.ID, "err", err)
			} else {
				ttsCfg = cfg
			}
		}
	}
	sy := NewSynthesizer(SynthesizerOptions{
		Session:       s,
		TTS:           c.speech.Synthesizer(ttsCfg, voice),
		Logger:        c.log,
		MaxRetry:      c.retries,
		RetryDelay:    c.delay,
		Timeout:       c.ttsWait,
		MaxConcurrent: c.ttsConc,
	})
	pl := NewPlayer(PlayerOptions{
		Session:  s,
		Files:    c.files,
		Messages: c.store.Messages,
		Logger:   c.log,
	}, sy)
	sy.AttachPlayer(pl)
	s.InstallPipeline(sy, pl)
	return sy
}

// HandleListen steers the listening state machine.
func (c *Controller) HandleListen(ctx context.Context, s *session.Session, msg *wire.Listen) {
	s.Touch()
	if s.CloseAfterChat() {
		// The farewell is playing; no new utterances.
		return
	}
	switch msg.State {
	case wire.ListenStart:
		if msg.Mode != "" {
			s.SetMode(session.Mode(msg.Mode))
		}
		s.SetStreaming(true)
		if s.Segmenter != nil {
			s.Segmenter.Reset()
		}
		if s.InWakeupReply() {
			// The greeting is still playing; re-cue playback so the
			// device keeps its speaker open.
			s.SendText(wire.NewTtsStart(s.ID))
		}
	case wire.ListenStop:
		s.SetStreaming(false)
		if st := s.SetAudioStream(nil); st != nil {
			st.CloseWrite()
		}
		c.dropCapture(s.ID)
		if s.Segmenter != nil {
			s.Segmenter.Reset()
		}
	case wire.ListenText:
		if msg.Text != "" {
			// A typed message supersedes whatever is playing.
			s.AbortPipeline("listen text")
			go c.HandleUtterance(ctx, s, msg.Text, nil)
		}
	case wire.ListenDetect:
		// Wake word: no STT round trip, just acknowledge out loud.
		s.SetInWakeupReply(true)
		s.SendText(wire.NewTtsStart(s.ID))
		c.playReply(ctx, s, wakeGreeting, false)
	}
}

// ReleaseSession cancels the live turn and frees every per-session
// resource the controller holds: pipeline, STT stream, capture channel
// and VAD state. Every teardown path, including a connection dropping
// mid-utterance, must come through here or the capture entry outlives
// the session.
func (c *Controller) ReleaseSession(s *session.Session, reason string) {
	s.AbortPipeline(reason)
	if st := s.SetAudioStream(nil); st != nil {
		st.CloseWrite()
	}
	c.dropCapture(s.ID)
	if s.Segmenter != nil {
		s.Segmenter.Reset()
	}
}

// dropCapture forgets a pending utterance capture. The STT worker's read
// is non-blocking, so an orphaned worker finishes without the PCM.
func (c *Controller) dropCapture(id string) {
	c.mu.Lock()
	delete(c.captures, id)
	c.mu.Unlock()
}

// AbortDialogue cancels the live turn, then tells the device playback
// stopped.
func (c *Controller) AbortDialogue(s *session.Session, reason string) {
	c.ReleaseSession(s, reason)
	s.SendText(wire.NewTtsStop(s.ID))
}

// HandleAbort handles a device-initiated abort.
func (c *Controller) HandleAbort(s *session.Session, reason string) {
	s.Touch()
	c.AbortDialogue(s, reason)
}

// HandleGoodbye tears the session down at the device's request.
func (c *Controller) HandleGoodbye(ctx context.Context, s *session.Session) {
	wasOpen := s.HasChannel()
	c.ReleaseSession(s, "goodbye")
	s.CloseChannel()
	if device := s.Device(); device != nil && !wasOpen {
		if err := c.store.Devices.SetState(ctx, device.ID, store.DeviceStandby); err != nil {
			c.log.Warn("device standby not recorded", "device", device.ID, "err", err)
		}
	}
}

// HandleIot routes a device thing report into the session's IoT registry,
// creating it on first contact.
func (c *Controller) HandleIot(ctx context.Context, s *session.Session, msg *wire.IotUpdate) {
	s.Touch()
	reg := s.Iot()
	if reg == nil {
		send := func(cmds ...wire.IotCommand) error {
			return s.SendText(wire.NewIotCommands(s.ID, cmds...))
		}
		reg = iot.NewRegistry(s.Tools, send, s.Log)
		s.SetIot(reg)
	}
	if len(msg.Descriptors) > 0 {
		reg.HandleDescriptors(msg.Descriptors)
	}
	if len(msg.States) > 0 {
		reg.HandleStates(msg.States)
	}
}

// HandleMcp forwards a device JSON-RPC payload to the session's bridge.
func (c *Controller) HandleMcp(s *session.Session, msg *wire.Mcp) {
	s.Touch()
	if b := s.Bridge(); b != nil {
		b.HandleResponse(msg.Payload)
	}
}

// HandleTimeout says goodbye on an idle session and closes it once the
// farewell has played.
func (c *Controller) HandleTimeout(ctx context.Context, s *session.Session) {
	if !s.HasChannel() {
		return
	}
	s.MarkCloseAfterChat()
	c.playReply(ctx, s, GoodbyeReply(), false)
}

// generator resolves the cached chat generator for a model config id.
func (c *Controller) generator(ctx context.Context, configID string) (llm.Generator, error) {
	cfg, err := c.store.ModelConfigs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gens[cfg.ID]; ok {
		return g, nil
	}
	g, err := llm.NewGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.gens[cfg.ID] = g
	return g, nil
}
