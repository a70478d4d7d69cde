// Package session holds the live state of one connected device channel
// and the registry tracking all of them.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/giztalk/go/pkg/audio/codec/opus"
	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/iot"
	"github.com/haivivi/giztalk/go/pkg/mcp"
	"github.com/haivivi/giztalk/go/pkg/memory"
	"github.com/haivivi/giztalk/go/pkg/store"
	"github.com/haivivi/giztalk/go/pkg/tools"
	"github.com/haivivi/giztalk/go/pkg/vad"
)

// Mode selects how listening is driven.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeManual   Mode = "manual"
	ModeRealtime Mode = "realtime"
)

// Channel is the duplex connection to a device. Implementations marshal
// SendText values as JSON text frames. Safe for concurrent use.
type Channel interface {
	SendText(v any) error
	SendBinary(data []byte) error
	Close() error
}

// Speaker is the sentence-synthesis pipeline of one dialogue turn.
type Speaker interface {
	// Abort cancels the in-flight turn; reason is for logs.
	Abort(reason string)
	// InDialog reports whether a turn is still producing sentences.
	InDialog() bool
}

// Playback is the paced audio sender of one dialogue turn.
type Playback interface {
	// Stop cancels pacing and drops queued sentences.
	Stop()
}

// Session is the server-side state of one connected channel.
//
// At most one Speaker and one Playback are attached at a time; installing
// a new pair cancels the previous one first. All mutable fields are
// guarded; the fixed pipeline objects (codec, segmenter) are owned by the
// audio goroutine and need no lock.
type Session struct {
	ID  string
	Log *slog.Logger

	// Fixed per-session audio pipeline.
	Codec     *opus.Codec
	Segmenter *vad.Segmenter

	// Tool surface.
	Tools *tools.Holder

	mu              sync.Mutex
	channel         Channel
	device          *store.Device
	role            *store.Role
	conversation    *memory.Conversation
	iot             *iot.Registry
	bridge          *mcp.Bridge
	audioStream     *buffer.ByteStream
	speaker         Speaker
	playback        Playback
	mode            Mode
	streaming       bool
	closeAfterChat  bool
	inWakeupReply   bool
	lastActivity    time.Time
	assistantTimeMs int64
}

// New creates a session over ch.
func New(id string, ch Channel, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		ID:           id,
		Log:          log.With("session", id),
		Tools:        tools.NewHolder(),
		channel:      ch,
		mode:         ModeAuto,
		lastActivity: time.Now(),
	}
}

// SendText marshals v onto the channel as a text frame.
func (s *Session) SendText(v any) error {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return ErrChannelClosed
	}
	return ch.SendText(v)
}

// SendBinary sends one binary frame.
func (s *Session) SendBinary(data []byte) error {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return ErrChannelClosed
	}
	return ch.SendBinary(data)
}

// CloseChannel closes and detaches the channel. Safe to call twice.
func (s *Session) CloseChannel() error {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

// HasChannel reports whether the channel is still attached.
func (s *Session) HasChannel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel != nil
}

// Touch records activity, deferring the inactivity reaper.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the last Touch.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// BindDevice attaches the device row and role snapshot plus the derived
// conversation window.
func (s *Session) BindDevice(device *store.Device, role *store.Role, conv *memory.Conversation) {
	s.mu.Lock()
	s.device = device
	s.role = role
	s.conversation = conv
	s.mu.Unlock()
}

// Device returns the bound device row, nil before binding.
func (s *Session) Device() *store.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Role returns the bound role snapshot, nil before binding.
func (s *Session) Role() *store.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Conversation returns the memory window, nil before binding.
func (s *Session) Conversation() *memory.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

// SetIot attaches the IoT registry.
func (s *Session) SetIot(r *iot.Registry) {
	s.mu.Lock()
	s.iot = r
	s.mu.Unlock()
}

// Iot returns the IoT registry, nil until the device announces things.
func (s *Session) Iot() *iot.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iot
}

// SetBridge attaches the device MCP bridge.
func (s *Session) SetBridge(b *mcp.Bridge) {
	s.mu.Lock()
	s.bridge = b
	s.mu.Unlock()
}

// Bridge returns the MCP bridge, nil when the device offers none.
func (s *Session) Bridge() *mcp.Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge
}

// InstallPipeline attaches a new Speaker/Playback pair, cancelling any
// previous pair first.
func (s *Session) InstallPipeline(sp Speaker, pb Playback) {
	s.mu.Lock()
	oldSp, oldPb := s.speaker, s.playback
	s.speaker, s.playback = sp, pb
	s.mu.Unlock()
	if oldSp != nil {
		oldSp.Abort("replaced")
	}
	if oldPb != nil {
		oldPb.Stop()
	}
}

// AbortPipeline cancels the attached pair without replacing it.
func (s *Session) AbortPipeline(reason string) {
	s.mu.Lock()
	sp, pb := s.speaker, s.playback
	s.speaker, s.playback = nil, nil
	s.mu.Unlock()
	if sp != nil {
		sp.Abort(reason)
	}
	if pb != nil {
		pb.Stop()
	}
}

// Speaker returns the attached speaker, nil outside a turn.
func (s *Session) Speaker() Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaker
}

// OwnsSpeaker reports whether sp is still the attached speaker. Pipeline
// stages check this before delivering results so a superseded turn goes
// quiet instead of interleaving with its replacement.
func (s *Session) OwnsSpeaker(sp Speaker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaker != nil && s.speaker == sp
}

// SetAudioStream installs the byte stream feeding the current STT worker,
// returning the previous one (closed by the caller when non-nil).
func (s *Session) SetAudioStream(st *buffer.ByteStream) *buffer.ByteStream {
	s.mu.Lock()
	old := s.audioStream
	s.audioStream = st
	s.mu.Unlock()
	return old
}

// AudioStream returns the active STT byte stream, nil when not capturing.
func (s *Session) AudioStream() *buffer.ByteStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioStream
}

// SetMode sets the listening mode.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// Mode returns the listening mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetStreaming flags that audio frames are currently expected.
func (s *Session) SetStreaming(v bool) {
	s.mu.Lock()
	s.streaming = v
	s.mu.Unlock()
}

// Streaming reports whether audio frames are currently expected.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// MarkCloseAfterChat flags the session to close once the current reply
// finishes playing.
func (s *Session) MarkCloseAfterChat() {
	s.mu.Lock()
	s.closeAfterChat = true
	s.mu.Unlock()
}

// CloseAfterChat reports the close-after-reply flag.
func (s *Session) CloseAfterChat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeAfterChat
}

// SetInWakeupReply flags that the current turn answers a wake word.
func (s *Session) SetInWakeupReply(v bool) {
	s.mu.Lock()
	s.inWakeupReply = v
	s.mu.Unlock()
}

// InWakeupReply reports the wake-word-reply flag.
func (s *Session) InWakeupReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inWakeupReply
}

// SetAssistantTimeMs stamps the assistant-turn timestamp that names the
// merged audio artifact.
func (s *Session) SetAssistantTimeMs(ms int64) {
	s.mu.Lock()
	s.assistantTimeMs = ms
	s.mu.Unlock()
}

// AssistantTimeMs returns the current assistant-turn timestamp.
func (s *Session) AssistantTimeMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistantTimeMs
}
