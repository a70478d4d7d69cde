package wire

import "encoding/json"

// HelloAck is the server's reply to a hello message.
type HelloAck struct {
	Type        string      `json:"type"`
	Transport   string      `json:"transport"`
	SessionID   string      `json:"session_id"`
	AudioParams AudioParams `json:"audio_params"`
}

// NewHelloAck builds the handshake reply for a new session.
func NewHelloAck(sessionID string) *HelloAck {
	return &HelloAck{
		Type:        TypeHello,
		Transport:   "websocket",
		SessionID:   sessionID,
		AudioParams: OpusParams(),
	}
}

// TtsEvent drives the device's playback UI: start and stop bracket the
// assistant's speech, sentence_start precedes each spoken sentence with
// its text.
type TtsEvent struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// NewTtsStart signals the beginning of assistant speech.
func NewTtsStart(sessionID string) *TtsEvent {
	return &TtsEvent{Type: TypeTts, State: TtsStart, SessionID: sessionID}
}

// NewTtsStop signals the end of assistant speech.
func NewTtsStop(sessionID string) *TtsEvent {
	return &TtsEvent{Type: TypeTts, State: TtsStop, SessionID: sessionID}
}

// NewTtsSentence announces the text of the sentence about to play.
func NewTtsSentence(sessionID, text string) *TtsEvent {
	return &TtsEvent{Type: TypeTts, State: TtsSentenceStart, Text: text, SessionID: sessionID}
}

// SttEvent echoes the recognized user utterance back to the device.
type SttEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// NewSttEvent builds a recognition echo.
func NewSttEvent(sessionID, text string) *SttEvent {
	return &SttEvent{Type: TypeStt, Text: text, SessionID: sessionID}
}

// LlmEvent carries an emotion hint for the device's expression display.
// Text duplicates the emotion name for firmware that renders it.
type LlmEvent struct {
	Type      string `json:"type"`
	Emotion   string `json:"emotion"`
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// NewLlmEmotion builds an emotion hint event.
func NewLlmEmotion(sessionID, emotion string) *LlmEvent {
	return &LlmEvent{Type: TypeLlm, Emotion: emotion, Text: emotion, SessionID: sessionID}
}

// IotCommandList sends one or more method invocations to device things.
type IotCommandList struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	Commands  []IotCommand `json:"commands"`
}

// IotCommand invokes a method on a named thing.
type IotCommand struct {
	Name       string         `json:"name"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// NewIotCommands wraps commands for sending.
func NewIotCommands(sessionID string, cmds ...IotCommand) *IotCommandList {
	return &IotCommandList{Type: TypeIot, SessionID: sessionID, Commands: cmds}
}

// McpRequest forwards a JSON-RPC payload to the device's MCP server.
type McpRequest struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewMcpRequest wraps a raw JSON-RPC payload for sending.
func NewMcpRequest(sessionID string, payload json.RawMessage) *McpRequest {
	return &McpRequest{Type: TypeMcp, SessionID: sessionID, Payload: payload}
}
