// Package wire defines the JSON messages exchanged with devices over the
// websocket channel.
//
// Text frames carry one JSON object each, discriminated by a "type"
// field. Client messages are parsed with Parse into typed structs;
// server messages are plain structs marshaled at the send site. Binary
// frames (Opus audio) never reach this package.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type discriminators.
const (
	TypeHello   = "hello"
	TypeListen  = "listen"
	TypeIot     = "iot"
	TypeAbort   = "abort"
	TypeGoodbye = "goodbye"
	TypeMcp     = "mcp"
	TypeTts     = "tts"
	TypeStt     = "stt"
	TypeLlm     = "llm"
)

// Listen states.
const (
	ListenStart  = "start"
	ListenStop   = "stop"
	ListenDetect = "detect"
	ListenText   = "text"
)

// Listen modes.
const (
	ModeAuto     = "auto"
	ModeManual   = "manual"
	ModeRealtime = "realtime"
)

// TTS event states.
const (
	TtsStart         = "start"
	TtsStop          = "stop"
	TtsSentenceStart = "sentence_start"
)

// Abort reasons.
const (
	AbortWakeWord = "wake_word_detected"
)

// Sentinel errors.
var (
	// ErrUnknownType is returned by Parse for an unrecognized "type" field.
	ErrUnknownType = errors.New("wire: unknown message type")
)

// Ensure all client message types implement Message.
var (
	_ Message = (*Hello)(nil)
	_ Message = (*Listen)(nil)
	_ Message = (*IotUpdate)(nil)
	_ Message = (*Abort)(nil)
	_ Message = (*Goodbye)(nil)
	_ Message = (*Mcp)(nil)
)

// Message is the interface for messages received from a device.
type Message interface {
	isMessage()
	messageType() string
}

// Parse decodes one client text frame into its typed message.
func Parse(data []byte) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("wire: invalid frame: %w", err)
	}

	var msg Message
	switch head.Type {
	case TypeHello:
		msg = new(Hello)
	case TypeListen:
		msg = new(Listen)
	case TypeIot:
		msg = new(IotUpdate)
	case TypeAbort:
		msg = new(Abort)
	case TypeGoodbye:
		msg = new(Goodbye)
	case TypeMcp:
		msg = new(Mcp)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("wire: invalid %s frame: %w", head.Type, err)
	}
	return msg, nil
}

// AudioParams describes the audio stream negotiated in the hello
// handshake.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

// OpusParams returns the only stream layout the server speaks: Opus,
// 16 kHz, mono, 60 ms frames.
func OpusParams() AudioParams {
	return AudioParams{
		Format:        "opus",
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 60,
	}
}
