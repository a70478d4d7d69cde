package wire

import "encoding/json"

// Hello opens a session. The device announces its protocol version and
// audio parameters; feature flags opt into extensions such as the MCP
// tool channel.
type Hello struct {
	Type        string       `json:"type"`
	Version     int          `json:"version,omitempty"`
	Transport   string       `json:"transport,omitempty"`
	AudioParams *AudioParams `json:"audio_params,omitempty"`
	Features    *Features    `json:"features,omitempty"`
}

func (*Hello) isMessage()          {}
func (*Hello) messageType() string { return TypeHello }

// Features carries the optional capabilities a device announces in hello.
type Features struct {
	Mcp bool `json:"mcp,omitempty"`
}

// Listen controls the microphone state of the session.
//
// State "start" begins an utterance (VAD in auto mode), "stop" ends it,
// "detect" reports a wake word heard on-device, and "text" submits a
// typed user message without audio.
type Listen struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state"`
	Mode      string `json:"mode,omitempty"`
	Text      string `json:"text,omitempty"`
}

func (*Listen) isMessage()          {}
func (*Listen) messageType() string { return TypeListen }

// IotUpdate carries device-side thing descriptors or state reports.
type IotUpdate struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"session_id,omitempty"`
	Update      bool            `json:"update,omitempty"`
	Descriptors []IotDescriptor `json:"descriptors,omitempty"`
	States      []IotState      `json:"states,omitempty"`
}

func (*IotUpdate) isMessage()          {}
func (*IotUpdate) messageType() string { return TypeIot }

// IotDescriptor describes one controllable thing on the device: its
// readable properties and invokable methods.
type IotDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]IotProperty `json:"properties,omitempty"`
	Methods     map[string]IotMethod   `json:"methods,omitempty"`
}

// IotProperty describes a thing property or method parameter.
type IotProperty struct {
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// IotMethod describes an invokable method of a thing.
type IotMethod struct {
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]IotProperty `json:"parameters,omitempty"`
}

// IotState reports current property values of one thing.
type IotState struct {
	Name  string         `json:"name"`
	State map[string]any `json:"state"`
}

// Abort cancels the assistant's current speech output.
type Abort struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (*Abort) isMessage()          {}
func (*Abort) messageType() string { return TypeAbort }

// Goodbye ends the session from the device side.
type Goodbye struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

func (*Goodbye) isMessage()          {}
func (*Goodbye) messageType() string { return TypeGoodbye }

// Mcp carries a JSON-RPC payload from the device's embedded MCP server.
// The payload is left raw; the MCP bridge owns its framing.
type Mcp struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func (*Mcp) isMessage()          {}
func (*Mcp) messageType() string { return TypeMcp }
