// Package store persists the records behind the conversational core:
// devices, assistant roles, provider configurations, and chat history.
//
// Records are msgpack-encoded into a kv.Store. Chat messages are keyed
// by zero-padded create time so a prefix scan returns them in
// chronological order.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/haivivi/giztalk/go/pkg/kv"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = kv.ErrNotFound

// DeviceState is the lifecycle state of a device.
type DeviceState int

// Device states.
const (
	DeviceOffline DeviceState = 0
	DeviceOnline  DeviceState = 1
	DeviceStandby DeviceState = 2
)

// String returns the state name.
func (s DeviceState) String() string {
	switch s {
	case DeviceOffline:
		return "offline"
	case DeviceOnline:
		return "online"
	case DeviceStandby:
		return "standby"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON implements json.Marshaler, emitting the state name.
func (s DeviceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler, accepting either the state
// name or the numeric form.
func (s *DeviceState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		switch name {
		case "offline":
			*s = DeviceOffline
		case "online":
			*s = DeviceOnline
		case "standby":
			*s = DeviceStandby
		default:
			return fmt.Errorf("store: unknown device state %q", name)
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = DeviceState(n)
	return nil
}

// Device is a bound client device. Hardware device ids are MAC
// addresses; virtual devices created for in-app chat use the
// "user_chat_" prefix and bind automatically.
type Device struct {
	ID        string      `json:"id" msgpack:"id"`
	UserID    string      `json:"user_id,omitempty" msgpack:"uid,omitempty"`
	RoleID    string      `json:"role_id,omitempty" msgpack:"rid,omitempty"`
	Alias     string      `json:"alias,omitempty" msgpack:"alias,omitempty"`
	State     DeviceState `json:"state" msgpack:"state"`
	LastLogin int64       `json:"last_login,omitempty" msgpack:"last_login,omitempty"`
}

// VirtualDevicePrefix marks app-side virtual devices.
const VirtualDevicePrefix = "user_chat_"

// IsVirtual reports whether the device is an app-side virtual device.
func (d *Device) IsVirtual() bool {
	return len(d.ID) > len(VirtualDevicePrefix) && d.ID[:len(VirtualDevicePrefix)] == VirtualDevicePrefix
}

// Role is an assistant persona: system prompt, voice, and the provider
// configurations its sessions use.
type Role struct {
	ID            string  `json:"id" msgpack:"id"`
	UserID        string  `json:"user_id,omitempty" msgpack:"uid,omitempty"`
	Name          string  `json:"name" msgpack:"name"`
	Desc          string  `json:"desc,omitempty" msgpack:"desc,omitempty"`
	VoiceName     string  `json:"voice_name,omitempty" msgpack:"voice,omitempty"`
	TtsPitch      float64 `json:"tts_pitch,omitempty" msgpack:"pitch,omitempty"`
	TtsSpeed      float64 `json:"tts_speed,omitempty" msgpack:"speed,omitempty"`
	TtsConfigID   string  `json:"tts_config_id,omitempty" msgpack:"tts_cfg,omitempty"`
	SttConfigID   string  `json:"stt_config_id,omitempty" msgpack:"stt_cfg,omitempty"`
	ModelConfigID string  `json:"model_config_id,omitempty" msgpack:"model_cfg,omitempty"`
	MemoryMax     int     `json:"memory_max,omitempty" msgpack:"mem_max,omitempty"`
}

// ModelConfig holds the connection settings of one provider endpoint.
// ModelType distinguishes chat, stt and tts configurations.
type ModelConfig struct {
	ID        string            `json:"id" msgpack:"id"`
	Name      string            `json:"name,omitempty" msgpack:"name,omitempty"`
	Provider  string            `json:"provider" msgpack:"provider"`
	ModelType string            `json:"model_type,omitempty" msgpack:"mtype,omitempty"`
	Model     string            `json:"model,omitempty" msgpack:"model,omitempty"`
	APIURL    string            `json:"api_url,omitempty" msgpack:"url,omitempty"`
	APIKey    string            `json:"api_key,omitempty" msgpack:"key,omitempty"`
	APISecret string            `json:"api_secret,omitempty" msgpack:"secret,omitempty"`
	AppID     string            `json:"app_id,omitempty" msgpack:"app,omitempty"`
	Extra     map[string]string `json:"extra,omitempty" msgpack:"extra,omitempty"`
}

// Model config types.
const (
	ModelTypeChat = "chat"
	ModelTypeStt  = "stt"
	ModelTypeTts  = "tts"
)

// Sender identifies who produced a chat message.
type Sender string

// Senders.
const (
	SenderUser      Sender = "USER"
	SenderAssistant Sender = "ASSISTANT"
)

// MessageKind classifies a persisted chat message.
//
// Function-call turns are persisted for auditing but excluded when
// rebuilding the conversation window.
type MessageKind string

// Message kinds.
const (
	KindNormal       MessageKind = "NORMAL"
	KindFunctionCall MessageKind = "FUNCTION_CALL"
)

// Message is one persisted chat turn.
type Message struct {
	DeviceID   string      `json:"device_id" msgpack:"did"`
	SessionID  string      `json:"session_id,omitempty" msgpack:"sid,omitempty"`
	RoleID     string      `json:"role_id" msgpack:"rid"`
	Sender     Sender      `json:"sender" msgpack:"sender"`
	Content    string      `json:"content" msgpack:"content"`
	Kind       MessageKind `json:"kind" msgpack:"kind"`
	CreateTime int64       `json:"create_time" msgpack:"ct"`
	AudioPath  string      `json:"audio_path,omitempty" msgpack:"audio,omitempty"`
}
