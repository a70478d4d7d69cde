package storage

import (
	"fmt"
	"strings"
	"time"
)

// Who labels the speaker of an audio artifact.
const (
	WhoUser      = "user"
	WhoAssistant = "assistant"
)

// AudioPath builds the store-relative path of one turn's audio artifact:
// {device}/{role}/{timestamp}-{who}.{ext}. Device MACs have their colons
// replaced so the id stays filesystem-safe; the timestamp is second
// precision local time with colons stripped.
func AudioPath(deviceID, roleID string, at time.Time, who, ext string) string {
	device := strings.ReplaceAll(deviceID, ":", "-")
	if roleID == "" {
		roleID = "unknown"
	}
	ts := strings.ReplaceAll(at.Format("2006-01-02T15:04:05"), ":", "")
	return fmt.Sprintf("%s/%s/%s-%s.%s", device, roleID, ts, who, ext)
}

// UserAudioPath is AudioPath for the user's captured WAV.
func UserAudioPath(deviceID, roleID string, at time.Time) string {
	return AudioPath(deviceID, roleID, at, WhoUser, "wav")
}

// AssistantAudioPath is AudioPath for the assistant's merged Opus file.
func AssistantAudioPath(deviceID, roleID string, at time.Time) string {
	return AudioPath(deviceID, roleID, at, WhoAssistant, "opus")
}
