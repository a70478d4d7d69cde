package vosk

import (
	"os"
	"testing"
)

func TestTextField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		key  string
		want string
	}{
		{"final result", `{"text": "你好 世界"}`, "text", "你好 世界"},
		{"partial result", `{"partial": "你好"}`, "partial", "你好"},
		{"missing key", `{"text": "hi"}`, "partial", ""},
		{"empty object", `{}`, "text", ""},
		{"malformed", `{"text": `, "text", ""},
		{"wrong type", `{"text": 42}`, "text", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textField(tt.raw, tt.key); got != tt.want {
				t.Errorf("textField(%q, %q) = %q, want %q", tt.raw, tt.key, got, tt.want)
			}
		})
	}
}

// TestRecognizeSilence needs a real model; point VOSK_MODEL_DIR at one to
// run it.
func TestRecognizeSilence(t *testing.T) {
	dir := os.Getenv("VOSK_MODEL_DIR")
	if dir == "" {
		t.Skip("VOSK_MODEL_DIR not set")
	}

	model, err := NewModel(dir)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	defer model.Close()

	rec, err := NewRecognizer(model, 16000)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer rec.Close()

	// One second of silence must decode without error and to no text.
	if _, err := rec.AcceptWaveform(make([]byte, 32000)); err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if got := rec.FinalResult(); got != "" {
		t.Errorf("FinalResult() = %q for silence, want empty", got)
	}
}

func TestClosedRecognizer(t *testing.T) {
	dir := os.Getenv("VOSK_MODEL_DIR")
	if dir == "" {
		t.Skip("VOSK_MODEL_DIR not set")
	}

	model, err := NewModel(dir)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	defer model.Close()

	rec, err := NewRecognizer(model, 16000)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	rec.Close()

	if _, err := rec.AcceptWaveform(make([]byte, 960)); err == nil {
		t.Error("AcceptWaveform on closed recognizer succeeded, want error")
	}
	if got := rec.FinalResult(); got != "" {
		t.Errorf("FinalResult() on closed recognizer = %q, want empty", got)
	}

	if _, err := NewRecognizer(&Model{}, 16000); err == nil {
		t.Error("NewRecognizer on closed model succeeded, want error")
	}
}
