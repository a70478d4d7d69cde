package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestOutputYAML(t *testing.T) {
	var buf bytes.Buffer
	err := Output(map[string]any{"name": "小助手", "window": 16}, OutputOptions{
		Format: FormatYAML,
		Writer: &buf,
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "name:") || !strings.Contains(out, "window: 16") {
		t.Errorf("yaml output = %q", out)
	}
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	err := Output(map[string]int{"count": 3}, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["count"] != 3 {
		t.Errorf("json output = %v", got)
	}
}

func TestOutputRawString(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("plain text", OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "plain text" {
		t.Errorf("raw output = %q", buf.String())
	}
}

func TestOutputUnsupportedFormat(t *testing.T) {
	if err := Output("x", OutputOptions{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Error("unsupported format accepted")
	}
}
