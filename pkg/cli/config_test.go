package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"1234", "****"},
		{"12345678", "********"},
		{"123456789", "1234*6789"},
		{"abcdefghij", "abcd**ghij"},
		{"sk-1234567890abcdef", "sk-1***********cdef"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := MaskAPIKey(tt.key); got != tt.want {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestConfigContexts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.AddContext("dev", &Context{
		ServerURL: "ws://localhost:8091/ws/giztalk/v1/",
		DeviceID:  "user_chat_u1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.UseContext("dev"); err != nil {
		t.Fatal(err)
	}

	// Reload from disk and check persistence.
	cfg2, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := cfg2.GetCurrentContext()
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Name != "dev" || ctx.DeviceID != "user_chat_u1" {
		t.Errorf("reloaded context = %+v", ctx)
	}

	if _, err := cfg2.ResolveContext("missing"); err == nil {
		t.Error("ResolveContext on unknown name should fail")
	}
	if got, err := cfg2.ResolveContext(""); err != nil || got.Name != "dev" {
		t.Errorf("ResolveContext(\"\") = %v, %v", got, err)
	}

	if err := cfg2.DeleteContext("dev"); err != nil {
		t.Fatal(err)
	}
	if cfg2.CurrentContext != "" {
		t.Error("deleting the current context should clear it")
	}
}

func TestConfigUseUnknownContext(t *testing.T) {
	cfg, err := LoadConfigWithPath(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.UseContext("nope"); err == nil {
		t.Error("UseContext on unknown name should fail")
	}
}

func TestContextExtra(t *testing.T) {
	ctx := &Context{Name: "test"}
	if got := ctx.GetExtra("missing"); got != "" {
		t.Errorf("GetExtra on nil map = %q", got)
	}
	ctx.SetExtra("voice", "zh-CN-XiaoxiaoNeural")
	if got := ctx.GetExtra("voice"); got != "zh-CN-XiaoxiaoNeural" {
		t.Errorf("GetExtra = %q", got)
	}
}

func TestLoadConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := LoadConfigWithPath(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}
