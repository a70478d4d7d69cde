package gateway

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the server configuration, loaded from YAML.
type Config struct {
	ServerHost    string `yaml:"server_host"`
	ServerPort    int    `yaml:"server_port"`
	ServerDomain  string `yaml:"server_domain"`
	WebsocketPath string `yaml:"websocket_path"`

	// AudioPath is the root for per-turn audio artifacts.
	AudioPath string `yaml:"audio_path"`

	// DataPath is the badger database directory.
	DataPath string `yaml:"data_path"`

	CheckInactiveSession   bool `yaml:"check_inactive_session"`
	InactiveTimeoutSeconds int  `yaml:"inactive_timeout_seconds"`

	TtsTimeoutMs               int `yaml:"tts_timeout_ms"`
	TtsMaxRetryCount           int `yaml:"tts_max_retry_count"`
	TtsRetryDelayMs            int `yaml:"tts_retry_delay_ms"`
	TtsMaxConcurrentPerSession int `yaml:"tts_max_concurrent_per_session"`

	VadPrebufferMs             int  `yaml:"vad_prebuffer_ms"`
	VadTailKeepMs              int  `yaml:"vad_tail_keep_ms"`
	VadAudioEnhancementEnabled bool `yaml:"vad_audio_enhancement_enabled"`

	McpMaxToolsCount int `yaml:"mcp_max_tools_count"`

	VoskModelPath string `yaml:"vosk_model_path"`
	VadModelPath  string `yaml:"vad_model_path"`
}

// DefaultConfig returns the configuration used when a key is absent.
func DefaultConfig() Config {
	return Config{
		ServerHost:                 "0.0.0.0",
		ServerPort:                 8091,
		WebsocketPath:              "/ws/giztalk/v1/",
		AudioPath:                  "data/audio",
		DataPath:                   "data/db",
		CheckInactiveSession:       true,
		InactiveTimeoutSeconds:     20,
		TtsTimeoutMs:               10_000,
		TtsMaxRetryCount:           1,
		TtsRetryDelayMs:            1000,
		TtsMaxConcurrentPerSession: 2,
		VadPrebufferMs:             500,
		VadTailKeepMs:              300,
		VadAudioEnhancementEnabled: true,
		McpMaxToolsCount:           32,
	}
}

// LoadConfig reads a YAML file over the defaults. A missing path returns
// the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("gateway: parse %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("gateway: server_port %d out of range", c.ServerPort)
	}
	if c.WebsocketPath == "" || c.WebsocketPath[0] != '/' {
		return fmt.Errorf("gateway: websocket_path %q must start with /", c.WebsocketPath)
	}
	if c.InactiveTimeoutSeconds <= 0 {
		return fmt.Errorf("gateway: inactive_timeout_seconds must be positive")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// InactiveTimeout is the idle cutoff for the session reaper.
func (c Config) InactiveTimeout() time.Duration {
	return time.Duration(c.InactiveTimeoutSeconds) * time.Second
}

// TtsRetryDelay is the wait before a synthesis retry.
func (c Config) TtsRetryDelay() time.Duration {
	return time.Duration(c.TtsRetryDelayMs) * time.Millisecond
}

// TtsTimeout bounds one synthesis call.
func (c Config) TtsTimeout() time.Duration {
	return time.Duration(c.TtsTimeoutMs) * time.Millisecond
}
