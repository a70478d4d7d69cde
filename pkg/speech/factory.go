package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/giztalk/go/pkg/store"
)

// Factory resolves the speech adapters a session needs from its role's
// model configurations.
//
// Built adapters are cached: recognizers by (provider, configID),
// synthesizers by (provider, configID, voice, pitch, speed). An unknown or
// failing provider resolves to the default adapter with a warning, never an
// error, so a misconfigured role still talks. Safe for concurrent use;
// cached entries are immutable once created.
type Factory struct {
	mux *Mux
	log *slog.Logger

	defaultRec Recognizer
	defaultSyn Synthesizer

	mu          sync.Mutex
	recognizers map[string]Recognizer
	synthesizers map[string]Synthesizer
}

// FactoryOptions configure a Factory.
type FactoryOptions struct {
	// Mux supplies the provider builders. Nil means only the defaults are
	// available.
	Mux *Mux

	// DefaultRecognizer serves unknown/unset STT providers. Required.
	DefaultRecognizer Recognizer

	// DefaultSynthesizer serves unknown/unset TTS providers and is the
	// fallback target when a built synthesizer fails. Required.
	DefaultSynthesizer Synthesizer

	Logger *slog.Logger
}

// NewFactory creates a Factory.
func NewFactory(opts FactoryOptions) (*Factory, error) {
	if opts.DefaultRecognizer == nil {
		return nil, fmt.Errorf("speech: default recognizer is required")
	}
	if opts.DefaultSynthesizer == nil {
		return nil, fmt.Errorf("speech: default synthesizer is required")
	}
	if opts.Mux == nil {
		opts.Mux = NewMux()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Factory{
		mux:          opts.Mux,
		log:          opts.Logger,
		defaultRec:   opts.DefaultRecognizer,
		defaultSyn:   opts.DefaultSynthesizer,
		recognizers:  make(map[string]Recognizer),
		synthesizers: make(map[string]Synthesizer),
	}, nil
}

// Recognizer returns the recognizer for cfg, or the default when cfg is
// nil or its provider is unknown.
func (f *Factory) Recognizer(cfg *store.ModelConfig) Recognizer {
	if cfg == nil || cfg.Provider == "" {
		return f.defaultRec
	}
	key := cfg.Provider + ":" + cfg.ID

	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.recognizers[key]; ok {
		return r
	}
	r, err := f.mux.BuildRecognizer(cfg.Provider, cfg)
	if err != nil {
		f.log.Warn("stt provider unavailable, using default",
			"provider", cfg.Provider, "config", cfg.ID, "err", err)
		r = f.defaultRec
	}
	f.recognizers[key] = r
	return r
}

// Synthesizer returns the synthesizer for (cfg, voice) wrapped with the
// default fallback, or the bare default when cfg is nil or its provider is
// unknown.
func (f *Factory) Synthesizer(cfg *store.ModelConfig, voice Voice) Synthesizer {
	voice = voice.withDefaults()
	if cfg == nil || cfg.Provider == "" {
		return f.defaultSyn
	}
	key := fmt.Sprintf("%s:%s:%s:%.2f:%.2f", cfg.Provider, cfg.ID, voice.Name, voice.Pitch, voice.Speed)

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.synthesizers[key]; ok {
		return s
	}
	s, err := f.mux.BuildSynthesizer(cfg.Provider, cfg, voice)
	if err != nil {
		f.log.Warn("tts provider unavailable, using default",
			"provider", cfg.Provider, "config", cfg.ID, "err", err)
		s = f.defaultSyn
	} else {
		s = &fallbackSynthesizer{primary: s, fallback: f.defaultSyn, log: f.log}
	}
	f.synthesizers[key] = s
	return s
}

// fallbackSynthesizer retries a failed synthesis on the default provider,
// so provider failures surface to the pipeline only when the default fails
// too.
type fallbackSynthesizer struct {
	primary  Synthesizer
	fallback Synthesizer
	log      *slog.Logger
}

func (s *fallbackSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	path, err := s.primary.Synthesize(ctx, text)
	if err == nil {
		return path, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	s.log.Warn("tts synthesis failed, falling back to default", "err", err)
	return s.fallback.Synthesize(ctx, text)
}
