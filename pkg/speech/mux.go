package speech

import (
	"fmt"

	"github.com/haivivi/giztalk/go/pkg/store"
	"github.com/haivivi/giztalk/go/pkg/trie"
)

// RecognizerBuilder constructs a Recognizer from a provider configuration.
type RecognizerBuilder func(cfg *store.ModelConfig) (Recognizer, error)

// SynthesizerBuilder constructs a Synthesizer from a provider
// configuration and a voice.
type SynthesizerBuilder func(cfg *store.ModelConfig, voice Voice) (Synthesizer, error)

// Mux routes provider names to builders. Providers register themselves at
// startup; the Factory looks them up by the provider string stored in a
// role's model configuration. A provider string may carry a slash-separated
// variant suffix ("doubao/seed-asr"); it routes to the registered family.
type Mux struct {
	rec *trie.Trie[RecognizerBuilder]
	syn *trie.Trie[SynthesizerBuilder]
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{
		rec: trie.New[RecognizerBuilder](),
		syn: trie.New[SynthesizerBuilder](),
	}
}

// HandleRecognizer registers a recognizer builder under name and its
// variant suffixes.
func (m *Mux) HandleRecognizer(name string, b RecognizerBuilder) error {
	if err := m.rec.Set("/"+name, b); err != nil {
		return err
	}
	return m.rec.Set("/"+name+"/#", b)
}

// HandleSynthesizer registers a synthesizer builder under name and its
// variant suffixes.
func (m *Mux) HandleSynthesizer(name string, b SynthesizerBuilder) error {
	if err := m.syn.Set("/"+name, b); err != nil {
		return err
	}
	return m.syn.Set("/"+name+"/#", b)
}

// BuildRecognizer constructs a recognizer for the named provider.
func (m *Mux) BuildRecognizer(name string, cfg *store.ModelConfig) (Recognizer, error) {
	b, ok := m.rec.Get("/" + name)
	if !ok {
		return nil, fmt.Errorf("%w: stt %q", ErrNoProvider, name)
	}
	return b(cfg)
}

// BuildSynthesizer constructs a synthesizer for the named provider.
func (m *Mux) BuildSynthesizer(name string, cfg *store.ModelConfig, voice Voice) (Synthesizer, error) {
	b, ok := m.syn.Get("/" + name)
	if !ok {
		return nil, fmt.Errorf("%w: tts %q", ErrNoProvider, name)
	}
	return b(cfg, voice)
}
