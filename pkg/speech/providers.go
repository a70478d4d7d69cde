package speech

import "github.com/haivivi/giztalk/go/pkg/store"

// Provider names accepted in model configurations.
const (
	ProviderEdge    = "edge"
	ProviderMinimax = "minimax"
	ProviderDoubao  = "doubao"
	ProviderVosk    = "vosk"
)

// RegisterProviders wires the built-in providers onto m. TTS providers
// write their audio files under audioDir. The vosk recognizer is not
// registered here; it is the factory default and loads its model once at
// startup.
func RegisterProviders(m *Mux, audioDir string) {
	m.HandleRecognizer(ProviderDoubao, NewDoubaoRecognizer)
	m.HandleSynthesizer(ProviderEdge, NewEdgeSynthesizerFromConfig(audioDir))
	m.HandleSynthesizer(ProviderMinimax, func(cfg *store.ModelConfig, voice Voice) (Synthesizer, error) {
		return NewMinimaxSynthesizer(audioDir, cfg, voice)
	})
}
