package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/haivivi/giztalk/go/pkg/store"
)

// Provider names recognized by NewGenerator. Anything else is treated as
// OpenAI-compatible, which covers the long tail of hosted endpoints.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// NewGenerator builds the generator a model configuration names.
func NewGenerator(ctx context.Context, cfg *store.ModelConfig) (Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm: nil model config")
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "google":
		return NewGeminiGenerator(ctx, cfg)
	default:
		return NewOpenAIGenerator(cfg)
	}
}
