package llm

import (
	"fmt"

	"github.com/kgfoundry/graphrag/internal/config"
)

// NewTextGenerator creates the TextGenerator for the configured provider.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	opts := GenerationOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
	}

	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Options:    opts,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:    cfg.OllamaURL,
			Model:      cfg.OllamaModel,
			EmbedModel: cfg.OllamaEmbedModel,
			Options:    opts,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the EmbeddingGenerator for the configured
// provider. Both supported providers serve completions and embeddings from
// the same client type.
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	gen, err := NewTextGenerator(cfg)
	if err != nil {
		return nil, err
	}
	eg, ok := gen.(EmbeddingGenerator)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support embeddings", cfg.Provider)
	}
	return eg, nil
}
