package llm

import (
	"context"
	"errors"
)

// ErrUnavailable indicates that the LLM or embedding collaborator could not
// be reached. Callers match it with errors.Is to distinguish transport
// failures from bad responses.
var ErrUnavailable = errors.New("llm provider unavailable")

// TextGenerator is the interface for LLM text completion.
// Extraction and answer generation both use single-string completion style.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Implementations return fixed-length float32 vectors.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// GenerationOptions are the sampling parameters applied to completion calls.
// They are set once at client construction by the caller.
type GenerationOptions struct {
	Temperature float64 // Sampling temperature (default: 0)
	MaxTokens   int     // Max tokens to generate (default: 1024)
	TopP        float64 // Nucleus sampling parameter (default: 1.0)
}

// normalize fills in zero-value defaults.
func (o *GenerationOptions) normalize() {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	if o.TopP <= 0 {
		o.TopP = 1.0
	}
}
