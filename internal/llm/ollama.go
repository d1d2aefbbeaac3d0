package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient talks to a local Ollama instance for both completions and
// embeddings. All HTTP calls go through a circuit breaker so a stopped
// daemon fails fast instead of stacking up timeouts.
type OllamaClient struct {
	baseURL    string
	model      string
	embedModel string
	options    GenerationOptions
	client     *http.Client
	breaker    *providerBreaker
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model used for completions (default: qwen2.5:7b)
	Model string

	// EmbedModel is the model used for embeddings (default: nomic-embed-text)
	EmbedModel string

	// Options are the sampling parameters for completions.
	Options GenerationOptions

	// Timeout is the per-request timeout (default: 120s; local models are slow)
	Timeout time.Duration
}

// ollamaGenerateRequest is the body for /api/generate.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaGenerateResponse is the response from /api/generate.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ollamaEmbedRequest is the body for /api/embed.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResponse is the response from /api/embed.
// The embeddings field is a 2D array; we always use the first embedding.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client, applying defaults for any
// zero-value configuration fields.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "nomic-embed-text"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	config.Options.normalize()

	return &OllamaClient{
		baseURL:    config.BaseURL,
		model:      config.Model,
		embedModel: config.EmbedModel,
		options:    config.Options,
		client:     &http.Client{Timeout: config.Timeout},
		breaker:    newProviderBreaker("ollama", defaultBreakerConfig),
	}
}

// Complete generates a completion for the given prompt.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": c.options.Temperature,
			"num_predict": c.options.MaxTokens,
			"top_p":       c.options.TopP,
		},
	}

	result, err := c.breaker.call(ctx, func() (interface{}, error) {
		var resp ollamaGenerateResponse
		if err := c.postJSON(ctx, "/api/generate", reqBody, &resp); err != nil {
			return nil, err
		}
		return resp.Response, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Embed generates an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbedRequest{
		Model: c.embedModel,
		Input: text,
	}

	result, err := c.breaker.call(ctx, func() (interface{}, error) {
		var resp ollamaEmbedResponse
		if err := c.postJSON(ctx, "/api/embed", reqBody, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding for model %s", c.embedModel)
		}
		return resp.Embeddings[0], nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// GetModel returns the completion model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// postJSON marshals body, POSTs it to path and decodes the response into out.
// Transport-level failures are wrapped in ErrUnavailable.
func (c *OllamaClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ollama: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ollama: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: ollama at %s: %v", ErrUnavailable, c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama: %s returned status %d: %s", path, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decoding %s response: %w", path, err)
	}
	return nil
}
