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

// OpenAIClient talks to the OpenAI API (or any compatible endpoint) for
// completions and embeddings.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	embedModel string
	options    GenerationOptions
	client     *http.Client
	breaker    *providerBreaker
}

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL allows pointing at OpenAI-compatible endpoints
	// (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the chat model used for completions (default: gpt-4o-mini)
	Model string

	// EmbedModel is the embedding model (default: text-embedding-3-small)
	EmbedModel string

	// Options are the sampling parameters for completions.
	Options GenerationOptions

	// Timeout is the per-request timeout (default: 60s)
	Timeout time.Duration
}

type openaiChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

type openaiEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIClient creates a new OpenAI client, applying defaults for any
// zero-value configuration fields.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	config.Options.normalize()

	return &OpenAIClient{
		apiKey:     config.APIKey,
		baseURL:    config.BaseURL,
		model:      config.Model,
		embedModel: config.EmbedModel,
		options:    config.Options,
		client:     &http.Client{Timeout: config.Timeout},
		breaker:    newProviderBreaker("openai", defaultBreakerConfig),
	}
}

// Complete generates a completion for the given prompt via the chat API.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := openaiChatRequest{
		Model:       c.model,
		Messages:    []openaiMessage{{Role: "user", Content: prompt}},
		Temperature: c.options.Temperature,
		MaxTokens:   c.options.MaxTokens,
		TopP:        c.options.TopP,
	}

	result, err := c.breaker.call(ctx, func() (interface{}, error) {
		var resp openaiChatResponse
		if err := c.postJSON(ctx, "/chat/completions", reqBody, &resp); err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai returned no choices for model %s", c.model)
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := openaiEmbedRequest{
		Model: c.embedModel,
		Input: text,
	}

	result, err := c.breaker.call(ctx, func() (interface{}, error) {
		var resp openaiEmbedResponse
		if err := c.postJSON(ctx, "/embeddings", reqBody, &resp); err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("openai returned empty embedding for model %s", c.embedModel)
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// GetModel returns the completion model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// postJSON marshals body, POSTs it to path with auth headers and decodes the
// response into out. Transport-level failures are wrapped in ErrUnavailable.
func (c *OpenAIClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("openai: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: openai at %s: %v", ErrUnavailable, c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openai: %s returned status %d: %s", path, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openai: decoding %s response: %w", path, err)
	}
	return nil
}
