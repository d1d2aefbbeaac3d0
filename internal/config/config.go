// Package config provides configuration management for the graphrag engine.
// It loads settings from environment variables with the GRAPHRAG_ prefix,
// optionally overlaid by a YAML config file, and provides sensible defaults
// for all options.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the graphrag application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Graph     GraphConfig     `yaml:"graph"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Build     BuildConfig     `yaml:"build"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 7474)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"storage_engine"` // Storage engine: sqlite, postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`      // Path to data directory for sqlite (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"`   // Postgres connection string (required for postgres engine)
}

// LLMConfig contains LLM and embedding provider configuration.
type LLMConfig struct {
	Provider           string `yaml:"provider"`             // LLM provider: ollama, openai (default: ollama)
	OllamaURL          string `yaml:"ollama_url"`           // Ollama API URL (default: http://localhost:11434)
	OllamaModel        string `yaml:"ollama_model"`         // Ollama model for extraction and generation (default: qwen2.5:7b)
	OllamaEmbedModel   string `yaml:"ollama_embed_model"`   // Ollama embedding model (default: nomic-embed-text)
	OpenAIAPIKey       string `yaml:"openai_api_key"`       // OpenAI API key
	OpenAIBaseURL      string `yaml:"openai_base_url"`      // OpenAI-compatible base URL (default: https://api.openai.com/v1)
	OpenAIModel        string `yaml:"openai_model"`         // OpenAI model name (default: gpt-4o-mini)
	OpenAIEmbedModel   string `yaml:"openai_embed_model"`   // OpenAI embedding model (default: text-embedding-3-small)
	EmbeddingDimension int    `yaml:"embedding_dimension"`  // Embedding vector dimension (default: 768)
	Temperature        float64 `yaml:"temperature"`         // Generation temperature (default: 0.0)
	MaxTokens          int    `yaml:"max_tokens"`           // Generation max tokens (default: 1024)
	TopP               float64 `yaml:"top_p"`               // Generation nucleus sampling (default: 1.0)
	EmbedRatePerSecond float64 `yaml:"embed_rate_per_sec"`  // Embedding call rate limit (default: 10)
}

// GraphConfig contains the label vocabularies for the knowledge graph.
// Labels outside these vocabularies are rejected at extraction time.
type GraphConfig struct {
	EntityTypes   []string `yaml:"entity_types"`   // Allowed entity type labels
	RelationTypes []string `yaml:"relation_types"` // Allowed relation type labels
}

// RetrievalConfig contains the hybrid retrieval tuning knobs.
type RetrievalConfig struct {
	TopK             int     `yaml:"top_k"`              // Result count per query (default: 5)
	HopLimit         int     `yaml:"hop_limit"`          // Graph expansion depth (default: 2)
	FanoutCap        int     `yaml:"fanout_cap"`         // Max neighbors expanded per node (default: 10)
	OverfetchFactor  int     `yaml:"overfetch_factor"`   // Vector search overfetch multiplier (default: 3)
	VectorWeight     float64 `yaml:"vector_weight"`      // w_v in the combined score (default: 0.7)
	GraphWeight      float64 `yaml:"graph_weight"`       // w_g in the combined score (default: 0.3)
	MaxContextTokens int     `yaml:"max_context_tokens"` // Context window token budget (default: 3000)
}

// BuildConfig contains the build pipeline configuration.
type BuildConfig struct {
	ChunkSize      int `yaml:"chunk_size"`      // Max chunk size in tokens (default: 400)
	ChunkOverlap   int `yaml:"chunk_overlap"`   // Overlap between chunks in tokens (default: 50)
	ExtractWorkers int `yaml:"extract_workers"` // Concurrent extraction workers (default: 4)
	QueueSize      int `yaml:"queue_size"`      // Bounded pipeline queue capacity (default: 32)
}

// DefaultEntityTypes is the default entity label vocabulary.
var DefaultEntityTypes = []string{"Document", "Person", "Organization", "Location", "Concept", "Event"}

// DefaultRelationTypes is the default relation type vocabulary.
var DefaultRelationTypes = []string{"MENTIONS", "RELATED_TO", "PART_OF", "LOCATED_IN", "CREATED_BY"}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the GRAPHRAG_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads configuration from a YAML file layered on top of
// the environment-variable defaults: a value present in the file overrides
// the environment, and anything the file omits keeps its env/default value.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres storage engine requires postgres_dsn")
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown LLM provider %q", c.LLM.Provider)
	}
	if len(c.Graph.EntityTypes) == 0 {
		return fmt.Errorf("config: entity type vocabulary must not be empty")
	}
	if len(c.Graph.RelationTypes) == 0 {
		return fmt.Errorf("config: relation type vocabulary must not be empty")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("config: top_k must be positive")
	}
	if c.Retrieval.HopLimit < 0 {
		return fmt.Errorf("config: hop_limit must not be negative")
	}
	if c.Retrieval.FanoutCap <= 0 {
		return fmt.Errorf("config: fanout_cap must be positive")
	}
	if c.Retrieval.VectorWeight < 0 || c.Retrieval.GraphWeight < 0 {
		return fmt.Errorf("config: ranking weights must not be negative")
	}
	if c.Build.ExtractWorkers <= 0 {
		return fmt.Errorf("config: extract_workers must be positive")
	}
	return nil
}

// buildBaseConfig assembles a config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("GRAPHRAG_PORT", 7474),
			Host: getEnv("GRAPHRAG_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("GRAPHRAG_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("GRAPHRAG_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("GRAPHRAG_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:           getEnv("GRAPHRAG_LLM_PROVIDER", "ollama"),
			OllamaURL:          getEnv("GRAPHRAG_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:        getEnv("GRAPHRAG_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbedModel:   getEnv("GRAPHRAG_OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:       getEnv("GRAPHRAG_OPENAI_API_KEY", ""),
			OpenAIBaseURL:      getEnv("GRAPHRAG_OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:        getEnv("GRAPHRAG_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbedModel:   getEnv("GRAPHRAG_OPENAI_EMBED_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvInt("GRAPHRAG_EMBEDDING_DIMENSION", 768),
			Temperature:        getEnvFloat("GRAPHRAG_TEMPERATURE", 0.0),
			MaxTokens:          getEnvInt("GRAPHRAG_MAX_TOKENS", 1024),
			TopP:               getEnvFloat("GRAPHRAG_TOP_P", 1.0),
			EmbedRatePerSecond: getEnvFloat("GRAPHRAG_EMBED_RATE_PER_SEC", 10),
		},
		Graph: GraphConfig{
			EntityTypes:   DefaultEntityTypes,
			RelationTypes: DefaultRelationTypes,
		},
		Retrieval: RetrievalConfig{
			TopK:             getEnvInt("GRAPHRAG_TOP_K", 5),
			HopLimit:         getEnvInt("GRAPHRAG_HOP_LIMIT", 2),
			FanoutCap:        getEnvInt("GRAPHRAG_FANOUT_CAP", 10),
			OverfetchFactor:  getEnvInt("GRAPHRAG_OVERFETCH_FACTOR", 3),
			VectorWeight:     getEnvFloat("GRAPHRAG_VECTOR_WEIGHT", 0.7),
			GraphWeight:      getEnvFloat("GRAPHRAG_GRAPH_WEIGHT", 0.3),
			MaxContextTokens: getEnvInt("GRAPHRAG_MAX_CONTEXT_TOKENS", 3000),
		},
		Build: BuildConfig{
			ChunkSize:      getEnvInt("GRAPHRAG_CHUNK_SIZE", 400),
			ChunkOverlap:   getEnvInt("GRAPHRAG_CHUNK_OVERLAP", 50),
			ExtractWorkers: getEnvInt("GRAPHRAG_EXTRACT_WORKERS", 4),
			QueueSize:      getEnvInt("GRAPHRAG_QUEUE_SIZE", 32),
		},
	}
}

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable with a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
