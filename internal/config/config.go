// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the merged configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Corpus       CorpusConfig       `yaml:"corpus"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Index        IndexConfig        `yaml:"index"`
	Generation   GenerationConfig   `yaml:"generation"`
	Response     ResponseConfig     `yaml:"response"`
	Conversation ConversationConfig `yaml:"conversation"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Anthropic    AnthropicConfig    `yaml:"anthropic"`
	Ollama       OllamaConfig       `yaml:"ollama"`
	GitHub       GitHubConfig       `yaml:"github"`
	Log          LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string      `yaml:"allowed_origins" validate:"min=1"`
	InitMode       string        `yaml:"init_mode" validate:"oneof=eager lazy"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"min=0"`
	MCPEnabled     bool          `yaml:"mcp_enabled"`
	MCPStdio       bool          `yaml:"mcp_stdio"`
	MCPStateless   bool          `yaml:"mcp_stateless"`
}

type CorpusConfig struct {
	ChunksDir       string `yaml:"chunks_dir" validate:"required"`
	MaxChunkSize    int    `yaml:"max_chunk_size" validate:"min=1"`
	MaxTotalChunks  int    `yaml:"max_total_chunks" validate:"min=0"`
	ChunksPerSource int    `yaml:"chunks_per_source" validate:"min=0"`
}

type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" validate:"oneof=hash openai ollama"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension" validate:"min=0"`
	BatchSize         int     `yaml:"batch_size" validate:"min=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
}

type IndexConfig struct {
	Backend          string `yaml:"backend" validate:"oneof=memory chromem qdrant pgvector"`
	TopK             int    `yaml:"top_k" validate:"min=1"`
	Rebuild          bool   `yaml:"rebuild"`
	ChromemPath      string `yaml:"chromem_path"`
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port" validate:"min=0,max=65535"`
	QdrantCollection string `yaml:"qdrant_collection"`
	DatabaseURL      string `yaml:"database_url"`
	DatabaseDebug    bool   `yaml:"database_debug"`
}

type GenerationConfig struct {
	Provider          string        `yaml:"provider" validate:"oneof=none openai anthropic ollama"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout" validate:"min=0"`
	MaxTokens         int           `yaml:"max_tokens" validate:"min=1"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"min=0"`
}

type ResponseConfig struct {
	MaxChars     int `yaml:"max_chars" validate:"min=0"`
	MaxSentences int `yaml:"max_sentences" validate:"min=1"`
}

type ConversationConfig struct {
	MaxTurns    int `yaml:"max_turns" validate:"min=0"`
	MaxSessions int `yaml:"max_sessions" validate:"min=1"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

type OllamaConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           7860,
			AllowedOrigins: []string{"*"},
			InitMode:       "eager",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
			MCPEnabled:     true,
		},
		Corpus: CorpusConfig{
			ChunksDir:    "output/rag_chunks",
			MaxChunkSize: 512,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Dimension: 384,
			BatchSize: 64,
		},
		Index: IndexConfig{
			Backend:          "memory",
			TopK:             2,
			ChromemPath:      "output/chromem",
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: "got_chunks",
		},
		Generation: GenerationConfig{
			Provider:  "none",
			Timeout:   30 * time.Second,
			MaxTokens: 512,
		},
		Response: ResponseConfig{
			MaxChars:     1000,
			MaxSentences: 8,
		},
		Conversation: ConversationConfig{
			MaxTurns:    10,
			MaxSessions: 1000,
		},
		Ollama: OllamaConfig{URL: "http://localhost:11434"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration. path may be empty; a named file that cannot
// be read is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.InitMode = strings.ToLower(getEnv("INIT_MODE", c.Server.InitMode))
	c.Server.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.MCPEnabled = getEnvBool("MCP_ENABLED", c.Server.MCPEnabled)
	c.Server.MCPStdio = getEnvBool("MCP_STDIO", c.Server.MCPStdio)
	c.Server.MCPStateless = getEnvBool("MCP_STATELESS", c.Server.MCPStateless)

	c.Corpus.ChunksDir = getEnv("CHUNKS_DIR", c.Corpus.ChunksDir)
	c.Corpus.MaxChunkSize = getEnvInt("MAX_CHUNK_SIZE", c.Corpus.MaxChunkSize)
	c.Corpus.MaxTotalChunks = getEnvInt("MAX_TOTAL_CHUNKS", c.Corpus.MaxTotalChunks)
	c.Corpus.ChunksPerSource = getEnvInt("CHUNKS_PER_SOURCE", c.Corpus.ChunksPerSource)

	c.Embedding.Provider = strings.ToLower(getEnv("EMBEDDER", c.Embedding.Provider))
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getEnvInt("EMBEDDING_DIM", c.Embedding.Dimension)
	c.Embedding.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", c.Embedding.BatchSize)
	c.Embedding.RequestsPerSecond = getEnvFloat("EMBEDDING_RPS", c.Embedding.RequestsPerSecond)

	c.Index.Backend = strings.ToLower(getEnv("INDEX_BACKEND", c.Index.Backend))
	c.Index.TopK = getEnvInt("TOP_K", c.Index.TopK)
	c.Index.Rebuild = getEnvBool("INDEX_REBUILD", c.Index.Rebuild)
	c.Index.ChromemPath = getEnv("CHROMEM_PATH", c.Index.ChromemPath)
	c.Index.QdrantHost = getEnv("QDRANT_HOST", c.Index.QdrantHost)
	c.Index.QdrantPort = getEnvInt("QDRANT_PORT", c.Index.QdrantPort)
	c.Index.QdrantCollection = getEnv("QDRANT_COLLECTION", c.Index.QdrantCollection)
	c.Index.DatabaseURL = getEnv("DATABASE_URL", c.Index.DatabaseURL)
	c.Index.DatabaseDebug = getEnvBool("DATABASE_DEBUG", c.Index.DatabaseDebug)

	c.Generation.Provider = strings.ToLower(getEnv("GENERATOR", c.Generation.Provider))
	c.Generation.Model = getEnv("GENERATION_MODEL", c.Generation.Model)
	c.Generation.Timeout = getEnvDuration("GENERATION_TIMEOUT", c.Generation.Timeout)
	c.Generation.MaxTokens = getEnvInt("GENERATION_MAX_TOKENS", c.Generation.MaxTokens)
	c.Generation.RequestsPerSecond = getEnvFloat("GENERATION_RPS", c.Generation.RequestsPerSecond)

	c.Response.MaxChars = getEnvInt("RESPONSE_MAX_CHARS", c.Response.MaxChars)
	c.Response.MaxSentences = getEnvInt("RESPONSE_MAX_SENTENCES", c.Response.MaxSentences)

	c.Conversation.MaxTurns = getEnvInt("MEMORY_MAX_TURNS", c.Conversation.MaxTurns)
	c.Conversation.MaxSessions = getEnvInt("MEMORY_MAX_SESSIONS", c.Conversation.MaxSessions)

	c.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.Anthropic.APIKey = getEnv("ANTHROPIC_API_KEY", c.Anthropic.APIKey)
	c.Ollama.URL = getEnv("OLLAMA_URL", c.Ollama.URL)
	c.GitHub.Token = getEnv("GITHUB_TOKEN", c.GitHub.Token)
	c.GitHub.BaseURL = getEnv("GITHUB_API_URL", c.GitHub.BaseURL)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Embedding.Provider == "openai" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai embedder", ErrInvalidConfig)
	}
	if c.Generation.Provider == "openai" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai generator", ErrInvalidConfig)
	}
	if c.Generation.Provider == "anthropic" && c.Anthropic.APIKey == "" {
		return fmt.Errorf("%w: ANTHROPIC_API_KEY is required for the anthropic generator", ErrInvalidConfig)
	}
	if c.Embedding.Provider == "ollama" && c.Embedding.Model == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL is required for the ollama embedder", ErrInvalidConfig)
	}
	if c.Embedding.Provider == "hash" && c.Embedding.Dimension < 1 {
		return fmt.Errorf("%w: EMBEDDING_DIM must be positive for the hash embedder", ErrInvalidConfig)
	}
	if c.Index.Backend == "pgvector" && c.Index.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required for the pgvector backend", ErrInvalidConfig)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return "0.0.0.0:" + strconv.Itoa(c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
