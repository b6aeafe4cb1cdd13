package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	GeminiModel     string `yaml:"gemini_model"`

	EmbeddingProvider  string  `yaml:"embedding_provider"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	EmbeddingDimension int     `yaml:"embedding_dimension"`
	EmbeddingCacheSize int     `yaml:"embedding_cache_size"`
	EmbeddingRPS       float64 `yaml:"embedding_rps"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MaxResults   int `yaml:"max_results"`
	MaxHistory   int `yaml:"max_history"`
	MaxTokens    int `yaml:"max_tokens"`

	IndexPath string `yaml:"index_path"`
	DocsPath  string `yaml:"docs_path"`
	HTTPPort  string `yaml:"http_port"`
	LogLevel  string `yaml:"log_level"`
	LogMode   string `yaml:"log_mode"`
}

// Default returns the built-in settings used when neither a config file nor
// the environment overrides them.
func Default() Config {
	return Config{
		LLMProvider:        "anthropic",
		AnthropicModel:     "claude-sonnet-4-20250514",
		GeminiModel:        "gemini-1.5-flash-latest",
		EmbeddingProvider:  "local",
		EmbeddingModel:     "text-embedding-004",
		EmbeddingDimension: 384,
		EmbeddingCacheSize: 1024,
		EmbeddingRPS:       25,
		ChunkSize:          800,
		ChunkOverlap:       100,
		MaxResults:         5,
		MaxHistory:         2,
		MaxTokens:          800,
		IndexPath:          "./course_index.db",
		DocsPath:           "../docs",
		HTTPPort:           "8000",
		LogLevel:           "INFO",
		LogMode:            "development",
	}
}

// LoadConfig layers defaults, an optional YAML file and the environment
// (including a .env file, if present), in that order.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = getEnv("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDimension = getEnvAsInt("EMBEDDING_DIMENSION", cfg.EmbeddingDimension)
	cfg.EmbeddingCacheSize = getEnvAsInt("EMBEDDING_CACHE_SIZE", cfg.EmbeddingCacheSize)
	cfg.EmbeddingRPS = getEnvAsFloat("EMBEDDING_RPS", cfg.EmbeddingRPS)
	cfg.ChunkSize = getEnvAsInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.MaxResults = getEnvAsInt("MAX_RESULTS", cfg.MaxResults)
	cfg.MaxHistory = getEnvAsInt("MAX_HISTORY", cfg.MaxHistory)
	cfg.MaxTokens = getEnvAsInt("MAX_TOKENS", cfg.MaxTokens)
	cfg.IndexPath = getEnv("INDEX_PATH", cfg.IndexPath)
	cfg.DocsPath = getEnv("DOCS_PATH", cfg.DocsPath)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogMode = getEnv("LOG_MODE", cfg.LogMode)

	return &cfg, nil
}

// Validate reports settings that would make the service unusable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLMProvider) {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}

	switch strings.ToLower(c.EmbeddingProvider) {
	case "local":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for gemini embeddings")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", c.MaxResults)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
