package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "./configs/config.yaml"

var ErrMissingCredentials = errors.New("missing credentials")

// embeddingDimensions maps known embedding models to their vector size.
var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
}

type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGConfig struct {
	MaxTokens int    `yaml:"max_tokens"`
	Encoding  string `yaml:"encoding"`
	TopK      int    `yaml:"top_k"`
}

type IndexConfig struct {
	Name   string `yaml:"name"`
	Metric string `yaml:"metric"`
	Cloud  string `yaml:"cloud"`
	Region string `yaml:"region"`
}

type UpsertConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Retries     int           `yaml:"retries"`
	Backoff     time.Duration `yaml:"backoff"`
}

type VectorStoreConfig struct {
	Type          string `yaml:"type"`
	Path          string `yaml:"path"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	ExportPath    string `yaml:"export_path"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"`
	Debug    bool   `yaml:"debug"`
}

type Config struct {
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	RAG         RAGConfig         `yaml:"rag"`
	Index       IndexConfig       `yaml:"index"`
	Upsert      UpsertConfig      `yaml:"upsert"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Database    DatabaseConfig    `yaml:"database"`
}

// LoadConfig reads the yaml file at path. A missing file yields the defaults.
// Values from the environment (and a .env file, when present) fill in empty
// credentials.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = getEnv("EMBED_PROVIDER", "")
	}
	if cfg.EmbedLLM.Key == "" {
		cfg.EmbedLLM.Key = getEnv("OPENAI_API_KEY", "")
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == "ollama" {
		cfg.EmbedLLM.BaseURL = getEnv("OLLAMA_HOST", "")
	}
	if cfg.EmbedLLM.Dimension == 0 {
		cfg.EmbedLLM.Dimension = getEnvInt("EMBED_DIM", 0)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = getEnv("DATABASE_URL", "")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = getEnv("DATABASE_PASSWORD", "")
	}
	if cfg.VectorStore.EncryptionKey == "" {
		cfg.VectorStore.EncryptionKey = getEnv("CHROMEM_ENCRYPTION_KEY", "")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "openai"
	}
	if cfg.EmbedLLM.BaseURL == "" {
		switch cfg.EmbedLLM.Provider {
		case "ollama":
			cfg.EmbedLLM.BaseURL = "http://localhost:11434"
		default:
			cfg.EmbedLLM.BaseURL = "https://api.openai.com/v1"
		}
	}
	if cfg.EmbedLLM.Model == "" {
		switch cfg.EmbedLLM.Provider {
		case "ollama":
			cfg.EmbedLLM.Model = "nomic-embed-text"
		default:
			cfg.EmbedLLM.Model = "text-embedding-3-large"
		}
	}
	if cfg.EmbedLLM.Dimension == 0 {
		cfg.EmbedLLM.Dimension = EmbeddingDimension(cfg.EmbedLLM.Model)
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 512
	}

	if cfg.RAG.MaxTokens == 0 {
		cfg.RAG.MaxTokens = 1000
	}
	if cfg.RAG.Encoding == "" {
		cfg.RAG.Encoding = "cl100k_base"
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 3
	}

	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Index.Cloud == "" {
		cfg.Index.Cloud = "aws"
	}
	if cfg.Index.Region == "" {
		cfg.Index.Region = "us-east-1"
	}

	if cfg.Upsert.BatchSize == 0 {
		cfg.Upsert.BatchSize = 100
	}
	if cfg.Upsert.Concurrency == 0 {
		cfg.Upsert.Concurrency = 1
	}
	if cfg.Upsert.Backoff == 0 {
		cfg.Upsert.Backoff = 500 * time.Millisecond
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Path == "" && !cfg.VectorStore.InMemory {
		cfg.VectorStore.Path = "./data/chromem"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
}

// EmbeddingDimension returns the vector size of a known model, or 3072.
func EmbeddingDimension(model string) int {
	if d, ok := embeddingDimensions[model]; ok {
		return d
	}
	return 3072
}

// Validate checks the settings needed before any document is processed.
func (c *Config) Validate() error {
	switch c.EmbedLLM.Provider {
	case "openai":
		if c.EmbedLLM.Key == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredentials)
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbedLLM.Provider)
	}

	switch c.VectorStore.Type {
	case "chromem":
		if k := c.VectorStore.EncryptionKey; k != "" && len(k) != 32 {
			return fmt.Errorf("vector_store.encryption_key must be 32 bytes, got %d", len(k))
		}
	case "pgvector":
		if c.Database.URL == "" {
			return fmt.Errorf("%w: DATABASE_URL is not set", ErrMissingCredentials)
		}
		if c.Database.Driver != "pgdriver" && c.Database.Driver != "pq" {
			return fmt.Errorf("unknown database driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown vector store type %q", c.VectorStore.Type)
	}

	if c.RAG.MaxTokens <= 0 {
		return fmt.Errorf("rag.max_tokens must be positive, got %d", c.RAG.MaxTokens)
	}
	if c.EmbedLLM.Dimension <= 0 {
		return fmt.Errorf("embed_llm.dimension must be positive, got %d", c.EmbedLLM.Dimension)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
