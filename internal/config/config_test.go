package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EMBED_PROVIDER", "OPENAI_API_KEY", "OLLAMA_HOST", "EMBED_DIM",
		"DATABASE_URL", "DATABASE_PASSWORD", "CHROMEM_ENCRYPTION_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.EmbedLLM.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.EmbedLLM.Model)
	assert.Equal(t, 3072, cfg.EmbedLLM.Dimension)
	assert.Equal(t, 1000, cfg.RAG.MaxTokens)
	assert.Equal(t, "cl100k_base", cfg.RAG.Encoding)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, "cosine", cfg.Index.Metric)
	assert.Equal(t, "aws", cfg.Index.Cloud)
	assert.Equal(t, "us-east-1", cfg.Index.Region)
	assert.Equal(t, 100, cfg.Upsert.BatchSize)
	assert.Equal(t, 1, cfg.Upsert.Concurrency)
	assert.Equal(t, "chromem", cfg.VectorStore.Type)
	assert.Equal(t, "pgdriver", cfg.Database.Driver)
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
embed_llm:
  provider: ollama
  model: mxbai-embed-large
rag:
  max_tokens: 256
  encoding: runes
upsert:
  batch_size: 25
  concurrency: 4
  retries: 2
  backoff: 2s
vector_store:
  type: pgvector
database:
  url: postgres://localhost/db
  driver: pq
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.EmbedLLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.EmbedLLM.BaseURL)
	assert.Equal(t, 1024, cfg.EmbedLLM.Dimension)
	assert.Equal(t, 256, cfg.RAG.MaxTokens)
	assert.Equal(t, "runes", cfg.RAG.Encoding)
	assert.Equal(t, 25, cfg.Upsert.BatchSize)
	assert.Equal(t, 4, cfg.Upsert.Concurrency)
	assert.Equal(t, 2, cfg.Upsert.Retries)
	assert.Equal(t, 2*time.Second, cfg.Upsert.Backoff)
	assert.Equal(t, "pgvector", cfg.VectorStore.Type)
	assert.Equal(t, "pq", cfg.Database.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "rag: [unterminated")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	path := writeConfig(t, "vector_store:\n  type: pgvector\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.EmbedLLM.Key)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileWinsOverEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := writeConfig(t, "embed_llm:\n  key: sk-file\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.EmbedLLM.Key)
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		errText string
	}{
		{
			name:   "openai with key",
			mutate: func(c *Config) { c.EmbedLLM.Key = "sk" },
		},
		{
			name:    "openai without key",
			mutate:  func(c *Config) {},
			wantErr: ErrMissingCredentials,
		},
		{
			name: "pgvector without url",
			mutate: func(c *Config) {
				c.EmbedLLM.Key = "sk"
				c.VectorStore.Type = "pgvector"
			},
			wantErr: ErrMissingCredentials,
		},
		{
			name: "ollama needs no key",
			mutate: func(c *Config) {
				c.EmbedLLM.Provider = "ollama"
			},
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.EmbedLLM.Provider = "bogus" },
			errText: "unknown embedding provider",
		},
		{
			name: "unknown store",
			mutate: func(c *Config) {
				c.EmbedLLM.Key = "sk"
				c.VectorStore.Type = "pinecone"
			},
			errText: "unknown vector store type",
		},
		{
			name: "short encryption key",
			mutate: func(c *Config) {
				c.EmbedLLM.Key = "sk"
				c.VectorStore.EncryptionKey = "short"
			},
			errText: "32 bytes",
		},
		{
			name: "negative max tokens",
			mutate: func(c *Config) {
				c.EmbedLLM.Key = "sk"
				c.RAG.MaxTokens = -1
			},
			errText: "max_tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				assert.ErrorContains(t, err, tt.errText)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestEmbeddingDimension(t *testing.T) {
	assert.Equal(t, 3072, EmbeddingDimension("text-embedding-3-large"))
	assert.Equal(t, 1536, EmbeddingDimension("text-embedding-3-small"))
	assert.Equal(t, 3072, EmbeddingDimension("something-else"))
}
