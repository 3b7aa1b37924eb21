package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"document-indexer/internal/config"
	"document-indexer/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrVectorCountMismatch = errors.New("embedding count mismatch")

// EmbedFunc returns one vector per input text, in input order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// NewEmbedder builds the embedder for the configured provider.
func NewEmbedder(llmConfig *config.LLMConfig) (embeddings.Embedder, error) {
	switch llmConfig.Provider {
	case "ollama":
		return NewOllamaEmbedder(llmConfig)
	case "openai", "":
		return NewOpenAIEmbedder(llmConfig)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", llmConfig.Provider)
	}
}

func NewOpenAIEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]any{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
		"batch_size":      llmConfig.BatchSize,
	}).Msg("Creating openai embedder")

	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithEmbeddingModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return newEmbedder(llm, llmConfig.BatchSize)
}

func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]any{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return newEmbedder(llm, llmConfig.BatchSize)
}

func newEmbedder(client embeddings.EmbedderClient, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// Func adapts a langchaingo embedder to an EmbedFunc.
func Func(e embeddings.Embedder) EmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		return e.EmbedDocuments(ctx, texts)
	}
}

// EmbedUnits embeds the texts of units in a single call and attaches the
// vectors positionally. A provider that returns a different number of vectors
// than texts is a protocol violation.
func EmbedUnits(ctx context.Context, units []models.DocumentUnit, fn EmbedFunc) error {
	if len(units) == 0 {
		return nil
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}

	vectors, err := fn(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: got %d want %d", ErrVectorCountMismatch, len(vectors), len(texts))
	}

	for i := range units {
		units[i].Embedding = vectors[i]
	}
	log.Debug().Int("units", len(units)).Msg("Embedded units")
	return nil
}

// EmbedQuery embeds a single text and requires exactly one vector back.
func EmbedQuery(ctx context.Context, text string, fn EmbedFunc) ([]float32, error) {
	vectors, err := fn(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d want 1", ErrVectorCountMismatch, len(vectors))
	}
	return vectors[0], nil
}
