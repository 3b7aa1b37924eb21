package rag

import (
	"context"
	"fmt"
	"io"

	"document-indexer/internal/embedding"
	"document-indexer/internal/models"

	"github.com/rs/zerolog/log"
)

const DefaultTopK = 3

// SearchFunc returns up to topK nearest records to vector within namespace.
type SearchFunc func(ctx context.Context, vector []float32, namespace string, topK int) ([]models.Match, error)

type RAG struct {
	embed  embedding.EmbedFunc
	search SearchFunc
	topK   int
}

func NewRAG(embed embedding.EmbedFunc, search SearchFunc, topK int) *RAG {
	return &RAG{embed: embed, search: search, topK: topK}
}

func (r *RAG) Query(ctx context.Context, text, namespace string) ([]models.Match, error) {
	return Query(ctx, text, namespace, r.embed, r.search, r.topK)
}

// Query embeds text as a single input and returns the store's matches in the
// order the store ranked them.
func Query(ctx context.Context, text, namespace string, embed embedding.EmbedFunc, search SearchFunc, topK int) ([]models.Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := embedding.EmbedQuery(ctx, text, embed)
	if err != nil {
		return nil, err
	}

	matches, err := search(ctx, vector, namespace, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	log.Debug().Str("namespace", namespace).Int("top_k", topK).Int("matches", len(matches)).Msg("Query finished")
	return matches, nil
}

// PrintMatches writes one line per match: "- text (Score: 0.1234)".
func PrintMatches(w io.Writer, matches []models.Match) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(w, "No matches found.")
		return err
	}
	for _, m := range matches {
		if _, err := fmt.Fprintf(w, "- %s (Score: %.4f)\n", m.Text, m.Score); err != nil {
			return err
		}
	}
	return nil
}
