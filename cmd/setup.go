package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"document-indexer/internal/chromemdb"
	"document-indexer/internal/chunker"
	"document-indexer/internal/collector"
	"document-indexer/internal/config"
	"document-indexer/internal/db"
	"document-indexer/internal/embedding"
	"document-indexer/internal/parser"
	"document-indexer/internal/tokenizer"
	"document-indexer/internal/vectorstore"
)

// Replaced in tests.
var (
	storeOpener      = openStore
	embedFuncFactory = newEmbedFunc
)

func openStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStore.Type {
	case "chromem":
		store, err := chromemdb.NewVectorDBManager(&cfg.VectorStore, cfg.EmbedLLM.Dimension)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "pgvector":
		store, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
}

func closeStore(store vectorstore.Store) {
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close vector store")
	}
}

func newEmbedFunc(cfg *config.Config) (embedding.EmbedFunc, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	return embedding.Func(embedder), nil
}

func newCollector(cfg *config.Config, dir string) (*collector.Collector, error) {
	tok, err := tokenizer.New(cfg.RAG.Encoding)
	if err != nil {
		return nil, err
	}
	c, err := chunker.New(tok, cfg.RAG.MaxTokens)
	if err != nil {
		return nil, err
	}
	return collector.New(os.DirFS(dir), parser.New(), c), nil
}
