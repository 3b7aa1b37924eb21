package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-indexer/internal/collector"
	"document-indexer/internal/config"
	"document-indexer/internal/helper"
	"document-indexer/internal/ingest"
	"document-indexer/internal/models"
	"document-indexer/internal/rag"
	"document-indexer/internal/upsert"
	"document-indexer/internal/vectorstore"
)

var (
	directory string
	batchSize int
	dryRun    bool
)

func init() {
	rootCmd.Flags().StringVarP(&directory, "directory", "d", "", "directory containing the documents")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per upsert request (default from config, 100)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the collected chunks as JSON and stop before any remote call")
}

// loadConfig reads the config and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if batchSize > 0 {
		cfg.Upsert.BatchSize = batchSize
	}
	log.Debug().Str("path", configPath).Str("store", cfg.VectorStore.Type).
		Str("provider", cfg.EmbedLLM.Provider).Str("model", cfg.EmbedLLM.Model).Msg("Loaded config")
	return cfg, nil
}

// resolveIndex returns the index to use, creating it when missing.
func resolveIndex(ctx context.Context, p *prompter, store vectorstore.Store, cfg *config.Config) (string, error) {
	spec := func(name string) vectorstore.IndexSpec {
		return vectorstore.SpecFromConfig(name, cfg)
	}

	provided := indexName
	if provided == "" {
		provided = cfg.Index.Name
	}
	res := config.ResolveIndex(provided, nonInteractive)
	if !res.Resolved {
		return p.selectIndex(ctx, store, spec)
	}
	if _, err := vectorstore.EnsureIndex(ctx, store, spec(res.Value)); err != nil {
		return "", err
	}
	return res.Value, nil
}

func resolveNamespace(cmd *cobra.Command, p *prompter) (string, error) {
	res := config.ResolveNamespace(namespaceFlag(cmd), nonInteractive)
	if res.Resolved {
		return res.Value, nil
	}
	return p.namespace()
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p := newPrompter(os.Stdin, cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !dryRun {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	runID, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	log.Logger = log.With().Str("run_id", runID).Logger()

	dir := config.ResolveDirectory(directory, nonInteractive)
	if !dir.Resolved {
		if dir.Value, err = p.directory(); err != nil {
			return err
		}
	}
	if err := helper.CheckDirectory(dir.Value); err != nil {
		return err
	}

	c, err := newCollector(cfg, dir.Value)
	if err != nil {
		return err
	}
	units, stats, err := ingest.Collect(ctx, c, &collector.RunContext{RunID: runID})
	if err != nil {
		if errors.Is(err, models.ErrNoDocuments) {
			log.Error().Str("directory", dir.Value).Msg("No valid documents found")
		}
		return err
	}
	if dryRun {
		return helper.PrettyPrint(cmd.OutOrStdout(), units)
	}

	store, err := storeOpener(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer closeStore(store)

	index, err := resolveIndex(ctx, p, store, cfg)
	if err != nil {
		return err
	}
	ns, err := resolveNamespace(cmd, p)
	if err != nil {
		return err
	}

	embed, err := embedFuncFactory(cfg)
	if err != nil {
		return err
	}
	write := upsert.Retry(vectorstore.Writer(store, index), cfg.Upsert.Retries+1, cfg.Upsert.Backoff)
	pipeline := ingest.New(c, embed, write, upsert.Options{
		BatchSize:   cfg.Upsert.BatchSize,
		Concurrency: cfg.Upsert.Concurrency,
	})

	log.Info().Str("index", index).Str("namespace", ns).Str("directory", dir.Value).Msg("Indexing documents")
	committed, err := pipeline.Index(ctx, units, ns)
	if err != nil {
		return err
	}
	log.Info().Str("index", index).Str("namespace", ns).Int("vectors", committed).
		Int("skipped_files", stats.Skipped).Msg("Successfully indexed documents")

	if nonInteractive {
		return nil
	}
	r := rag.NewRAG(embed, vectorstore.Searcher(store, index), cfg.RAG.TopK)
	return p.queryLoop(ctx, r, ns)
}
