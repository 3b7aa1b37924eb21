package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-indexer/internal/config"
	"document-indexer/internal/rag"
	"document-indexer/internal/vectorstore"
)

var topK int

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search an index",
	Long: `Embeds the query text and prints the closest chunks of the namespace.
Without text, starts an interactive query loop.`,
	Args: cobra.ArbitraryArgs,
	RunE: runQuery,
}

var deleteIndexCmd = &cobra.Command{
	Use:   "delete-index <name>",
	Short: "Delete an index with all of its namespaces",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteIndex,
}

func init() {
	queryCmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of matches to return (default from config, 3)")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(deleteIndexCmd)
}

// existingIndex resolves the index to search. Unlike indexing it never
// creates a missing index unless the user picks "create" at the prompt.
func existingIndex(ctx context.Context, p *prompter, store vectorstore.Store, cfg *config.Config) (string, error) {
	provided := indexName
	if provided == "" {
		provided = cfg.Index.Name
	}
	res := config.ResolveIndex(provided, nonInteractive)
	if !res.Resolved {
		return p.selectIndex(ctx, store, func(name string) vectorstore.IndexSpec {
			return vectorstore.SpecFromConfig(name, cfg)
		})
	}
	exists, err := vectorstore.HasIndex(ctx, store, res.Value)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, res.Value)
	}
	return res.Value, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p := newPrompter(os.Stdin, cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := storeOpener(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer closeStore(store)

	index, err := existingIndex(ctx, p, store, cfg)
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
	k := topK
	if k <= 0 {
		k = cfg.RAG.TopK
	}
	r := rag.NewRAG(embed, vectorstore.Searcher(store, index), k)

	if len(args) == 0 {
		return p.queryLoop(ctx, r, ns)
	}

	matches, err := r.Query(ctx, strings.Join(args, " "), ns)
	if err != nil {
		return err
	}
	return rag.PrintMatches(cmd.OutOrStdout(), matches)
}

func runDeleteIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storeOpener(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer closeStore(store)

	deleter, ok := store.(vectorstore.IndexDeleter)
	if !ok {
		return fmt.Errorf("vector store %s cannot delete indexes", cfg.VectorStore.Type)
	}
	exists, err := vectorstore.HasIndex(ctx, store, args[0])
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, args[0])
	}
	if err := deleter.DeleteIndex(ctx, args[0]); err != nil {
		return err
	}
	log.Info().Str("index", args[0]).Msg("Deleted index")
	return nil
}
