package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-indexer/internal/config"
)

var (
	configPath     string
	verbose        bool
	indexName      string
	namespace      string
	nonInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "document-indexer",
	Short: "Index a directory of documents into a vector store",
	Long: `Walks a directory, extracts text from every file, splits it into
token-bounded chunks, embeds them and upserts the vectors into an index
under a namespace. Afterwards the index can be queried interactively.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
	RunE: runIndex,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&indexName, "index", "", "name of the vector index")
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", "", "namespace inside the index (empty string is the default namespace)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt, use defaults for missing values")
}

// namespaceFlag returns nil when --namespace was not given.
func namespaceFlag(cmd *cobra.Command) *string {
	if !cmd.Flags().Changed("namespace") {
		return nil
	}
	ns := namespace
	return &ns
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("document-indexer failed")
	}
}
