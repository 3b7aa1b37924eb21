package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"document-indexer/internal/config"
	"document-indexer/internal/models"

	"github.com/rs/zerolog/log"
)

var ErrIndexNotFound = errors.New("index not found")

// IndexSpec describes a vector index. Cloud and Region are recorded for
// parity with hosted stores; local backends keep them as metadata.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
	Cloud     string
	Region    string
}

// Store persists records under (index, namespace, id) and answers
// nearest-neighbour queries. Upsert overwrites records with the same key.
type Store interface {
	CreateIndex(ctx context.Context, spec IndexSpec) error
	ListIndexes(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, index string, batch []models.Record, namespace string) error
	Query(ctx context.Context, index string, vector []float32, namespace string, topK int) ([]models.Match, error)
	Close() error
}

// SpecFromConfig builds the index spec for name from the index and
// embedding settings.
func SpecFromConfig(name string, cfg *config.Config) IndexSpec {
	return IndexSpec{
		Name:      name,
		Dimension: cfg.EmbedLLM.Dimension,
		Metric:    cfg.Index.Metric,
		Cloud:     cfg.Index.Cloud,
		Region:    cfg.Index.Region,
	}
}

// HasIndex reports whether name is among the store's indexes.
func HasIndex(ctx context.Context, store Store, name string) (bool, error) {
	names, err := store.ListIndexes(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list indexes: %w", err)
	}
	return slices.Contains(names, name), nil
}

// EnsureIndex creates the index when the store does not list it yet.
func EnsureIndex(ctx context.Context, store Store, spec IndexSpec) (created bool, err error) {
	exists, err := HasIndex(ctx, store, spec.Name)
	if err != nil {
		return false, err
	}
	if exists {
		log.Debug().Str("index", spec.Name).Msg("Index already exists")
		return false, nil
	}

	log.Info().Str("index", spec.Name).Int("dimension", spec.Dimension).Str("metric", spec.Metric).
		Msg("Creating index")
	if err := store.CreateIndex(ctx, spec); err != nil {
		return false, fmt.Errorf("failed to create index %s: %w", spec.Name, err)
	}
	return true, nil
}

// Writer binds a store and index into the write function the upsert
// batcher drives.
func Writer(store Store, index string) func(ctx context.Context, batch []models.Record, namespace string) error {
	return func(ctx context.Context, batch []models.Record, namespace string) error {
		return store.Upsert(ctx, index, batch, namespace)
	}
}

// Searcher binds a store and index into the search function of the query path.
func Searcher(store Store, index string) func(ctx context.Context, vector []float32, namespace string, topK int) ([]models.Match, error) {
	return func(ctx context.Context, vector []float32, namespace string, topK int) ([]models.Match, error) {
		return store.Query(ctx, index, vector, namespace, topK)
	}
}

// IndexDeleter is implemented by stores that can drop an index with all of
// its namespaces.
type IndexDeleter interface {
	DeleteIndex(ctx context.Context, name string) error
}
