package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"document-indexer/internal/config"
	"document-indexer/internal/models"
	"document-indexer/internal/vectorstore"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

// Each (index, namespace) pair lives in its own collection named
// "<index>::<namespace>". The empty namespace collection doubles as the
// index marker.
const namespaceSep = "::"

var errNoEmbeddingFunc = errors.New("documents must carry precomputed embeddings")

// noEmbedding is handed to chromem so it never calls out to a provider.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// VectorDBManager is a vectorstore.Store backed by chromem-go, either
// persisted under a directory or in memory with optional export on close.
type VectorDBManager struct {
	db            *chromem.DB
	dimension     int
	inMemory      bool
	compress      bool
	encryptionKey string
	exportPath    string
}

var (
	_ vectorstore.Store        = (*VectorDBManager)(nil)
	_ vectorstore.IndexDeleter = (*VectorDBManager)(nil)
)

// NewVectorDBManager opens the database described by cfg. dimension is the
// expected vector size; 0 disables the check.
func NewVectorDBManager(cfg *config.VectorStoreConfig, dimension int) (*VectorDBManager, error) {
	m := &VectorDBManager{
		dimension:     dimension,
		inMemory:      cfg.InMemory,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		exportPath:    cfg.ExportPath,
	}

	if cfg.InMemory {
		m.db = chromem.NewDB()
		if err := m.importFile(); err != nil {
			return nil, err
		}
		return m, nil
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	m.db = db
	return m, nil
}

func collectionName(index, namespace string) string {
	return index + namespaceSep + namespace
}

func (m *VectorDBManager) CreateIndex(_ context.Context, spec vectorstore.IndexSpec) error {
	if spec.Name == "" || strings.Contains(spec.Name, namespaceSep) {
		return fmt.Errorf("invalid index name %q", spec.Name)
	}
	if spec.Metric != "" && spec.Metric != "cosine" {
		return fmt.Errorf("chromem only supports cosine similarity, got %q", spec.Metric)
	}

	_, err := m.db.GetOrCreateCollection(collectionName(spec.Name, ""), specMetadata(spec), noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if spec.Dimension > 0 {
		m.dimension = spec.Dimension
	}
	return nil
}

func specMetadata(spec vectorstore.IndexSpec) map[string]string {
	return map[string]string{
		"dimension": strconv.Itoa(spec.Dimension),
		"metric":    spec.Metric,
		"cloud":     spec.Cloud,
		"region":    spec.Region,
	}
}

func (m *VectorDBManager) ListIndexes(_ context.Context) ([]string, error) {
	var names []string
	for name := range m.db.ListCollections() {
		index, _, ok := strings.Cut(name, namespaceSep)
		if !ok || slices.Contains(names, index) {
			continue
		}
		names = append(names, index)
	}
	slices.Sort(names)
	return names, nil
}

func (m *VectorDBManager) hasIndex(index string) bool {
	return m.db.GetCollection(collectionName(index, ""), noEmbedding) != nil
}

// Upsert adds the batch to the namespace collection. Documents with an
// existing id are replaced.
func (m *VectorDBManager) Upsert(ctx context.Context, index string, batch []models.Record, namespace string) error {
	if !m.hasIndex(index) {
		return fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, index)
	}

	docs := make([]chromem.Document, 0, len(batch))
	for _, rec := range batch {
		if m.dimension > 0 && len(rec.Values) != m.dimension {
			return fmt.Errorf("embed size mismatch for %s: got %d want %d", rec.ID, len(rec.Values), m.dimension)
		}
		metadata := make(map[string]string, len(rec.Metadata)+2)
		for k, v := range rec.Metadata {
			metadata[k] = v
		}
		metadata[models.MetadataID] = rec.ID
		metadata[models.MetadataNamespace] = namespace

		docs = append(docs, chromem.Document{
			ID:        rec.ID,
			Content:   rec.Metadata[models.MetadataText],
			Metadata:  metadata,
			Embedding: rec.Values,
		})
	}

	c, err := m.db.GetOrCreateCollection(collectionName(index, namespace), nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns up to topK documents of the namespace ranked by cosine
// similarity.
func (m *VectorDBManager) Query(ctx context.Context, index string, vector []float32, namespace string, topK int) ([]models.Match, error) {
	if !m.hasIndex(index) {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, index)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}

	c := m.db.GetCollection(collectionName(index, namespace), noEmbedding)
	if c == nil || c.Count() == 0 || topK <= 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, vector, min(topK, c.Count()), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.Match{
			ID:     r.ID,
			Text:   r.Content,
			Source: r.Metadata[models.MetadataSource],
			Score:  float64(r.Similarity),
		})
	}
	return matches, nil
}

// DeleteIndex drops every namespace collection of index.
func (m *VectorDBManager) DeleteIndex(_ context.Context, index string) error {
	for name := range m.db.ListCollections() {
		if prefix, _, ok := strings.Cut(name, namespaceSep); ok && prefix == index {
			if err := m.db.DeleteCollection(name); err != nil {
				return fmt.Errorf("failed to drop collection: %w", err)
			}
		}
	}
	return nil
}

// Export writes the whole database to the configured export path.
func (m *VectorDBManager) Export() error {
	if m.exportPath == "" {
		return fmt.Errorf("export path is required")
	}
	if err := os.MkdirAll(filepath.Dir(m.exportPath), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	log.Debug().Str("file", m.exportPath).Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").Msg("Exporting database")
	if err := m.db.ExportToFile(m.exportPath, m.compress, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

func (m *VectorDBManager) importFile() error {
	if m.exportPath == "" {
		return nil
	}
	if _, err := os.Stat(m.exportPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	log.Debug().Str("file", m.exportPath).Msg("Importing database")
	if err := m.db.ImportFromFile(m.exportPath, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

// Close exports an in-memory database when an export path is configured.
// Persistent databases are written on every change.
func (m *VectorDBManager) Close() error {
	if m.inMemory && m.exportPath != "" {
		return m.Export()
	}
	return nil
}
