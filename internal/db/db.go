package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"document-indexer/internal/config"
	"document-indexer/internal/models"
	"document-indexer/internal/vectorstore"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// VectorIndex is the registry row of a named index.
type VectorIndex struct {
	bun.BaseModel `bun:"table:vector_indexes,alias:vi"`
	Name          string    `bun:"name,pk"`
	Dimension     int       `bun:"dimension,notnull"`
	Metric        string    `bun:"metric,notnull"`
	Cloud         string    `bun:"cloud"`
	Region        string    `bun:"region"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Vector is one stored unit, keyed by (index, namespace, id).
type Vector struct {
	bun.BaseModel `bun:"table:vectors,alias:v"`
	IndexName     string            `bun:"index_name,pk"`
	Namespace     string            `bun:"namespace,pk"`
	ID            string            `bun:"id,pk"`
	Content       string            `bun:"content,notnull"`
	Source        string            `bun:"source"`
	ChunkIndex    int               `bun:"chunk_index"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector   `bun:"embedding,notnull,type:vector"`
}

type vectorMatch struct {
	ID      string  `bun:"id"`
	Content string  `bun:"content"`
	Source  string  `bun:"source"`
	Score   float64 `bun:"score"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(debug),
		bundebug.WithVerbose(true),
	))
	return db
}

// ConnectDB opens a connection pool with the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := withSSLMode(cfg.URL)
	switch cfg.Driver {
	case "pq":
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// withSSLMode disables TLS unless the URL sets sslmode itself.
func withSSLMode(url string) string {
	if strings.Contains(url, "sslmode=") {
		return url
	}
	if strings.Contains(url, "?") {
		return url + "&sslmode=disable"
	}
	return url + "?sslmode=disable"
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*VectorIndex)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create vector_indexes: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Vector)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create vectors: %w", err)
	}
	return nil
}

// PGVectorStore is a vectorstore.Store on Postgres with the pgvector
// extension.
type PGVectorStore struct {
	db *bun.DB

	mu      sync.Mutex
	indexes map[string]VectorIndex
}

var (
	_ vectorstore.Store        = (*PGVectorStore)(nil)
	_ vectorstore.IndexDeleter = (*PGVectorStore)(nil)
)

func NewStore(db *bun.DB) *PGVectorStore {
	return &PGVectorStore{db: db, indexes: map[string]VectorIndex{}}
}

// Open connects, checks the connection and creates the schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*PGVectorStore, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("driver", cfg.Driver).Msg("Connected to postgres")
	return NewStore(db), nil
}

func (s *PGVectorStore) CreateIndex(ctx context.Context, spec vectorstore.IndexSpec) error {
	if _, _, err := distanceExprs(spec.Metric); err != nil {
		return err
	}
	row := &VectorIndex{
		Name:      spec.Name,
		Dimension: spec.Dimension,
		Metric:    spec.Metric,
		Cloud:     spec.Cloud,
		Region:    spec.Region,
	}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("failed to register index: %w", err)
	}
	return nil
}

func (s *PGVectorStore) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.NewSelect().Model((*VectorIndex)(nil)).Column("name").Order("name ASC").Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	return names, nil
}

func (s *PGVectorStore) index(ctx context.Context, name string) (VectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}
	var idx VectorIndex
	err := s.db.NewSelect().Model(&idx).Where("name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return idx, fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, name)
	}
	if err != nil {
		return idx, fmt.Errorf("failed to load index %s: %w", name, err)
	}
	s.indexes[name] = idx
	return idx, nil
}

// Upsert writes the batch in a single statement. Rows with an existing
// (index, namespace, id) key are replaced.
func (s *PGVectorStore) Upsert(ctx context.Context, index string, batch []models.Record, namespace string) error {
	if len(batch) == 0 {
		return nil
	}
	idx, err := s.index(ctx, index)
	if err != nil {
		return err
	}

	rows, err := toRows(idx, batch, namespace)
	if err != nil {
		return err
	}

	if _, err := upsertQuery(s.db, &rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func upsertQuery(db bun.IDB, rows *[]Vector) *bun.InsertQuery {
	return db.NewInsert().Model(rows).
		On("CONFLICT (index_name, namespace, id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("source = EXCLUDED.source").
		Set("chunk_index = EXCLUDED.chunk_index").
		Set("metadata = EXCLUDED.metadata").
		Set("embedding = EXCLUDED.embedding")
}

func toRows(idx VectorIndex, batch []models.Record, namespace string) ([]Vector, error) {
	rows := make([]Vector, 0, len(batch))
	for _, rec := range batch {
		if idx.Dimension > 0 && len(rec.Values) != idx.Dimension {
			return nil, fmt.Errorf("embed size mismatch for %s: got %d want %d", rec.ID, len(rec.Values), idx.Dimension)
		}
		chunkIndex, _ := strconv.Atoi(rec.Metadata[models.MetadataChunkIndex])
		rows = append(rows, Vector{
			IndexName:  idx.Name,
			Namespace:  namespace,
			ID:         rec.ID,
			Content:    rec.Metadata[models.MetadataText],
			Source:     rec.Metadata[models.MetadataSource],
			ChunkIndex: chunkIndex,
			Metadata:   rec.Metadata,
			Embedding:  pgvector.NewVector(rec.Values),
		})
	}
	return rows, nil
}

// distanceExprs returns the ORDER BY and score expressions for a metric.
// Scores are oriented so that higher means closer.
func distanceExprs(metric string) (order, score string, err error) {
	switch metric {
	case "cosine", "":
		return "v.embedding <=> ?", "1 - (v.embedding <=> ?)", nil
	case "euclidean":
		return "v.embedding <-> ?", "-(v.embedding <-> ?)", nil
	case "dotproduct":
		return "v.embedding <#> ?", "-(v.embedding <#> ?)", nil
	default:
		return "", "", fmt.Errorf("unsupported metric %q", metric)
	}
}

func searchQuery(db bun.IDB, order, score, index, namespace string, vector []float32, topK int) *bun.SelectQuery {
	vec := pgvector.NewVector(vector)
	return db.NewSelect().
		Model((*Vector)(nil)).
		Column("id", "content", "source").
		ColumnExpr(score+" AS score", vec).
		Where("v.index_name = ?", index).
		Where("v.namespace = ?", namespace).
		OrderExpr(order, vec).
		Limit(topK)
}

func (s *PGVectorStore) Query(ctx context.Context, index string, vector []float32, namespace string, topK int) ([]models.Match, error) {
	idx, err := s.index(ctx, index)
	if err != nil {
		return nil, err
	}
	order, score, err := distanceExprs(idx.Metric)
	if err != nil {
		return nil, err
	}

	var rows []vectorMatch
	q := searchQuery(s.db, order, score, index, namespace, vector, topK)
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	matches := make([]models.Match, len(rows))
	for i, r := range rows {
		matches[i] = models.Match{ID: r.ID, Text: r.Content, Source: r.Source, Score: r.Score}
	}
	return matches, nil
}

// DeleteIndex removes the index and all of its vectors.
func (s *PGVectorStore) DeleteIndex(ctx context.Context, name string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Vector)(nil)).Where("index_name = ?", name).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
		if _, err := tx.NewDelete().Model((*VectorIndex)(nil)).Where("name = ?", name).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete index: %w", err)
		}
		s.mu.Lock()
		delete(s.indexes, name)
		s.mu.Unlock()
		return nil
	})
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
