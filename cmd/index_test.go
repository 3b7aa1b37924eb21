package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-indexer/internal/config"
	"document-indexer/internal/embedding"
	"document-indexer/internal/models"
	"document-indexer/internal/vectorstore"
)

// countingStore records index creation on top of a real store.
type countingStore struct {
	vectorstore.Store
	created  []string
	closeErr error
}

func (s *countingStore) CreateIndex(ctx context.Context, spec vectorstore.IndexSpec) error {
	s.created = append(s.created, spec.Name)
	return s.Store.CreateIndex(ctx, spec)
}

func (s *countingStore) Close() error {
	if s.closeErr != nil {
		return s.closeErr
	}
	return s.Store.Close()
}

func unitEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type cliHarness struct {
	store  *countingStore
	opened int
	logs   *bytes.Buffer
}

// newCLI points the commands at an in-memory store and a local embedder,
// and restores every global the commands touch when the test ends.
func newCLI(t *testing.T) *cliHarness {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
embed_llm:
  dimension: 2
rag:
  encoding: runes
vector_store:
  in_memory: true
`), 0o600))

	h := &cliHarness{
		store: &countingStore{Store: memoryStore(t)},
		logs:  &bytes.Buffer{},
	}

	prevOpener, prevEmbed, prevLogger := storeOpener, embedFuncFactory, log.Logger
	storeOpener = func(context.Context, *config.Config) (vectorstore.Store, error) {
		h.opened++
		return h.store, nil
	}
	embedFuncFactory = func(*config.Config) (embedding.EmbedFunc, error) {
		return unitEmbed, nil
	}
	log.Logger = zerolog.New(h.logs)
	configPath = cfgPath

	t.Cleanup(func() {
		storeOpener, embedFuncFactory, log.Logger = prevOpener, prevEmbed, prevLogger
		configPath = config.DefaultPath
		directory, batchSize, dryRun = "", 0, false
		indexName, namespace, nonInteractive, topK = "", "", false, 0
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	return h
}

func (h *cliHarness) run(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIndexEmptyDirectoryTouchesNoStore(t *testing.T) {
	h := newCLI(t)
	dir := t.TempDir()

	_, err := h.run("--non-interactive", "--index", "docs", "--namespace", "ns", "--directory", dir)
	require.ErrorIs(t, err, models.ErrNoDocuments)

	assert.Zero(t, h.opened)
	assert.Empty(t, h.store.created)
	assert.Contains(t, h.logs.String(), "No valid documents found")
}

func TestIndexMissingDirectoryTouchesNoStore(t *testing.T) {
	h := newCLI(t)

	_, err := h.run("--non-interactive", "--index", "docs", "--namespace", "ns",
		"--directory", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	assert.Zero(t, h.opened)
	assert.Empty(t, h.store.created)
}

func TestIndexCreatesIndexAndUpserts(t *testing.T) {
	h := newCLI(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o600))

	_, err := h.run("--non-interactive", "--index", "docs", "--namespace", "ns", "--directory", dir)
	require.NoError(t, err)

	assert.Equal(t, 1, h.opened)
	assert.Equal(t, []string{"docs"}, h.store.created)
	matches, err := h.store.Query(context.Background(), "docs", []float32{1, 0}, "ns", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Text, "hello world")
}

func TestIndexDryRunPrintsWithoutStore(t *testing.T) {
	h := newCLI(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o600))

	out, err := h.run("--non-interactive", "--dry-run", "--directory", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "hello world")
	assert.Zero(t, h.opened)
}

func TestQueryMissingIndexIsNotCreated(t *testing.T) {
	h := newCLI(t)

	_, err := h.run("query", "--non-interactive", "--index", "typo", "--namespace", "ns", "hello")
	require.ErrorIs(t, err, vectorstore.ErrIndexNotFound)

	assert.Empty(t, h.store.created)
	names, err := h.store.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestQueryExistingIndex(t *testing.T) {
	h := newCLI(t)
	ctx := context.Background()
	require.NoError(t, h.store.Store.CreateIndex(ctx, testSpec("docs")))
	require.NoError(t, h.store.Upsert(ctx, "docs", []models.Record{{
		ID:       "a.txt#0",
		Values:   []float32{1, 0},
		Metadata: map[string]string{models.MetadataText: "hello world"},
	}}, "ns"))

	out, err := h.run("query", "--non-interactive", "--index", "docs", "--namespace", "ns", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "hello world")
	assert.Empty(t, h.store.created)
}

func TestStoreCloseFailureIsLogged(t *testing.T) {
	h := newCLI(t)
	h.store.closeErr = errors.New("export failed")

	_, err := h.run("query", "--non-interactive", "--index", "typo", "--namespace", "ns", "hello")
	require.ErrorIs(t, err, vectorstore.ErrIndexNotFound)

	assert.Contains(t, h.logs.String(), "Failed to close vector store")
	assert.Contains(t, h.logs.String(), "export failed")
}
