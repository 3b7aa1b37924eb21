package ingest

import (
	"context"
	"fmt"

	"document-indexer/internal/collector"
	"document-indexer/internal/embedding"
	"document-indexer/internal/models"
	"document-indexer/internal/upsert"

	"github.com/rs/zerolog/log"
)

type Result struct {
	Stats     collector.Stats
	Committed int
}

// Pipeline runs collect, embed and upsert strictly in that order.
type Pipeline struct {
	collector *collector.Collector
	embed     embedding.EmbedFunc
	write     upsert.WriteFunc
	opts      upsert.Options
}

func New(c *collector.Collector, embed embedding.EmbedFunc, write upsert.WriteFunc, opts upsert.Options) *Pipeline {
	return &Pipeline{collector: c, embed: embed, write: write, opts: opts}
}

// Collect gathers the units of the run without touching any remote service.
// An empty result is reported as models.ErrNoDocuments.
func Collect(ctx context.Context, c *collector.Collector, run *collector.RunContext) ([]models.DocumentUnit, collector.Stats, error) {
	units, stats, err := c.Collect(ctx, run)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to collect documents: %w", err)
	}
	log.Info().Int("files", stats.Files).Int("skipped", stats.Skipped).Int("units", stats.Units).
		Msg("Collected documents")
	if len(units) == 0 {
		return nil, stats, models.ErrNoDocuments
	}
	return units, stats, nil
}

func (p *Pipeline) Collect(ctx context.Context, run *collector.RunContext) ([]models.DocumentUnit, collector.Stats, error) {
	return Collect(ctx, p.collector, run)
}

// Run indexes every unit of the run into namespace.
func (p *Pipeline) Run(ctx context.Context, run *collector.RunContext, namespace string) (Result, error) {
	units, stats, err := p.Collect(ctx, run)
	if err != nil {
		return Result{Stats: stats}, err
	}
	committed, err := p.Index(ctx, units, namespace)
	return Result{Stats: stats, Committed: committed}, err
}

// Index embeds already collected units and upserts them into namespace. It
// returns the number of units committed.
func (p *Pipeline) Index(ctx context.Context, units []models.DocumentUnit, namespace string) (int, error) {
	if len(units) == 0 {
		return 0, models.ErrNoDocuments
	}
	if err := embedding.EmbedUnits(ctx, units, p.embed); err != nil {
		return 0, err
	}

	opts := p.opts
	onProgress := opts.OnProgress
	opts.OnProgress = func(pr upsert.Progress) {
		log.Info().Int("batch", pr.Batch).Int("total", pr.Total).Int("size", pr.Size).
			Msgf("Upserted batch %d of %d", pr.Batch, pr.Total)
		if onProgress != nil {
			onProgress(pr)
		}
	}

	return upsert.Upsert(ctx, units, namespace, p.write, opts)
}
