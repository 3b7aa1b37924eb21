package upsert

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"document-indexer/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 100

var ErrMissingEmbedding = errors.New("unit has no embedding")

// WriteFunc persists one batch under namespace. Writing the same records
// twice must leave the store unchanged.
type WriteFunc func(ctx context.Context, batch []models.Record, namespace string) error

type Progress struct {
	Batch int
	Total int
	Size  int
}

type Options struct {
	// BatchSize <= 0 selects DefaultBatchSize.
	BatchSize int
	// Concurrency > 1 writes batches in parallel, in no particular order.
	Concurrency int
	OnProgress  func(Progress)
}

// BatchError reports the first failed batch (1-based) and how many units were
// already committed when the run stopped.
type BatchError struct {
	Batch     int
	Total     int
	Committed int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to upsert batch %d of %d (%d units committed): %v", e.Batch, e.Total, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ToRecord converts an embedded unit into the store's record shape.
func ToRecord(u models.DocumentUnit) models.Record {
	return models.Record{
		ID:     u.ID,
		Values: u.Embedding,
		Metadata: map[string]string{
			models.MetadataText:       u.Text,
			models.MetadataSource:     u.Source,
			models.MetadataChunkIndex: strconv.Itoa(u.ChunkIndex),
		},
	}
}

// Batches splits n items into consecutive [start, end) ranges of at most size.
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// Upsert writes units in batches of opts.BatchSize and returns the number of
// units committed.
func Upsert(ctx context.Context, units []models.DocumentUnit, namespace string, write WriteFunc, opts Options) (int, error) {
	for _, u := range units {
		if u.Embedding == nil {
			return 0, fmt.Errorf("%w: %s", ErrMissingEmbedding, u.ID)
		}
	}

	records := make([]models.Record, len(units))
	for i, u := range units {
		records[i] = ToRecord(u)
	}
	ranges := Batches(len(records), opts.BatchSize)

	if opts.Concurrency > 1 && len(ranges) > 1 {
		return upsertConcurrent(ctx, records, ranges, namespace, write, opts)
	}

	committed := 0
	for i, r := range ranges {
		batch := records[r[0]:r[1]]
		if err := write(ctx, batch, namespace); err != nil {
			return committed, &BatchError{Batch: i + 1, Total: len(ranges), Committed: committed, Err: err}
		}
		committed += len(batch)
		report(opts, Progress{Batch: i + 1, Total: len(ranges), Size: len(batch)})
	}
	return committed, nil
}

func upsertConcurrent(ctx context.Context, records []models.Record, ranges [][2]int, namespace string, write WriteFunc, opts Options) (int, error) {
	var (
		mu        sync.Mutex
		committed int
		failed    *BatchError
	)

	// A failed batch does not cancel the others.
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, r := range ranges {
		batch := records[r[0]:r[1]]
		g.Go(func() error {
			err := write(ctx, batch, namespace)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if failed == nil || i+1 < failed.Batch {
					failed = &BatchError{Batch: i + 1, Total: len(ranges), Err: err}
				}
				return err
			}
			committed += len(batch)
			report(opts, Progress{Batch: i + 1, Total: len(ranges), Size: len(batch)})
			return nil
		})
	}
	_ = g.Wait()

	if failed != nil {
		failed.Committed = committed
		return committed, failed
	}
	return committed, nil
}

func report(opts Options, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

// Retry wraps write so each batch is attempted up to attempts times, waiting
// backoff, then twice that, between tries.
func Retry(write WriteFunc, attempts int, backoff time.Duration) WriteFunc {
	if attempts <= 1 {
		return write
	}
	return func(ctx context.Context, batch []models.Record, namespace string) error {
		var err error
		wait := backoff
		for attempt := 1; attempt <= attempts; attempt++ {
			if err = write(ctx, batch, namespace); err == nil {
				return nil
			}
			if attempt == attempts {
				break
			}
			log.Warn().Err(err).Int("attempt", attempt).Int("size", len(batch)).Msg("Upsert failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
		return fmt.Errorf("after %d attempts: %w", attempts, err)
	}
}
