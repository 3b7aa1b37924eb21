package collector

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"document-indexer/internal/chunker"
	"document-indexer/internal/models"

	"github.com/rs/zerolog/log"
)

// Extractor converts raw file contents into plain text. name is used to pick
// a format.
type Extractor interface {
	Extract(name string, data []byte) (string, error)
}

// RunContext carries the per-run state shared by every collected file.
type RunContext struct {
	RunID string

	counter int
}

// NextID returns the next unit id of the run: doc1, doc2, ...
func (r *RunContext) NextID() string {
	r.counter++
	return fmt.Sprintf("%s%d", models.UnitIDPrefix, r.counter)
}

// Issued reports how many ids have been handed out.
func (r *RunContext) Issued() int {
	return r.counter
}

type Stats struct {
	Files   int
	Skipped int
	Units   int
}

type Collector struct {
	fsys      fs.FS
	extractor Extractor
	chunker   *chunker.Chunker
}

func New(fsys fs.FS, extractor Extractor, c *chunker.Chunker) *Collector {
	return &Collector{
		fsys:      fsys,
		extractor: extractor,
		chunker:   c,
	}
}

// Collect walks the tree directory by directory, files before subdirectories,
// and turns every readable file into token-bounded units. Unreadable files are
// logged and skipped. An empty result is not an error.
func (c *Collector) Collect(ctx context.Context, run *RunContext) ([]models.DocumentUnit, Stats, error) {
	var (
		units []models.DocumentUnit
		stats Stats
	)

	queue := []string{"."}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := fs.ReadDir(c.fsys, dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to read directory, skipping")
			continue
		}

		var subdirs []string
		for _, entry := range entries {
			name := path.Join(dir, entry.Name())
			if entry.IsDir() {
				subdirs = append(subdirs, name)
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}

			switch {
			case entry.Type()&fs.ModeSymlink != 0:
				info, err := fs.Stat(c.fsys, name)
				if err != nil {
					stats.Files++
					stats.Skipped++
					log.Warn().Err(err).Str("file", name).Msg("failed to resolve symlink, skipping")
					continue
				}
				if !info.Mode().IsRegular() {
					log.Debug().Str("file", name).Str("mode", info.Mode().String()).
						Msg("symlink target is not a regular file, skipping")
					continue
				}
			case !entry.Type().IsRegular():
				log.Debug().Str("file", name).Str("mode", entry.Type().String()).
					Msg("not a regular file, skipping")
				continue
			}

			stats.Files++
			fileUnits, err := c.collectFile(name, run)
			if err != nil {
				stats.Skipped++
				log.Warn().Err(err).Str("file", name).Msg("failed to process file, skipping")
				continue
			}
			units = append(units, fileUnits...)
			log.Info().Str("file", name).Int("chunks", len(fileUnits)).
				Msgf("processed file into %d chunk(s)", len(fileUnits))
		}
		queue = append(subdirs, queue...)
	}

	stats.Units = len(units)
	return units, stats, nil
}

func (c *Collector) collectFile(name string, run *RunContext) ([]models.DocumentUnit, error) {
	data, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	text, err := c.extractor.Extract(name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	var units []models.DocumentUnit
	index := 0
	for chunk := range c.chunker.Chunks(text) {
		if strings.TrimSpace(chunk) != "" {
			units = append(units, models.DocumentUnit{
				ID:         run.NextID(),
				Text:       chunk,
				Source:     name,
				ChunkIndex: index,
			})
		}
		index++
	}
	return units, nil
}
