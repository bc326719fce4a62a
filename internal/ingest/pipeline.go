package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/combot/ticketsearch/internal/chunker"
	"github.com/combot/ticketsearch/internal/ticket"
)

// Result contains statistics about one ingestion pass.
type Result struct {
	IngestionVersion  string
	FilesProcessed    int
	TotalRecords      int
	SuccessfulRecords int
	TotalChunks       int
	FailedRecords     []FailedRecord
	Published         bool
	Duration          time.Duration
}

// FailedRecord is a ticket that could not be ingested.
type FailedRecord struct {
	Key    string
	File   string
	Reason string
}

// Store is the slice of the storage adapter the pipeline writes through.
type Store interface {
	EnsureCollection(ctx context.Context, dimension int) error
	UpsertChunks(ctx context.Context, chunks []ticket.EmbeddedChunk) (int, error)
	PublishVersion(ctx context.Context, version string) error
}

// Embedder generates embeddings for chunk texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline runs parse -> chunk -> embed -> upsert over a directory of export
// files, stamping every chunk with a fresh ingestion version and publishing
// that version only after the pass completes. Queries running concurrently
// keep seeing the previous version until publish.
type Pipeline struct {
	chunker   *chunker.Chunker
	embedder  Embedder
	store     Store
	dimension int
	logger    *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(ch *chunker.Chunker, embedder Embedder, store Store, dimension int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		dimension: dimension,
		logger:    logger,
	}
}

// Run ingests every export file under dir. A malformed file or record is
// logged and skipped; the pass continues. The version manifest is published
// only when at least one chunk was stored.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Result, error) {
	start := time.Now()
	version := start.UTC().Format("20060102T150405")
	result := &Result{IngestionVersion: version}

	if err := p.store.EnsureCollection(ctx, p.dimension); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	files, err := listExportFiles(dir)
	if err != nil {
		return nil, err
	}
	p.logger.Info("starting ingestion", "version", version, "files", len(files))

	for _, file := range files {
		records, err := ParseFile(file)
		if err != nil {
			p.logger.Warn("failed to parse export file", "file", file, "error", err)
			result.FailedRecords = append(result.FailedRecords, FailedRecord{
				File:   file,
				Reason: err.Error(),
			})
			continue
		}
		result.FilesProcessed++
		result.TotalRecords += len(records)

		for _, rec := range records {
			chunks, err := p.ingestRecord(ctx, rec, version)
			if err != nil {
				p.logger.Warn("failed to ingest record", "key", rec.Key, "file", file, "error", err)
				result.FailedRecords = append(result.FailedRecords, FailedRecord{
					Key:    rec.Key,
					File:   file,
					Reason: err.Error(),
				})
				continue
			}
			result.SuccessfulRecords++
			result.TotalChunks += chunks
		}
	}

	if result.TotalChunks > 0 {
		if err := p.store.PublishVersion(ctx, version); err != nil {
			return result, fmt.Errorf("publish version: %w", err)
		}
		result.Published = true
	} else {
		p.logger.Warn("no chunks ingested, version not published", "version", version)
	}

	result.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		"version", version,
		"records", result.SuccessfulRecords,
		"failed", len(result.FailedRecords),
		"chunks", result.TotalChunks,
		"published", result.Published,
		"duration", result.Duration,
	)
	return result, nil
}

// ingestRecord chunks, embeds and stores one ticket. Returns the number of
// chunks written.
func (p *Pipeline) ingestRecord(ctx context.Context, rec ticket.Record, version string) (int, error) {
	chunks := p.chunker.Chunk(rec, version)
	if len(chunks) == 0 {
		// Empty tickets are legitimate; log and move on.
		p.logger.Debug("record produced no chunks", "key", rec.Key)
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks))
	}

	embedded := make([]ticket.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = ticket.EmbeddedChunk{Chunk: c, Embedding: embeddings[i]}
	}

	written, err := p.store.UpsertChunks(ctx, embedded)
	if err != nil {
		return written, fmt.Errorf("store chunks: %w", err)
	}
	return written, nil
}

// listExportFiles returns the export files under dir, sorted for a
// deterministic pass order.
func listExportFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".txt":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
