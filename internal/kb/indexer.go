package kb

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opsdesk/opsdesk/internal/retrieval"
)

// ContentEmbedder turns chunk texts into embedding vectors.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter persists indexed chunks.
type VectorUpserter interface {
	Upsert(records []retrieval.Record) error
	DeleteByFilename(filename string) (int, error)
}

// Indexer walks a documentation directory and writes chunk vectors.
type Indexer struct {
	embedder ContentEmbedder
	vectors  VectorUpserter
}

// NewIndexer creates an Indexer writing through the given embedder and store.
func NewIndexer(embedder ContentEmbedder, vectors VectorUpserter) *Indexer {
	return &Indexer{embedder: embedder, vectors: vectors}
}

// Result summarizes one indexing run.
type Result struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Skipped int `json:"skipped"`
}

// IndexDir indexes every supported document under dir. A malformed document
// is logged and skipped; the rest of the run continues. A missing or empty
// directory yields a zero Result, not an error.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) (Result, error) {
	var res Result

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Warn("docs directory does not exist, nothing to index", "dir", dir)
		return res, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !SupportedFile(path) {
			return nil
		}

		n, err := ix.IndexFile(ctx, path)
		if err != nil {
			slog.Warn("skipping document", "path", path, "error", err)
			res.Skipped++
			return nil
		}
		res.Files++
		res.Chunks += n
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walking %s: %w", dir, err)
	}

	slog.Info("indexing complete", "files", res.Files, "chunks", res.Chunks, "skipped", res.Skipped)
	return res, nil
}

// IndexFile extracts, chunks, embeds, and stores one document. Returns the
// number of chunks written. The file's previous chunks are removed first,
// so re-indexing a document that shrank leaves no stale rows behind.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	content, err := ExtractText(path)
	if err != nil {
		return 0, err
	}

	chunks := SplitDocument(content)
	if len(chunks) == 0 {
		return 0, nil
	}

	filename := filepath.Base(path)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	title := DocumentTitle(content, stem)

	vectors, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", filename, err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:        ChunkID(stem, i),
			Filename:  filename,
			Title:     title,
			Chunk:     chunk,
			Embedding: vectors[i],
			IndexedAt: now,
		}
	}

	// Old chunks are removed only after embedding succeeds; a failed embed
	// leaves the previous index state intact.
	if _, err := ix.vectors.DeleteByFilename(filename); err != nil {
		return 0, fmt.Errorf("clearing old chunks for %s: %w", filename, err)
	}
	if err := ix.vectors.Upsert(records); err != nil {
		return 0, fmt.Errorf("storing chunks for %s: %w", filename, err)
	}
	return len(records), nil
}
