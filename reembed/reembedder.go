// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

// BatchEmbedder embeds texts in input order. embedding.Gateway satisfies it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressFunc receives the number of chunks reembedded so far and the total.
type ProgressFunc func(done, total int)

// Config holds configuration for the reembedding operation.
type Config struct {
	// Normalize scales every new vector to unit length before it is stored.
	Normalize bool

	// Progress, when set, is called after each document.
	Progress ProgressFunc

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{Normalize: true}
}

// Summary reports what a run did.
type Summary struct {
	Documents int
	Chunks    int
	Skipped   int
	Failed    []core.DocumentID
	Elapsed   time.Duration
}

// Reembedder walks every ready document and replaces its chunk vectors.
type Reembedder struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	embedder  BatchEmbedder
	config    *Config
	output    io.Writer
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// output: where to write the start and completion lines (typically os.Stderr)
func NewReembedder(documents storage.DocumentRepository, chunks storage.ChunkRepository, embedder BatchEmbedder, config *Config, output io.Writer) (*Reembedder, error) {
	if documents == nil {
		return nil, ErrDocumentsRequired
	}
	if chunks == nil {
		return nil, ErrChunksRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if output == nil {
		output = io.Discard
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reembedder{
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		config:    config,
		output:    output,
		logger:    logger.With("component", "reembed"),
	}, nil
}

// Run reembeds every ready document. A document that fails keeps its old
// vectors and is listed in Summary.Failed; the run then returns
// ErrIncomplete alongside the summary. Pending documents are left alone
// since their chunks are not committed yet.
func (r *Reembedder) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	docs, err := r.documents.ListDocuments(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list documents: %w", err)
	}

	ready := make([]*core.Document, 0, len(docs))
	total := 0
	for _, doc := range docs {
		if doc.Status != core.DocumentReady {
			summary.Skipped++
			continue
		}
		ready = append(ready, doc)
		total += doc.ChunkCount
	}

	if len(ready) == 0 {
		fmt.Fprintf(r.output, "No ready documents found (0 documents)\n")
		return summary, nil
	}

	fmt.Fprintf(r.output, "Starting reembedding of %d documents (%d chunks)\n", len(ready), total)
	start := time.Now()

	done := 0
	for _, doc := range ready {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}

		n, err := r.reembedDocument(ctx, doc.ID)
		switch {
		case err == nil:
			summary.Documents++
			summary.Chunks += n
		case errors.Is(err, storage.ErrNotFound):
			// Deleted since the listing.
			summary.Skipped++
		case ctx.Err() != nil:
			summary.Elapsed = time.Since(start)
			return summary, ctx.Err()
		default:
			r.logger.Warn("failed to reembed document", "document_id", doc.ID, "name", doc.Name, "err", err)
			summary.Failed = append(summary.Failed, doc.ID)
		}

		done += doc.ChunkCount
		if r.config.Progress != nil {
			r.config.Progress(min(done, total), total)
		}
	}

	summary.Elapsed = time.Since(start)
	rate := 0.0
	if secs := summary.Elapsed.Seconds(); secs > 0 {
		rate = float64(summary.Chunks) / secs
	}
	fmt.Fprintf(r.output, "Reembedding complete. Processed %d documents (%d chunks) in %v (%.1f chunks/sec)\n",
		summary.Documents, summary.Chunks, summary.Elapsed.Round(time.Second), rate)

	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("%w: %d of %d", ErrIncomplete, len(summary.Failed), len(ready))
	}
	return summary, nil
}

func (r *Reembedder) reembedDocument(ctx context.Context, id core.DocumentID) (int, error) {
	chunks, err := r.chunks.DocumentChunks(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding: %w", err)
	}
	if r.config.Normalize {
		for i := range vectors {
			vectors[i] = normalize(vectors[i])
		}
	}

	if err := r.chunks.UpdateVectors(ctx, id, vectors); err != nil {
		return 0, fmt.Errorf("storing vectors: %w", err)
	}
	r.logger.Debug("document reembedded", "document_id", id, "chunks", len(chunks))
	return len(chunks), nil
}

// normalize returns v scaled to unit length. A zero vector stays zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	mag := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
