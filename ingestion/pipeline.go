package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docreply/chunker"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/metrics"
	"github.com/poiesic/docreply/storage"
)

// DefaultPoolSize is the number of documents ingested concurrently in the background.
const DefaultPoolSize = 4

// BatchEmbedder embeds texts in input order. embedding.Gateway satisfies it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Request is one document to ingest for a tenant.
type Request struct {
	Name         string
	Kind         core.Kind
	Text         string
	Phone        string
	Credentials  core.Credentials
	Intent       string
	SystemPrompt string
}

// Validate checks the identifiers and credentials every ingestion needs.
// Text is not checked here; an empty text fails later with core.ErrEmptyDocument.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &core.ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(r.Phone) == "" {
		return &core.ValidationError{Field: "phone", Reason: "is required"}
	}
	if !r.Credentials.Complete() {
		return &core.ValidationError{Field: "credentials", Reason: "auth token and origin are required"}
	}
	return core.ValidateKind(r.Kind)
}

// Result describes a successful ingestion.
type Result struct {
	DocumentID core.DocumentID
	ChunkCount int
	MappingID  core.ID

	// DuplicateOf is the ready document that already holds identical text,
	// if any. The new document is ingested either way.
	DuplicateOf core.DocumentID
}

// Pipeline ingests documents.
type Pipeline struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	mappings  storage.MappingRepository
	embedder  BatchEmbedder
	pool      *ants.Pool
	jobs      *jobTable
	chunkSize int
	overlap   int
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of background ingestion workers.
// Default is DefaultPoolSize, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size, ants.WithNonblocking(true))
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithChunking sets the chunk window. Defaults are chunker.DefaultSize and
// chunker.DefaultOverlap.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		if err := chunker.Validate(size, overlap); err != nil {
			return err
		}
		p.chunkSize, p.overlap = size, overlap
		return nil
	}
}

// WithMetrics records ingestion results and job counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. The store must provide
// documents, chunks and mappings; storage.Store does.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	mappings storage.MappingRepository,
	embedder BatchEmbedder,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if mappings == nil {
		return nil, ErrMappingRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents: documents,
		chunks:    chunks,
		mappings:  mappings,
		embedder:  embedder,
		pool:      pool,
		jobs:      newJobTable(),
		chunkSize: chunker.DefaultSize,
		overlap:   chunker.DefaultOverlap,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	return p, nil
}

// Ingest runs the full ingestion synchronously.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	result, err := p.ingest(ctx, req)
	if err != nil {
		p.metrics.Ingestion("failed", time.Since(start), 0)
		return Result{}, err
	}
	p.metrics.Ingestion("succeeded", time.Since(start), result.ChunkCount)
	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context, req Request) (Result, error) {
	checksum := core.Checksum(req.Text)
	duplicate := p.findDuplicate(ctx, checksum)
	if duplicate != "" {
		p.logger.Warn("identical document already ingested", "phone", req.Phone, "name", req.Name, "existing_document_id", duplicate)
	}

	doc := &core.Document{
		ID:          core.NewDocumentID(),
		Name:        req.Name,
		Kind:        req.Kind,
		Credentials: req.Credentials,
		Checksum:    checksum,
		CreatedAt:   p.now(),
	}
	if err := p.documents.CreateDocument(ctx, doc); err != nil {
		p.logger.Error("error creating document", "phone", req.Phone, "err", err)
		return Result{}, fmt.Errorf("create document: %w", err)
	}
	logger := p.logger.With("document_id", doc.ID, "phone", req.Phone)

	result, err := p.fill(ctx, doc, req, logger)
	if err != nil {
		logger.Error("ingestion failed", "err", err)
		p.discard(ctx, doc.ID, logger)
		return Result{}, err
	}
	result.DuplicateOf = duplicate

	logger.Info("document ingested", "name", doc.Name, "chunks", result.ChunkCount, "mapping_id", result.MappingID)
	return result, nil
}

// findDuplicate returns the newest ready document whose checksum matches.
// Lookup failures are logged and treated as no match.
func (p *Pipeline) findDuplicate(ctx context.Context, checksum string) core.DocumentID {
	docs, err := p.documents.ListDocuments(ctx)
	if err != nil {
		p.logger.Warn("error checking for duplicate documents", "err", err)
		return ""
	}
	for _, doc := range docs {
		if doc.Status == core.DocumentReady && doc.Checksum == checksum {
			return doc.ID
		}
	}
	return ""
}

// fill runs every step that follows document creation.
func (p *Pipeline) fill(ctx context.Context, doc *core.Document, req Request, logger *slog.Logger) (Result, error) {
	texts, err := chunker.Split(req.Text, p.chunkSize, p.overlap)
	if err != nil {
		return Result{}, err
	}
	if len(texts) == 0 {
		return Result{}, core.ErrEmptyDocument
	}
	logger.Debug("document chunked", "chunks", len(texts))

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return Result{}, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(texts))
	}

	chunks := make([]core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = core.Chunk{DocumentID: doc.ID, Ordinal: i, Text: text, Vector: vectors[i]}
	}
	if err := p.chunks.CommitChunks(ctx, doc.ID, chunks); err != nil {
		return Result{}, fmt.Errorf("commit chunks: %w", err)
	}

	mapping, err := p.attach(ctx, doc.ID, req)
	if err != nil {
		return Result{}, fmt.Errorf("attach document to tenant: %w", err)
	}

	return Result{DocumentID: doc.ID, ChunkCount: len(chunks), MappingID: mapping.MappingID()}, nil
}

// attach links the document to the tenant's phone. A placeholder mapping is
// bound in place when this ingestion wins it; otherwise a new bound mapping
// is added, inheriting intent and system prompt from the tenant's oldest
// mapping unless overridden.
func (p *Pipeline) attach(ctx context.Context, id core.DocumentID, req Request) (core.Mapping, error) {
	existing, err := p.mappings.MappingsByPhone(ctx, req.Phone)
	if err != nil {
		return nil, err
	}

	for _, m := range existing {
		placeholder, ok := m.(core.UnboundMapping)
		if !ok {
			continue
		}
		bound := placeholder.Bind(id, req.Credentials, req.Intent)
		if req.SystemPrompt != "" {
			bound.SystemPrompt = req.SystemPrompt
		}
		err := p.mappings.BindMapping(ctx, bound)
		if err == nil {
			return bound, nil
		}
		if !errors.Is(err, storage.ErrConflict) && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		// Another ingestion bound or removed the placeholder first.
		p.logger.Debug("placeholder taken, adding a new mapping", "mapping_id", placeholder.ID, "document_id", id)
	}

	tenant := core.ResolveTenant(req.Phone, existing)
	return p.mappings.AddMapping(ctx, core.BoundMapping{
		Phone:        req.Phone,
		DocumentID:   id,
		Intent:       override(req.Intent, tenant.Intent),
		SystemPrompt: override(req.SystemPrompt, tenant.SystemPrompt),
		Credentials:  req.Credentials,
	})
}

func override(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// discard deletes a document whose ingestion failed. Errors are logged only.
func (p *Pipeline) discard(ctx context.Context, id core.DocumentID, logger *slog.Logger) {
	err := p.documents.DeleteDocument(context.WithoutCancel(ctx), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("error deleting failed document", "err", err)
	}
}

// DeleteDocument removes a document, its chunks and its bound mappings.
func (p *Pipeline) DeleteDocument(ctx context.Context, id core.DocumentID) error {
	if err := p.documents.DeleteDocument(ctx, id); err != nil {
		return err
	}
	p.logger.Info("document deleted", "document_id", id)
	return nil
}

// Submit validates req and ingests it in the background.
// The returned job ID can be polled with Job. When every worker is busy the
// request is rejected with ErrBusy instead of waiting for a free worker.
func (p *Pipeline) Submit(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	job := p.jobs.add()
	p.metrics.JobQueued()

	err := p.pool.Submit(func() {
		defer p.metrics.JobFinished()
		p.jobs.update(job, func(j *Job) { j.Status = JobRunning })

		result, err := p.Ingest(context.Background(), req)
		p.jobs.update(job, func(j *Job) {
			if err != nil {
				j.Status = JobFailed
				j.Error = err.Error()
				return
			}
			j.Status = JobSucceeded
			j.DocumentID = result.DocumentID
			j.ChunkCount = result.ChunkCount
			j.DuplicateOf = result.DuplicateOf
		})
	})
	if err != nil {
		p.metrics.JobFinished()
		p.jobs.remove(job)
		if errors.Is(err, ants.ErrPoolOverload) {
			p.logger.Warn("ingestion workers busy, rejecting job", "phone", req.Phone)
			return "", ErrBusy
		}
		p.logger.Error("error submitting ingestion job", "phone", req.Phone, "err", err)
		return "", fmt.Errorf("submit ingestion job: %w", err)
	}
	return job, nil
}

// Job returns a snapshot of a background job.
func (p *Pipeline) Job(id string) (Job, error) {
	return p.jobs.get(id)
}

// Release frees the worker pool without waiting for queued jobs.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Drain waits up to timeout for running jobs, then releases the pool.
func (p *Pipeline) Drain(timeout time.Duration) error {
	if p.pool == nil {
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}
