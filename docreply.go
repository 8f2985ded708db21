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

// Package docreply wires storage, the AI provider and the embedding gateway
// into the ingestion pipeline and the auto-responder.
package docreply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docreply/ai"
	"github.com/poiesic/docreply/ai/openai"
	"github.com/poiesic/docreply/config"
	"github.com/poiesic/docreply/delivery"
	"github.com/poiesic/docreply/embedding"
	"github.com/poiesic/docreply/extract"
	"github.com/poiesic/docreply/ingestion"
	"github.com/poiesic/docreply/metrics"
	"github.com/poiesic/docreply/reembed"
	"github.com/poiesic/docreply/responder"
	"github.com/poiesic/docreply/retrieval"
	"github.com/poiesic/docreply/storage"
	"github.com/poiesic/docreply/storage/badger"
	"github.com/poiesic/docreply/storage/postgres"
	"github.com/poiesic/docreply/storage/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Service owns the long-lived collaborators shared by every entry point.
type Service struct {
	cfg       *config.Config
	store     storage.Store
	provider  ai.AIProvider
	gateway   *embedding.Gateway
	retriever *retrieval.Retriever
	claimer   *redis.Claimer
	rdb       *goredis.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	store    storage.Store
	provider ai.AIProvider
	metrics  *metrics.Metrics
	progress func(done, total int)
	logger   *slog.Logger
}

// WithStore uses an already open store instead of the configured backend.
// The Service takes ownership and closes it.
func WithStore(store storage.Store) ServiceOption {
	return func(o *serviceOptions) { o.store = store }
}

// WithProvider uses the given AI provider instead of building one from config.
func WithProvider(p ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) { o.provider = p }
}

// WithMetrics shares a metrics registry. A fresh one is created otherwise.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithProgress reports embedding batch progress.
func WithProgress(fn func(done, total int)) ServiceOption {
	return func(o *serviceOptions) { o.progress = fn }
}

// WithLogger sets the logger passed to every component.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// Open validates cfg and opens every configured backend. Resources opened
// before a failure are closed again.
func Open(ctx context.Context, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &serviceOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.metrics == nil {
		options.metrics = metrics.New()
	}

	s := &Service{
		cfg:      cfg,
		store:    options.store,
		provider: options.provider,
		metrics:  options.metrics,
		logger:   options.logger,
	}

	var err error
	if s.store == nil {
		if s.store, err = openStore(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if s.provider == nil {
		if s.provider, err = openai.NewProvider(cfg.AIProviderConfig()); err != nil {
			s.Close()
			return nil, fmt.Errorf("creating AI provider: %w", err)
		}
	}

	s.gateway, err = embedding.NewGateway(s.provider.Embedder(), gatewayOptions(cfg, options)...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.retriever, err = retrieval.NewRetriever(s.store,
		retrieval.WithEmbedder(s.gateway),
		retrieval.WithLogger(component(s.logger, "retrieval")),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		s.claimer, s.rdb, err = redis.Dial(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TTL:      cfg.Redis.ClaimTTL,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
		return store, nil
	default:
		if cfg.Storage.InMemory {
			return badger.NewMemoryStore()
		}
		return badger.Open(cfg.Storage.Path)
	}
}

func gatewayOptions(cfg *config.Config, o *serviceOptions) []embedding.Option {
	e := cfg.Embedding
	pacer := embedding.Pacer(embedding.NewIntervalPacer(e.GroupDelay, embedding.RealClock()))
	if e.Pacer == config.PacerTokenBucket {
		pacer = embedding.NewTokenBucketPacer(e.GroupSize, e.GroupDelay)
	}
	policy := embedding.RetryOnRateLimit
	if e.RetryTransient {
		policy = embedding.RetryOnTransient
	}
	return []embedding.Option{
		embedding.WithGroupSize(e.GroupSize),
		embedding.WithPacer(pacer),
		embedding.WithRetryPolicy(policy),
		embedding.WithMaxRetries(e.MaxRetries),
		embedding.WithBaseDelay(e.BaseDelay),
		embedding.WithCallTimeout(cfg.AI.Timeout),
		embedding.WithProgress(o.progress),
		embedding.WithMetrics(o.metrics),
		embedding.WithLogger(component(o.logger, "embedding")),
	}
}

func component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

// Close releases the provider, Redis and the store, reporting every failure.
func (s *Service) Close() error {
	var errs []error
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("error closing redis client", "err", err)
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) Config() *config.Config { return s.cfg }
func (s *Service) Store() storage.Store { return s.store }
func (s *Service) Gateway() *embedding.Gateway { return s.gateway }
func (s *Service) Retriever() *retrieval.Retriever { return s.retriever }
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// NewPipeline creates an ingestion pipeline using the configured chunking and
// pool size. opts are applied after the configured ones.
func (s *Service) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	all := append([]ingestion.Option{
		ingestion.WithChunking(s.cfg.Ingestion.ChunkSize, s.cfg.Ingestion.ChunkOverlap),
		ingestion.WithPoolSize(s.cfg.Ingestion.PoolSize),
		ingestion.WithMetrics(s.metrics),
		ingestion.WithLogger(component(s.logger, "ingestion")),
	}, opts...)
	return ingestion.NewPipeline(s.store, s.store, s.store, s.gateway, all...)
}

// NewReembedder returns a reembedder that rewrites stored vectors through
// the service's embedding gateway. A nil config uses reembed.DefaultConfig.
func (s *Service) NewReembedder(config *reembed.Config, output io.Writer) (*reembed.Reembedder, error) {
	if config == nil {
		config = reembed.DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = s.logger
	}
	return reembed.NewReembedder(s.store, s.store, s.gateway, config, output)
}

// NewSender creates the configured delivery channel.
func (s *Service) NewSender() *delivery.ElevenzaSender {
	return delivery.NewElevenzaSender(delivery.Config{
		BaseURL: s.cfg.Delivery.BaseURL,
		Timeout: s.cfg.Delivery.Timeout,
	}, component(s.logger, "delivery"))
}

// NewResponder creates an auto-responder delivering through sender. The
// Redis claimer is attached when configured.
func (s *Service) NewResponder(sender delivery.Sender, opts ...responder.Option) (*responder.Responder, error) {
	all := []responder.Option{
		responder.WithK(s.cfg.Responder.K),
		responder.WithHistoryLimit(s.cfg.Responder.HistoryTurns),
		responder.WithPoolSize(s.cfg.Responder.PoolSize),
		responder.WithCallTimeout(s.cfg.AI.Timeout),
		responder.WithCompletionOptions(ai.CompletionOptions{
			Temperature: s.cfg.AI.Temperature,
			MaxTokens:   s.cfg.AI.MaxTokens,
		}),
		responder.WithMetrics(s.metrics),
		responder.WithLogger(component(s.logger, "responder")),
	}
	if s.claimer != nil {
		all = append(all, responder.WithClaimer(s.claimer))
	}
	all = append(all, opts...)
	return responder.NewResponder(responder.Dependencies{
		Events:        s.store,
		Mappings:      s.store,
		Conversations: s.store,
		Embedder:      s.gateway,
		Retriever:     s.retriever,
		Completer:     s.provider.Completer(),
		Sender:        sender,
	}, all...)
}

// NewExtractor creates a document extractor. Image OCR and vision
// transcription are enabled when an OCR API key is configured.
func (s *Service) NewExtractor() (*extract.Extractor, error) {
	if s.cfg.OCR.APIKey == "" {
		return extract.NewExtractor(nil), nil
	}
	client, err := extract.NewClient(extract.Config{
		BaseURL: s.cfg.OCR.BaseURL,
		APIKey:  s.cfg.OCR.APIKey,
		Model:   s.cfg.OCR.Model,
	}, component(s.logger, "ocr"))
	if err != nil {
		return nil, err
	}
	transcriber, err := extract.NewTranscriber(extract.Config{
		BaseURL: s.cfg.OCR.BaseURL,
		APIKey:  s.cfg.OCR.APIKey,
		Model:   s.cfg.OCR.VisionModel,
	}, component(s.logger, "transcriber"))
	if err != nil {
		return nil, err
	}
	return extract.NewExtractor(client, extract.WithTranscriber(transcriber)), nil
}
