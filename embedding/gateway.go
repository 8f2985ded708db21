package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docreply/ai"
	"github.com/poiesic/docreply/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultGroupSize  = 55
	DefaultGroupDelay = 61 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Gateway turns text into vectors on top of an ai.Embedder, adding retry on
// throttling, paced batch groups and vector validation.
type Gateway struct {
	embedder    ai.Embedder
	pacer       Pacer
	clock       Clock
	policy      RetryPolicy
	maxRetries  int
	baseDelay   time.Duration
	groupSize   int
	callTimeout time.Duration
	progress    func(done, total int)
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway) error

// WithPacer replaces the default interval pacer.
func WithPacer(p Pacer) Option {
	return func(g *Gateway) error {
		if p == nil {
			p = NoPacing()
		}
		g.pacer = p
		return nil
	}
}

// WithClock injects a clock for backoff sleeps and the default pacer.
func WithClock(c Clock) Option {
	return func(g *Gateway) error {
		if c == nil {
			c = RealClock()
		}
		g.clock = c
		return nil
	}
}

// WithRetryPolicy sets which errors are retried. Default is RetryOnRateLimit.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) error {
		if p == nil {
			p = NeverRetry
		}
		g.policy = p
		return nil
	}
}

// WithMaxRetries caps retries per text. Default is 3.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) error {
		if n < 0 {
			return ErrInvalidMaxRetries
		}
		g.maxRetries = n
		return nil
	}
}

// WithBaseDelay sets the backoff base. Retry n waits base * 2^n. Default is 1s.
func WithBaseDelay(d time.Duration) Option {
	return func(g *Gateway) error {
		g.baseDelay = d
		return nil
	}
}

// WithGroupSize sets how many texts are embedded concurrently per group. Default is 55.
func WithGroupSize(n int) Option {
	return func(g *Gateway) error {
		if n <= 0 {
			return ErrInvalidGroupSize
		}
		g.groupSize = n
		return nil
	}
}

// WithCallTimeout bounds each provider call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) error {
		g.callTimeout = d
		return nil
	}
}

// WithProgress registers a callback invoked after each completed group.
func WithProgress(fn func(done, total int)) Option {
	return func(g *Gateway) error {
		g.progress = fn
		return nil
	}
}

// WithMetrics records provider calls, retries and groups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) error {
		g.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGateway creates a gateway. Without WithPacer, groups are spaced by
// DefaultGroupDelay using the gateway's clock.
func NewGateway(embedder ai.Embedder, opts ...Option) (*Gateway, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	g := &Gateway{
		embedder:   embedder,
		clock:      RealClock(),
		policy:     RetryOnRateLimit,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		groupSize:  DefaultGroupSize,
		logger:     slog.Default().With("component", "embedding-gateway"),
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	if g.pacer == nil {
		g.pacer = NewIntervalPacer(DefaultGroupDelay, g.clock)
	}
	return g, nil
}

// Embed returns the embedding of a single text, retrying per the retry policy.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	attempt := 0
	err := RetryWithBackoff(ctx, g.clock, g.policy, g.maxRetries, g.baseDelay, func() error {
		if attempt > 0 {
			g.metrics.EmbeddingRetry()
		}
		attempt++

		callCtx, cancel := g.callContext(ctx)
		defer cancel()

		v, err := g.embedder.EmbedText(callCtx, text)
		if err != nil {
			if errors.Is(err, ai.ErrRateLimited) {
				g.metrics.EmbeddingCall("rate_limited")
			} else {
				g.metrics.EmbeddingCall("error")
			}
			return err
		}
		g.metrics.EmbeddingCall("ok")
		vector = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	return vector, nil
}

// EmbedBatch embeds texts in paced groups and returns vectors in input order.
// Texts inside a group are embedded concurrently. Any failure or invalid
// vector fails the whole batch; no partial result is returned.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	groups := (len(texts) + g.groupSize - 1) / g.groupSize
	for start := 0; start < len(texts); start += g.groupSize {
		end := min(start+g.groupSize, len(texts))
		groupNumber := start/g.groupSize + 1

		if err := g.pacer.Wait(ctx, end-start); err != nil {
			return nil, fmt.Errorf("waiting for embedding group %d/%d: %w", groupNumber, groups, err)
		}
		g.metrics.EmbeddingGroup()
		g.logger.Debug("embedding group", "group", groupNumber, "groups", groups, "size", end-start)

		eg, egCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			eg.Go(func() error {
				v, err := g.Embed(egCtx, texts[i])
				if err != nil {
					return fmt.Errorf("chunk %d: %w", i+1, err)
				}
				vectors[i] = v
				return nil
			})
		}
		err := eg.Wait()
		g.pacer.Done()
		if err != nil {
			return nil, err
		}

		if g.progress != nil {
			g.progress(end, len(texts))
		}
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d, expected %d", ErrDimensionMismatch, i+1, len(v), dim)
		}
	}
	return vectors, nil
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.callTimeout)
}
