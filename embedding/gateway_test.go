package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/docreply/ai"
	"github.com/poiesic/docreply/ai/mock"
	"github.com/poiesic/docreply/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, embedder ai.Embedder, opts ...Option) (*Gateway, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	all := append([]Option{WithClock(clock)}, opts...)
	g, err := NewGateway(embedder, all...)
	require.NoError(t, err)
	return g, clock
}

func TestNewGateway_Validation(t *testing.T) {
	_, err := NewGateway(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewGateway(mock.NewMockEmbedder(), WithGroupSize(0))
	assert.ErrorIs(t, err, ErrInvalidGroupSize)

	_, err = NewGateway(mock.NewMockEmbedder(), WithMaxRetries(-1))
	assert.ErrorIs(t, err, ErrInvalidMaxRetries)
}

func TestEmbed_RetriesRateLimit(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	calls := 0
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls <= 2 {
			return nil, fmt.Errorf("%w: 429", ai.ErrRateLimited)
		}
		return []float32{1, 0}, nil
	}

	m := metrics.New()
	g, clock := newTestGateway(t, embedder, WithMetrics(m))
	v, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clock.Sleeps())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbeddingRetries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbeddingCallsTotal.WithLabelValues("rate_limited")))
}

func TestEmbed_GivesUpAfterMaxRetries(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, ai.ErrRateLimited
	}

	g, _ := newTestGateway(t, embedder, WithMaxRetries(3))
	_, err := g.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ai.ErrRateLimited)
	assert.Equal(t, 4, embedder.CallCount())
}

func TestEmbed_OtherErrorsNotRetried(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	upstream := errors.New("invalid model")
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, upstream
	}

	g, clock := newTestGateway(t, embedder)
	_, err := g.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, 1, embedder.CallCount())
	assert.Empty(t, clock.Sleeps())
}

func TestEmbed_TransientPolicyIsOptIn(t *testing.T) {
	newEmbedder := func() *mock.MockEmbedder {
		e := mock.NewMockEmbedder()
		var n atomic.Int32
		e.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			if n.Add(1) == 1 {
				return nil, context.DeadlineExceeded
			}
			return []float32{1}, nil
		}
		return e
	}

	g, _ := newTestGateway(t, newEmbedder())
	_, err := g.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "timeouts surface by default")

	g, _ = newTestGateway(t, newEmbedder(), WithRetryPolicy(RetryOnTransient))
	v, err := g.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
}

func TestEmbed_EmptyVector(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{}, nil
	}

	g, _ := newTestGateway(t, embedder)
	_, err := g.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestEmbed_CallTimeout(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	g, err := NewGateway(embedder, WithCallTimeout(10*time.Millisecond), WithPacer(NoPacing()))
	require.NoError(t, err)
	_, err = g.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		// Later items finish first to shake out ordering bugs.
		var n int
		fmt.Sscanf(text, "t%d", &n)
		time.Sleep(time.Duration(10-n%10) * time.Millisecond)
		return []float32{float32(n), 1}, nil
	}

	texts := make([]string, 23)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	g, _ := newTestGateway(t, embedder, WithGroupSize(5))
	vectors, err := g.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vector %d out of order", i)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	g, clock := newTestGateway(t, mock.NewMockEmbedder())
	vectors, err := g.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Empty(t, clock.Sleeps())
}

func TestEmbedBatch_OneGroupPerWindow(t *testing.T) {
	clock := newFakeClock()

	var mu sync.Mutex
	var callTimes []time.Time
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		callTimes = append(callTimes, clock.Now())
		mu.Unlock()
		return []float32{1, 2, 3}, nil
	}

	const groupSize = 55
	const delay = 61 * time.Second
	g, err := NewGateway(embedder,
		WithClock(clock),
		WithGroupSize(groupSize),
		WithPacer(NewIntervalPacer(delay, clock)),
	)
	require.NoError(t, err)

	texts := make([]string, 200)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	var progress []int
	g.progress = func(done, total int) {
		assert.Equal(t, 200, total)
		progress = append(progress, done)
	}

	_, err = g.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, []int{55, 110, 165, 200}, progress)
	assert.Equal(t, []time.Duration{delay, delay, delay}, clock.Sleeps())

	sort.Slice(callTimes, func(i, j int) bool { return callTimes[i].Before(callTimes[j]) })
	for i := range callTimes {
		inWindow := 0
		for j := i; j < len(callTimes) && callTimes[j].Sub(callTimes[i]) < delay; j++ {
			inWindow++
		}
		assert.LessOrEqual(t, inWindow, groupSize, "more than one group inside the delay window")
	}
}

func TestEmbedBatch_DelayFollowsSlowGroup(t *testing.T) {
	clock := newFakeClock()

	var starts, ends []time.Time
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		starts = append(starts, clock.Now())
		if text == "slow" {
			clock.Advance(300 * time.Millisecond)
		}
		ends = append(ends, clock.Now())
		return []float32{1}, nil
	}

	const delay = 400 * time.Millisecond
	g, err := NewGateway(embedder,
		WithClock(clock),
		WithGroupSize(1),
		WithPacer(NewIntervalPacer(delay, clock)),
	)
	require.NoError(t, err)

	_, err = g.EmbedBatch(context.Background(), []string{"slow", "fast"})
	require.NoError(t, err)
	require.Len(t, starts, 2)
	assert.Equal(t, delay, starts[1].Sub(ends[0]), "gap runs from the end of the previous group")
}

func TestEmbedBatch_FailureFailsWholeBatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "bad" {
			return []float32{}, nil
		}
		return []float32{1}, nil
	}

	g, _ := newTestGateway(t, embedder, WithGroupSize(2))
	vectors, err := g.EmbedBatch(context.Background(), []string{"a", "b", "bad", "c"})
	assert.ErrorIs(t, err, ErrEmptyVector)
	assert.Contains(t, err.Error(), "chunk 3")
	assert.Nil(t, vectors, "no partial result")
}

func TestEmbedBatch_DimensionMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "short" {
			return []float32{1}, nil
		}
		return []float32{1, 2}, nil
	}

	g, _ := newTestGateway(t, embedder)
	_, err := g.EmbedBatch(context.Background(), []string{"a", "short"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
