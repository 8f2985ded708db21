package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer gates batch groups so the provider's per-window quota is respected.
// Wait blocks until a group of n requests may be issued; Done reports that
// the group admitted by the last successful Wait has finished.
// A Pacer is shared by every batch call made through a Gateway.
type Pacer interface {
	Wait(ctx context.Context, n int) error
	Done()
}

// IntervalPacer admits one group at a time and keeps at least interval
// between a group finishing and the next one starting.
// The first group is issued immediately.
type IntervalPacer struct {
	interval time.Duration
	clock    Clock

	// slot holds a single token, taken by Wait and returned by Done.
	slot chan struct{}
	next time.Time
}

// NewIntervalPacer creates a pacer with a fixed delay between groups.
func NewIntervalPacer(interval time.Duration, clock Clock) *IntervalPacer {
	if clock == nil {
		clock = RealClock()
	}
	p := &IntervalPacer{interval: interval, clock: clock, slot: make(chan struct{}, 1)}
	p.slot <- struct{}{}
	return p
}

// Wait takes the slot once the previous group is done, then sleeps out
// whatever remains of the interval since it finished.
func (p *IntervalPacer) Wait(ctx context.Context, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.slot:
	}

	delay := p.next.Sub(p.clock.Now())
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		p.slot <- struct{}{}
		return ctx.Err()
	case <-p.clock.After(delay):
		return nil
	}
}

// Done starts the interval and hands the slot to the next waiter.
func (p *IntervalPacer) Done() {
	p.next = p.clock.Now().Add(p.interval)
	select {
	case p.slot <- struct{}{}:
	default:
	}
}

// TokenBucketPacer admits up to perWindow requests per window with a burst
// of one full window. Partial groups are admitted sooner than a fixed delay would allow.
type TokenBucketPacer struct {
	limiter *rate.Limiter
}

// NewTokenBucketPacer creates a token bucket refilling perWindow tokens every window.
func NewTokenBucketPacer(perWindow int, window time.Duration) *TokenBucketPacer {
	if perWindow < 1 {
		perWindow = 1
	}
	every := window / time.Duration(perWindow)
	return &TokenBucketPacer{
		limiter: rate.NewLimiter(rate.Every(every), perWindow),
	}
}

// Wait takes n tokens, clamped to the bucket size.
func (p *TokenBucketPacer) Wait(ctx context.Context, n int) error {
	if burst := p.limiter.Burst(); n > burst {
		n = burst
	}
	return p.limiter.WaitN(ctx, n)
}

// Done is a no-op; the bucket refills on its own schedule.
func (p *TokenBucketPacer) Done() {}

// unpaced never waits. It is used when pacing is disabled.
type unpaced struct{}

func (unpaced) Wait(ctx context.Context, _ int) error {
	return ctx.Err()
}

func (unpaced) Done() {}

// NoPacing returns a Pacer that never blocks.
func NoPacing() Pacer {
	return unpaced{}
}
