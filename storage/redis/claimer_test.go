package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps keys in a map and honors SETNX semantics.
type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]time.Duration)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.keys[key]; ok {
			delete(f.keys, key)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func TestClaim_FirstWins(t *testing.T) {
	rdb := newFakeRedis()
	c := newClaimer(rdb, time.Hour)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Claim(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Hour, rdb.keys[keyPrefix+"wamid.1"])
}

func TestClaim_ReleaseAllowsReclaim(t *testing.T) {
	c := newClaimer(newFakeRedis(), 0)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "wamid.2")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Release(ctx, "wamid.2"))

	ok, err = c.Claim(ctx, "wamid.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaim_DefaultTTL(t *testing.T) {
	rdb := newFakeRedis()
	c := newClaimer(rdb, 0)
	_, err := c.Claim(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, rdb.keys[keyPrefix+"x"])
}

func TestClaim_Error(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	c := newClaimer(rdb, time.Minute)

	ok, err := c.Claim(context.Background(), "wamid.3")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection refused")
	assert.ErrorContains(t, c.Release(context.Background(), "wamid.3"), "connection refused")
}
