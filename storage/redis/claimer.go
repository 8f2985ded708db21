// Package redis provides a cross-host claim on inbound event IDs backed by
// Redis SETNX. It narrows the window in which two responders on different
// hosts could both start on the same redelivered event; the durable store's
// unique insert remains the final guard.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a claim outlives a crashed responder.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "docreply:event:"

// commands is the subset of redis.Cmdable the claimer uses.
type commands interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Claimer claims event IDs with SETNX.
type Claimer struct {
	rdb commands
	ttl time.Duration
}

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// Dial connects to Redis and verifies the connection with a PING.
func Dial(ctx context.Context, opts Options) (*Claimer, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewClaimer(rdb, opts.TTL), rdb, nil
}

// NewClaimer wraps a go-redis client. A non-positive ttl selects DefaultTTL.
func NewClaimer(rdb redis.Cmdable, ttl time.Duration) *Claimer {
	return newClaimer(rdb, ttl)
}

func newClaimer(rdb commands, ttl time.Duration) *Claimer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Claimer{rdb: rdb, ttl: ttl}
}

// Claim reports whether this caller is the first to claim id.
func (c *Claimer) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, keyPrefix+id, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming event %s: %w", id, err)
	}
	return ok, nil
}

// Release drops a claim so a later redelivery can be processed.
func (c *Claimer) Release(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("releasing event %s: %w", id, err)
	}
	return nil
}
