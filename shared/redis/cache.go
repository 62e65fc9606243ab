package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ViewCache is a generic JSON-backed Redis cache. Bind it to a specific type T;
// each instance holds a Redis client, a TTL (0 for keys that should not expire)
// and a per-operation timeout (0 to use the caller's deadline only).
//
// ViewCache never returns backend errors. Failures are logged and reported as
// misses or no-ops, so an unreachable Redis degrades reads to the store.
type ViewCache[T any] struct {
	client  goredis.Cmdable
	ttl     time.Duration
	timeout time.Duration
	log     zerolog.Logger
}

func NewViewCache[T any](client goredis.Cmdable, ttl, timeout time.Duration, log zerolog.Logger) *ViewCache[T] {
	return &ViewCache[T]{client: client, ttl: ttl, timeout: timeout, log: log}
}

// Get retrieves and unmarshals a value. Returns (nil, false) on any miss,
// backend error or deserialisation error.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return nil, false
	}
	return &v, true
}

// Set marshals value and stores it under key with the cache TTL.
func (c *ViewCache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Delete removes a key.
func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

func (c *ViewCache[T]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
