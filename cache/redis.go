package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint for SCAN iterations.
const scanBatch = 100

// RedisCache is a Redis-backed synthesis cache. Entries expire through
// Redis TTLs; PurgeExpired additionally removes entries that outlived a
// reduced TTL configuration.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithTTL sets the entry time-to-live. Default is DefaultTTL; zero means
// no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// NewRedisCache creates a Redis-backed cache.
//
// Example:
//
//	cache := NewRedisCache(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(12 * time.Hour),
//	)
func NewRedisCache(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	c.hits.Add(1)
	return &entry, nil
}

// Set implements Cache. The write and the TTL ride a single SET.
func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return errNilEntry
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	c.writes.Add(1)
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Flush implements Cache. It scans the namespace and deletes keys in
// pipelined batches.
func (c *RedisCache) Flush(ctx context.Context) (int, error) {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pipeline failed: %w", err)
	}

	return len(keys), nil
}

// PurgeExpired implements Cache. Entries are fetched with a pipelined GET
// and removed when their creation time falls outside maxAge.
func (c *RedisCache) PurgeExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	keys, err := c.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis pipeline failed: %w", err)
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	var stale []string
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue // expired between SCAN and GET
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Unreadable entries are purged too.
			stale = append(stale, keys[i])
			continue
		}
		if entry.CreatedAt.Before(cutoff) {
			stale = append(stale, keys[i])
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}

	delPipe := c.client.Pipeline()
	for _, key := range stale {
		delPipe.Del(ctx, key)
	}
	if _, err := delPipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pipeline failed: %w", err)
	}

	return len(stale), nil
}

// Stats implements Cache. Entry count comes from a namespace scan.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Writes:  c.writes.Load(),
		Entries: int64(len(keys)),
	}, nil
}

// scanKeys collects all keys in the cache namespace.
func (c *RedisCache) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}
