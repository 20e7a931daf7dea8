package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces rate limit counters.
const keyPrefix = "audiopress:ratelimit:"

// RedisLimiter is a Redis-backed fixed-window limiter suitable for
// multi-node deployments. The counter key expires with the window, so
// idle users cost nothing.
type RedisLimiter struct {
	client *redis.Client
	config Config
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, config Config) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		config: config.withDefaults(),
	}
}

// Allow implements Limiter. INCR creates the counter on first hit; the
// window expiry is attached only then, so later hits in the same window
// never push the reset forward.
func (l *RedisLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	key := keyPrefix + userID

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis incr failed: %w", err)
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis ttl failed: %w", err)
	}

	// First hit of the window, or a counter that lost its expiry
	// (crash between INCR and EXPIRE), gets a fresh deadline.
	if count == 1 || ttl < 0 {
		if err := l.client.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("redis expire failed: %w", err)
		}
		ttl = l.config.Window
	}

	if count > int64(l.config.MaxRequests) {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: ttl,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Remaining: l.config.MaxRequests - int(count),
	}, nil
}

// Reset clears a user's counter, for the scheduled quota reset job and
// admin overrides.
func (l *RedisLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// ResetAll clears every counter in the namespace.
func (l *RedisLimiter) ResetAll(ctx context.Context) (int, error) {
	var keys []string
	iter := l.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("redis del failed: %w", err)
	}
	return len(keys), nil
}

var _ Limiter = (*RedisLimiter)(nil)
