package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AudioPress/audiopress/metrics/prometheus"
	"github.com/AudioPress/audiopress/tts"
)

const (
	// quotaKeyPrefix namespaces quota counters.
	quotaKeyPrefix = "audiopress:quota:"

	// quotaMonthLayout is the calendar-month key suffix (UTC).
	quotaMonthLayout = "2006-01"

	// quotaKeyTTL keeps a month's counter around a little past the next
	// boundary for analytics, then lets Redis drop it.
	quotaKeyTTL = 62 * 24 * time.Hour

	quotaScanBatch = 100
)

// QuotaTracker enforces per-provider monthly character quotas backed by
// Redis. Counters are keyed by provider and UTC calendar month, so a new
// month starts at zero without any reset step. Providers without a
// configured limit are unlimited.
type QuotaTracker struct {
	client *redis.Client
	limits map[string]int64
	now    func() time.Time
}

// NewQuotaTracker creates a tracker. Limits map provider name to the
// monthly character budget; zero or absent means unlimited.
func NewQuotaTracker(client *redis.Client, limits map[string]int64) *QuotaTracker {
	tracked := make(map[string]int64, len(limits))
	for provider, limit := range limits {
		if limit > 0 {
			tracked[provider] = limit
		}
	}
	return &QuotaTracker{
		client: client,
		limits: tracked,
		now:    time.Now,
	}
}

// Limit returns the provider's monthly character budget, zero when
// unlimited.
func (t *QuotaTracker) Limit(provider string) int64 {
	return t.limits[provider]
}

func (t *QuotaTracker) key(provider string) string {
	return quotaKeyPrefix + provider + ":" + t.now().UTC().Format(quotaMonthLayout)
}

// Check reports whether synthesizing chars more characters stays within
// the provider's quota. Exceeding it returns tts.ErrQuotaExceeded.
func (t *QuotaTracker) Check(ctx context.Context, provider string, chars int) error {
	limit, limited := t.limits[provider]
	if !limited {
		return nil
	}

	used, err := t.Usage(ctx, provider)
	if err != nil {
		return err
	}

	if used+int64(chars) > limit {
		return fmt.Errorf("%w: %s used %d of %d characters this month",
			tts.ErrQuotaExceeded, provider, used, limit)
	}
	return nil
}

// Consume adds chars to the provider's monthly counter and returns the
// new total. The expiry is attached on the counter's first write.
func (t *QuotaTracker) Consume(ctx context.Context, provider string, chars int) (int64, error) {
	key := t.key(provider)

	total, err := t.client.IncrBy(ctx, key, int64(chars)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby failed: %w", err)
	}

	if total == int64(chars) {
		if err := t.client.Expire(ctx, key, quotaKeyTTL).Err(); err != nil {
			return total, fmt.Errorf("redis expire failed: %w", err)
		}
	}

	prometheus.SetQuotaUsage(provider, float64(total))
	return total, nil
}

// Usage returns the provider's character count for the current month.
func (t *QuotaTracker) Usage(ctx context.Context, provider string) (int64, error) {
	used, err := t.client.Get(ctx, t.key(provider)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return used, nil
}

// Reset clears the provider's counter for the current month.
func (t *QuotaTracker) Reset(ctx context.Context, provider string) error {
	if err := t.client.Del(ctx, t.key(provider)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	prometheus.SetQuotaUsage(provider, 0)
	return nil
}

// ResetAll clears every quota counter, all months included.
func (t *QuotaTracker) ResetAll(ctx context.Context) (int, error) {
	keys, err := t.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("redis del failed: %w", err)
	}
	for provider := range t.limits {
		prometheus.SetQuotaUsage(provider, 0)
	}
	return len(keys), nil
}

// PurgeStale removes counters from months other than the current one.
// The scheduled quota reset job runs this daily; the keys also carry a
// TTL, so this is belt and braces against clock skew.
func (t *QuotaTracker) PurgeStale(ctx context.Context) (int, error) {
	keys, err := t.scanKeys(ctx)
	if err != nil {
		return 0, err
	}

	suffix := ":" + t.now().UTC().Format(quotaMonthLayout)
	var stale []string
	for _, key := range keys {
		if !strings.HasSuffix(key, suffix) {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := t.client.Del(ctx, stale...).Err(); err != nil {
		return 0, fmt.Errorf("redis del failed: %w", err)
	}
	return len(stale), nil
}

// Providers returns the provider names with a configured limit, sorted.
func (t *QuotaTracker) Providers() []string {
	names := make([]string, 0, len(t.limits))
	for provider := range t.limits {
		names = append(names, provider)
	}
	sort.Strings(names)
	return names
}

func (t *QuotaTracker) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := t.client.Scan(ctx, 0, quotaKeyPrefix+"*", quotaScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}
