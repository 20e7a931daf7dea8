// Package cache stores synthesis results keyed by a fingerprint of the
// input text and options, so regenerating unchanged content skips the
// vendor call entirely.
//
// Two backends are provided: RedisCache for distributed deployments and
// MemoryCache for single-node or development use.
package cache

import (
	"context"
	"crypto/md5" //nolint:gosec // non-cryptographic cache key fingerprint
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// KeyPrefix namespaces all cache keys.
const KeyPrefix = "audiopress:tts:"

// DefaultTTL is the cache entry lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned by Get when no entry exists for the key.
var ErrMiss = errors.New("cache miss")

var errNilEntry = errors.New("nil cache entry")

// Entry is a cached synthesis result.
type Entry struct {
	URL             string    `json:"url"`
	Provider        string    `json:"provider"`
	Voice           string    `json:"voice"`
	Format          string    `json:"format"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// KeyOptions are the synthesis options folded into a cache key. Two
// requests with the same text and options share one entry.
type KeyOptions struct {
	Provider string
	Voice    string
	Format   string
	Language string
	Speed    float64
}

// Key computes the cache key for a text/options pair. The options are
// canonicalized into a fixed field order so map iteration or request
// field order cannot produce different keys for the same request.
func Key(text string, opts KeyOptions) string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%.2f",
		opts.Provider, opts.Voice, opts.Format, opts.Language, opts.Speed)

	sum := md5.Sum([]byte(text + "|" + canonical)) //nolint:gosec
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Stats reports cache effectiveness counters for analytics.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Writes  int64 `json:"writes"`
	Entries int64 `json:"entries"`
}

// HitRate returns the fraction of lookups served from cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache stores and retrieves synthesis results.
type Cache interface {
	// Get returns the entry for key, or ErrMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry under key with the backend's TTL.
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes a single entry. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Flush removes every entry under the cache namespace.
	Flush(ctx context.Context) (int, error)

	// PurgeExpired removes entries created more than maxAge ago. It
	// covers entries written before a TTL reduction took effect.
	PurgeExpired(ctx context.Context, maxAge time.Duration) (int, error)

	// Stats reports hit/miss/write counters and the live entry count.
	Stats(ctx context.Context) (Stats, error)
}
