package cache

import (
	"context"
	"sync"
	"time"
)

// memoryEntry pairs a cached value with its expiry deadline.
type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache is an in-memory synthesis cache. It is thread-safe and
// suitable for development and single-instance deployments; distributed
// setups should use RedisCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	hits   int64
	misses int64
	writes int64
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryTTL sets the entry time-to-live. Default is DefaultTTL; zero
// means no expiration.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		c.ttl = ttl
	}
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get implements Cache. Expired entries count as misses and are removed
// lazily.
func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	c.mu.RLock()
	stored, exists := c.entries[key]
	c.mu.RUnlock()

	if exists && c.expired(stored, time.Now()) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		exists = false
	}

	if !exists {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, ErrMiss
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()

	entry := stored.entry
	return &entry, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return errNilEntry
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{entry: *entry, expiresAt: expiresAt}
	c.writes++
	c.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Flush implements Cache.
func (c *MemoryCache) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return removed, nil
}

// PurgeExpired implements Cache. It sweeps entries past their deadline as
// well as entries older than maxAge.
func (c *MemoryCache) PurgeExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	now := time.Now()
	cutoff := now.UTC().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, stored := range c.entries {
		if c.expired(stored, now) || (maxAge > 0 && stored.entry.CreatedAt.Before(cutoff)) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Stats implements Cache.
func (c *MemoryCache) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Writes:  c.writes,
		Entries: int64(len(c.entries)),
	}, nil
}

func (c *MemoryCache) expired(stored memoryEntry, now time.Time) bool {
	return !stored.expiresAt.IsZero() && now.After(stored.expiresAt)
}
