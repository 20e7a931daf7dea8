package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetMiss(t *testing.T) {
	cache := NewMemoryCache()

	_, err := cache.Get(context.Background(), Key("nothing", KeyOptions{}))
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	key := Key("Hello world", KeyOptions{Provider: "azure"})
	require.NoError(t, cache.Set(ctx, key, testEntry()))

	entry, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "openai", entry.Provider)

	// The cache hands out copies; mutating the result must not poison
	// the stored entry.
	entry.URL = "mutated"
	again, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/audio/abc.mp3", again.URL)
}

func TestMemoryCache_SetNil(t *testing.T) {
	cache := NewMemoryCache()
	assert.Error(t, cache.Set(context.Background(), "key", nil))
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryCache(WithMemoryTTL(10 * time.Millisecond))
	ctx := context.Background()

	key := Key("expiring", KeyOptions{})
	require.NoError(t, cache.Set(ctx, key, testEntry()))

	time.Sleep(20 * time.Millisecond)

	_, err := cache.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	key := Key("to delete", KeyOptions{})
	require.NoError(t, cache.Set(ctx, key, testEntry()))
	require.NoError(t, cache.Delete(ctx, key))

	_, err := cache.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_Flush(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		require.NoError(t, cache.Set(ctx, Key(text, KeyOptions{}), testEntry()))
	}

	removed, err := cache.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	old := testEntry()
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, cache.Set(ctx, Key("old", KeyOptions{}), old))
	require.NoError(t, cache.Set(ctx, Key("fresh", KeyOptions{}), testEntry()))

	removed, err := cache.PurgeExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = cache.Get(ctx, Key("fresh", KeyOptions{}))
	assert.NoError(t, err)
}

func TestMemoryCache_PurgeExpired_Deadline(t *testing.T) {
	cache := NewMemoryCache(WithMemoryTTL(10 * time.Millisecond))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, Key("expiring", KeyOptions{}), testEntry()))
	time.Sleep(20 * time.Millisecond)

	// Entries past their TTL deadline are swept even under a generous
	// maxAge.
	removed, err := cache.PurgeExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	key := Key("stats", KeyOptions{})
	require.NoError(t, cache.Set(ctx, key, testEntry()))

	_, err := cache.Get(ctx, key)
	require.NoError(t, err)
	_, err = cache.Get(ctx, Key("missing", KeyOptions{}))
	require.ErrorIs(t, err, ErrMiss)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, int64(1), stats.Entries)
}
