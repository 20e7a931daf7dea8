package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AudioPress/audiopress/tts"
)

func setupQuotaTracker(t *testing.T, limits map[string]int64) (*QuotaTracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewQuotaTracker(client, limits), mr
}

func TestQuotaTrackerCheckAndConsume(t *testing.T) {
	tracker, _ := setupQuotaTracker(t, map[string]int64{tts.ProviderAzure: 100})
	ctx := context.Background()

	require.NoError(t, tracker.Check(ctx, tts.ProviderAzure, 80))

	total, err := tracker.Consume(ctx, tts.ProviderAzure, 80)
	require.NoError(t, err)
	assert.Equal(t, int64(80), total)

	require.NoError(t, tracker.Check(ctx, tts.ProviderAzure, 20), "exactly at the limit")

	err = tracker.Check(ctx, tts.ProviderAzure, 21)
	require.Error(t, err)
	assert.ErrorIs(t, err, tts.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "used 80 of 100")
}

func TestQuotaTrackerUnlimitedProvider(t *testing.T) {
	tracker, _ := setupQuotaTracker(t, map[string]int64{tts.ProviderAzure: 100})
	ctx := context.Background()

	// Providers without a configured limit are unmetered.
	require.NoError(t, tracker.Check(ctx, tts.ProviderGoogle, 1_000_000))
}

func TestQuotaTrackerConsumeSetsExpiry(t *testing.T) {
	tracker, mr := setupQuotaTracker(t, map[string]int64{tts.ProviderPolly: 1000})
	ctx := context.Background()

	_, err := tracker.Consume(ctx, tts.ProviderPolly, 50)
	require.NoError(t, err)

	key := tracker.key(tts.ProviderPolly)
	assert.Greater(t, mr.TTL(key), time.Duration(0), "first write attaches a TTL")

	// Subsequent writes accumulate without resetting the key.
	total, err := tracker.Consume(ctx, tts.ProviderPolly, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(75), total)

	used, err := tracker.Usage(ctx, tts.ProviderPolly)
	require.NoError(t, err)
	assert.Equal(t, int64(75), used)
}

func TestQuotaTrackerUsageEmpty(t *testing.T) {
	tracker, _ := setupQuotaTracker(t, map[string]int64{tts.ProviderAzure: 100})

	used, err := tracker.Usage(context.Background(), tts.ProviderAzure)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestQuotaTrackerMonthRollover(t *testing.T) {
	tracker, _ := setupQuotaTracker(t, map[string]int64{tts.ProviderAzure: 100})
	ctx := context.Background()

	january := time.Date(2026, time.January, 20, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return january }

	_, err := tracker.Consume(ctx, tts.ProviderAzure, 90)
	require.NoError(t, err)
	assert.ErrorIs(t, tracker.Check(ctx, tts.ProviderAzure, 20), tts.ErrQuotaExceeded)

	// A new month keys a fresh counter, so usage starts over.
	tracker.now = func() time.Time { return january.AddDate(0, 1, 0) }
	require.NoError(t, tracker.Check(ctx, tts.ProviderAzure, 20))

	used, err := tracker.Usage(ctx, tts.ProviderAzure)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestQuotaTrackerReset(t *testing.T) {
	tracker, _ := setupQuotaTracker(t, map[string]int64{tts.ProviderAzure: 100})
	ctx := context.Background()

	_, err := tracker.Consume(ctx, tts.ProviderAzure, 90)
	require.NoError(t, err)

	require.NoError(t, tracker.Reset(ctx, tts.ProviderAzure))

	used, err := tracker.Usage(ctx, tts.ProviderAzure)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestQuotaTrackerResetAll(t *testing.T) {
	tracker, _ := setupQuotaTracker(t, map[string]int64{
		tts.ProviderAzure:  100,
		tts.ProviderGoogle: 200,
	})
	ctx := context.Background()

	_, err := tracker.Consume(ctx, tts.ProviderAzure, 10)
	require.NoError(t, err)
	_, err = tracker.Consume(ctx, tts.ProviderGoogle, 20)
	require.NoError(t, err)

	deleted, err := tracker.ResetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	for _, provider := range []string{tts.ProviderAzure, tts.ProviderGoogle} {
		used, err := tracker.Usage(ctx, provider)
		require.NoError(t, err)
		assert.Zero(t, used, "usage for %s after reset", provider)
	}
}

func TestQuotaTrackerPurgeStale(t *testing.T) {
	tracker, mr := setupQuotaTracker(t, map[string]int64{tts.ProviderAzure: 100})
	ctx := context.Background()

	january := time.Date(2026, time.January, 20, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return january }
	_, err := tracker.Consume(ctx, tts.ProviderAzure, 30)
	require.NoError(t, err)
	staleKey := tracker.key(tts.ProviderAzure)

	tracker.now = func() time.Time { return january.AddDate(0, 1, 0) }
	_, err = tracker.Consume(ctx, tts.ProviderAzure, 40)
	require.NoError(t, err)
	currentKey := tracker.key(tts.ProviderAzure)

	purged, err := tracker.PurgeStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	assert.False(t, mr.Exists(staleKey), "stale month removed")
	assert.True(t, mr.Exists(currentKey), "current month preserved")
}

func TestQuotaTrackerProviders(t *testing.T) {
	tracker, _ := setupQuotaTracker(t, map[string]int64{
		tts.ProviderGoogle: 200,
		tts.ProviderAzure:  100,
		tts.ProviderPolly:  0,
	})

	assert.Equal(t, []string{tts.ProviderAzure, tts.ProviderGoogle}, tracker.Providers(),
		"zero limits are not tracked")
}

func TestQuotaTrackerCheckUnavailableRedis(t *testing.T) {
	tracker, mr := setupQuotaTracker(t, map[string]int64{tts.ProviderAzure: 100})
	mr.Close()

	err := tracker.Check(context.Background(), tts.ProviderAzure, 10)
	require.Error(t, err)
	assert.False(t, errors.Is(err, tts.ErrQuotaExceeded), "transport errors are not quota errors")
}
