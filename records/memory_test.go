package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generatedRecord(contentID string) *Record {
	record := New(contentID)
	record.Enabled = true
	record.Audio.Status = StatusGenerated
	record.Audio.URL = "https://cdn.example.com/" + contentID + ".mp3"
	record.Voice = Voice{Provider: "polly", VoiceID: "Joanna", Language: "en-US"}
	return record
}

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, generatedRecord("post-1")))

	loaded, err := store.Load(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "post-1", loaded.ContentID)
	assert.Equal(t, StatusGenerated, loaded.Audio.Status)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx, "post-404")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Load(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidContentID)
}

func TestMemoryStore_SaveValidates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record := New("post-2")
	record.Audio.Status = Status("done")
	assert.Error(t, store.Save(ctx, record))

	assert.ErrorIs(t, store.Save(ctx, New("")), ErrInvalidContentID)
	assert.Error(t, store.Save(ctx, nil))
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, generatedRecord("post-3")))
	require.NoError(t, store.Delete(ctx, "post-3"))

	_, err := store.Load(ctx, "post-3")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "post-3"), ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, id := range []string{"post-a", "post-b", "post-c"} {
		require.NoError(t, store.Save(ctx, generatedRecord(id)))
	}
	// Touching post-a makes it the most recently updated.
	require.NoError(t, store.Touch(ctx, "post-a"))

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "post-a", all[0].ContentID)

	page, err := store.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	empty, err := store.List(ctx, ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_LoadUpgradesLegacySchema(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.records["post-42"] = []byte(`{
		"schema_version": "1",
		"content_id": "post-42",
		"enabled": true,
		"audio_url": "https://cdn.example.com/post-42.mp3",
		"status": "generated",
		"provider": "polly",
		"play_count": 9
	}`)

	loaded, err := store.Load(ctx, "post-42")
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, "https://cdn.example.com/post-42.mp3", loaded.Audio.URL)
	assert.Equal(t, int64(9), loaded.Stats.PlayCount)

	// The upgraded form is written back to the store.
	assert.Contains(t, string(store.records["post-42"]), `"schema_version":"3"`)
}

func TestMemoryStore_Touch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, generatedRecord("post-5")))
	before, err := store.Load(ctx, "post-5")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Touch(ctx, "post-5"))

	after, err := store.Load(ctx, "post-5")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, before.Audio.URL, after.Audio.URL)

	assert.ErrorIs(t, store.Touch(ctx, "post-404"), ErrNotFound)
}

func TestMemoryStore_IncrementPlayCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, generatedRecord("post-6")))
	require.NoError(t, store.IncrementPlayCount(ctx, "post-6"))
	require.NoError(t, store.IncrementPlayCount(ctx, "post-6"))

	loaded, err := store.Load(ctx, "post-6")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Stats.PlayCount)
	require.NotNil(t, loaded.Stats.LastPlayedAt)
	assert.WithinDuration(t, time.Now(), *loaded.Stats.LastPlayedAt, time.Minute)

	assert.ErrorIs(t, store.IncrementPlayCount(ctx, "post-404"), ErrNotFound)
}
