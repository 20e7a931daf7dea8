package records

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMySQLStore connects to the database named by MYSQL_DSN and
// provisions an isolated table. Tests are skipped when no DSN is set.
func setupMySQLStore(t *testing.T) (*MySQLStore, *sql.DB) {
	t.Helper()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set; skipping MySQL store tests")
	}

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))

	table := fmt.Sprintf("tts_records_test_%d", time.Now().UnixNano())
	store, err := NewMySQLStore(db, WithTable(table))
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS " + table)
	})

	return store, db
}

func TestNewMySQLStore_NilDB(t *testing.T) {
	_, err := NewMySQLStore(nil)
	assert.Error(t, err)
}

func TestMySQLStore_SaveAndLoad(t *testing.T) {
	store, _ := setupMySQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, generatedRecord("post-1")))

	loaded, err := store.Load(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "post-1", loaded.ContentID)
	assert.Equal(t, StatusGenerated, loaded.Audio.Status)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)

	// Saving again replaces the row.
	update := generatedRecord("post-1")
	update.Audio.URL = "https://cdn.example.com/post-1-v2.mp3"
	require.NoError(t, store.Save(ctx, update))

	loaded, err = store.Load(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/post-1-v2.mp3", loaded.Audio.URL)
}

func TestMySQLStore_LoadMissing(t *testing.T) {
	store, _ := setupMySQLStore(t)

	_, err := store.Load(context.Background(), "post-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMySQLStore_Delete(t *testing.T) {
	store, _ := setupMySQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, generatedRecord("post-2")))
	require.NoError(t, store.Delete(ctx, "post-2"))
	assert.ErrorIs(t, store.Delete(ctx, "post-2"), ErrNotFound)
}

func TestMySQLStore_List(t *testing.T) {
	store, _ := setupMySQLStore(t)
	ctx := context.Background()

	for _, id := range []string{"post-a", "post-b", "post-c"} {
		require.NoError(t, store.Save(ctx, generatedRecord(id)))
		time.Sleep(10 * time.Millisecond)
	}

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "post-c", all[0].ContentID)

	page, err := store.List(ctx, ListOptions{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "post-b", page[0].ContentID)
}

func TestMySQLStore_Touch(t *testing.T) {
	store, _ := setupMySQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, generatedRecord("post-5")))
	before, err := store.Load(ctx, "post-5")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Touch(ctx, "post-5"))

	after, err := store.Load(ctx, "post-5")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	assert.ErrorIs(t, store.Touch(ctx, "post-404"), ErrNotFound)
}

func TestMySQLStore_IncrementPlayCount(t *testing.T) {
	store, _ := setupMySQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, generatedRecord("post-6")))
	require.NoError(t, store.IncrementPlayCount(ctx, "post-6"))
	require.NoError(t, store.IncrementPlayCount(ctx, "post-6"))

	loaded, err := store.Load(ctx, "post-6")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Stats.PlayCount)
	assert.NotNil(t, loaded.Stats.LastPlayedAt)

	assert.ErrorIs(t, store.IncrementPlayCount(ctx, "post-404"), ErrNotFound)
}

func TestMySQLStore_LoadUpgradesLegacySchema(t *testing.T) {
	store, db := setupMySQLStore(t)
	ctx := context.Background()

	v1 := `{"schema_version": "1", "content_id": "post-42", "enabled": true,
		"audio_url": "https://cdn.example.com/post-42.mp3", "status": "generated", "play_count": 9}`
	_, err := db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (content_id, record) VALUES (?, ?)", store.table),
		"post-42", v1)
	require.NoError(t, err)

	loaded, err := store.Load(ctx, "post-42")
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, "https://cdn.example.com/post-42.mp3", loaded.Audio.URL)
	assert.Equal(t, int64(9), loaded.Stats.PlayCount)

	// The upgraded form was written back.
	var raw []byte
	require.NoError(t, db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT record FROM %s WHERE content_id = ?", store.table),
		"post-42").Scan(&raw))
	assert.Contains(t, string(raw), `"schema_version": "3"`)
}

func TestMySQLStore_MigrateLegacy(t *testing.T) {
	store, db := setupMySQLStore(t)
	ctx := context.Background()

	legacyTable := fmt.Sprintf("tts_legacy_test_%d", time.Now().UnixNano())
	_, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (
		content_id VARCHAR(191) NOT NULL,
		meta_key VARCHAR(191) NOT NULL,
		meta_value TEXT NOT NULL,
		migrated TINYINT NOT NULL DEFAULT 0
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, legacyTable))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS " + legacyTable)
	})

	insert := fmt.Sprintf(
		"INSERT INTO %s (content_id, meta_key, meta_value) VALUES (?, ?, ?)", legacyTable)
	rows := [][3]string{
		{"post-10", LegacyKeyEnabled, "1"},
		{"post-10", LegacyKeyAudioURL, "https://cdn.example.com/post-10.mp3"},
		{"post-10", LegacyKeyStatus, "generated"},
		{"post-10", LegacyKeyProvider, "polly"},
		{"post-11", LegacyKeyEnabled, "0"},
		{"post-11", LegacyKeyCustomText, "Read this."},
	}
	for _, row := range rows {
		_, err := db.ExecContext(ctx, insert, row[0], row[1], row[2])
		require.NoError(t, err)
	}

	migrated, err := store.MigrateLegacy(ctx, legacyTable)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	record, err := store.Load(ctx, "post-10")
	require.NoError(t, err)
	assert.True(t, record.Enabled)
	assert.Equal(t, "polly", record.Voice.Provider)
	assert.Equal(t, StatusGenerated, record.Audio.Status)

	// Second run finds nothing unmigrated.
	migrated, err = store.MigrateLegacy(ctx, legacyTable)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)
}
