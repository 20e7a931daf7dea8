package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AudioPress/audiopress/logger"
)

// DefaultTable is the table MySQLStore uses unless WithTable overrides
// it.
const DefaultTable = "tts_records"

// MySQLStore persists records in a single MySQL table with the record
// body as a JSON column, keyed by content ID. The caller owns the
// *sql.DB handle and its driver registration.
type MySQLStore struct {
	db    *sql.DB
	table string
}

// MySQLOption configures a MySQLStore.
type MySQLOption func(*MySQLStore)

// WithTable overrides the table name.
func WithTable(table string) MySQLOption {
	return func(s *MySQLStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewMySQLStore creates a record store backed by db.
func NewMySQLStore(db *sql.DB, opts ...MySQLOption) (*MySQLStore, error) {
	if db == nil {
		return nil, errors.New("nil database handle")
	}
	store := &MySQLStore{
		db:    db,
		table: DefaultTable,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// EnsureSchema creates the record table if it does not exist.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		content_id VARCHAR(191) NOT NULL PRIMARY KEY,
		record JSON NOT NULL,
		updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Load retrieves the record for a content ID, upgrading stale schema
// versions in place.
func (s *MySQLStore) Load(ctx context.Context, contentID string) (*Record, error) {
	if contentID == "" {
		return nil, ErrInvalidContentID
	}

	query := fmt.Sprintf("SELECT record FROM %s WHERE content_id = ?", s.table)

	var data []byte
	err := s.db.QueryRowContext(ctx, query, contentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %q: %w", contentID, err)
	}

	record, migrated, err := Migrate(data)
	if err != nil {
		return nil, err
	}
	record.ContentID = contentID
	if migrated {
		// Persist the upgraded form so the next load skips migration.
		if err := s.writeBack(ctx, record); err != nil {
			logger.Warn("Failed to persist migrated record",
				"content_id", contentID,
				"error", err)
		}
	}

	return record, nil
}

// Save validates and persists a record, replacing any existing row.
func (s *MySQLStore) Save(ctx context.Context, record *Record) error {
	data, err := prepareForSave(record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (content_id, record) VALUES (?, ?) ON DUPLICATE KEY UPDATE record = VALUES(record)",
		s.table)
	if _, err := s.db.ExecContext(ctx, query, record.ContentID, data); err != nil {
		return fmt.Errorf("failed to save record %q: %w", record.ContentID, err)
	}

	return nil
}

// Delete removes the record for a content ID.
func (s *MySQLStore) Delete(ctx context.Context, contentID string) error {
	if contentID == "" {
		return ErrInvalidContentID
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE content_id = ?", s.table)
	result, err := s.db.ExecContext(ctx, query, contentID)
	if err != nil {
		return fmt.Errorf("failed to delete record %q: %w", contentID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns records ordered by last update, newest first.
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	opts = opts.withDefaults()

	query := fmt.Sprintf(
		"SELECT content_id, record FROM %s ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		s.table)
	rows, err := s.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		var contentID string
		var data []byte
		if err := rows.Scan(&contentID, &data); err != nil {
			return nil, err
		}
		record, _, err := Migrate(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %q: %w", contentID, err)
		}
		record.ContentID = contentID
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Touch bumps the record's UpdatedAt without other changes.
func (s *MySQLStore) Touch(ctx context.Context, contentID string) error {
	if contentID == "" {
		return ErrInvalidContentID
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf(
		"UPDATE %s SET record = JSON_SET(record, '$.updated_at', ?) WHERE content_id = ?",
		s.table)
	result, err := s.db.ExecContext(ctx, query, now, contentID)
	if err != nil {
		return fmt.Errorf("failed to touch record %q: %w", contentID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementPlayCount adds one play to the record's stats and stamps
// the last played time. The update happens inside MySQL so concurrent
// players never lose counts.
func (s *MySQLStore) IncrementPlayCount(ctx context.Context, contentID string) error {
	if contentID == "" {
		return ErrInvalidContentID
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf(
		`UPDATE %s SET record = JSON_SET(record,
			'$.stats.play_count', IFNULL(JSON_EXTRACT(record, '$.stats.play_count'), 0) + 1,
			'$.stats.last_played_at', ?)
		WHERE content_id = ?`, s.table)
	result, err := s.db.ExecContext(ctx, query, now, contentID)
	if err != nil {
		return fmt.Errorf("failed to count play for %q: %w", contentID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// MigrateLegacy folds discrete legacy key rows from legacyTable into
// versioned records, marking consumed rows so reruns are no-ops. The
// legacy table is expected to carry content_id, meta_key, meta_value
// and migrated columns. Returns the number of content IDs migrated.
func (s *MySQLStore) MigrateLegacy(ctx context.Context, legacyTable string) (int, error) {
	if legacyTable == "" {
		return 0, errors.New("legacy table name is required")
	}

	query := fmt.Sprintf(
		"SELECT content_id, meta_key, meta_value FROM %s WHERE migrated = 0 ORDER BY content_id",
		legacyTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy table %s: %w", legacyTable, err)
	}

	grouped := make(map[string]map[string]string)
	for rows.Next() {
		var contentID, key, value string
		if err := rows.Scan(&contentID, &key, &value); err != nil {
			rows.Close()
			return 0, err
		}
		if grouped[contentID] == nil {
			grouped[contentID] = make(map[string]string)
		}
		grouped[contentID][key] = value
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	mark := fmt.Sprintf("UPDATE %s SET migrated = 1 WHERE content_id = ?", legacyTable)

	migrated := 0
	for contentID, values := range grouped {
		record, err := s.Load(ctx, contentID)
		switch {
		case errors.Is(err, ErrNotFound):
			record = FromLegacyKeys(contentID, values)
		case err != nil:
			return migrated, err
		default:
			record.MergeLegacy(values)
		}

		if err := s.Save(ctx, record); err != nil {
			return migrated, err
		}
		if _, err := s.db.ExecContext(ctx, mark, contentID); err != nil {
			return migrated, fmt.Errorf("failed to mark %q migrated: %w", contentID, err)
		}
		migrated++

		logger.Debug("Migrated legacy record",
			"content_id", contentID,
			"keys", len(values))
	}

	return migrated, nil
}

// writeBack persists an already-validated record without restamping
// UpdatedAt, used after load-time migration.
func (s *MySQLStore) writeBack(ctx context.Context, record *Record) error {
	data, err := record.MarshalJSON()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (content_id, record) VALUES (?, ?) ON DUPLICATE KEY UPDATE record = VALUES(record)",
		s.table)
	_, err = s.db.ExecContext(ctx, query, record.ContentID, data)
	return err
}

var _ Store = (*MySQLStore)(nil)
