package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore provides an in-memory implementation of the Store
// interface. It is thread-safe and suitable for development, testing,
// and single-instance deployments. For shared deployments, use
// MySQLStore.
//
// Records are held as serialized JSON so Load runs the same schema
// migration path as the database-backed store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

// Load retrieves the record for a content ID, upgrading stale schema
// versions in place.
func (s *MemoryStore) Load(ctx context.Context, contentID string) (*Record, error) {
	if contentID == "" {
		return nil, ErrInvalidContentID
	}

	s.mu.RLock()
	data, exists := s.records[contentID]
	s.mu.RUnlock()
	if !exists {
		return nil, ErrNotFound
	}

	record, migrated, err := Migrate(data)
	if err != nil {
		return nil, err
	}
	if migrated {
		// Persist the upgraded form so the next load skips migration.
		if upgraded, err := record.MarshalJSON(); err == nil {
			s.mu.Lock()
			s.records[contentID] = upgraded
			s.mu.Unlock()
		}
	}

	return record, nil
}

// Save validates and persists a record. Existing records are replaced.
func (s *MemoryStore) Save(ctx context.Context, record *Record) error {
	data, err := prepareForSave(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ContentID] = data

	return nil
}

// Delete removes the record for a content ID.
func (s *MemoryStore) Delete(ctx context.Context, contentID string) error {
	if contentID == "" {
		return ErrInvalidContentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[contentID]; !exists {
		return ErrNotFound
	}
	delete(s.records, contentID)

	return nil
}

// List returns records ordered by last update, newest first.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	opts = opts.withDefaults()

	s.mu.RLock()
	all := make([]*Record, 0, len(s.records))
	for contentID, data := range s.records {
		record, _, err := Migrate(data)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		record.ContentID = contentID
		all = append(all, record)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	if opts.Offset >= len(all) {
		return []*Record{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}

	return all[opts.Offset:end], nil
}

// Touch bumps the record's UpdatedAt without other changes.
func (s *MemoryStore) Touch(ctx context.Context, contentID string) error {
	return s.update(ctx, contentID, func(record *Record) {})
}

// IncrementPlayCount adds one play to the record's stats and stamps
// the last played time.
func (s *MemoryStore) IncrementPlayCount(ctx context.Context, contentID string) error {
	return s.update(ctx, contentID, func(record *Record) {
		record.Stats.PlayCount++
		now := time.Now().UTC()
		record.Stats.LastPlayedAt = &now
	})
}

// update applies a mutation to a stored record under the write lock.
func (s *MemoryStore) update(ctx context.Context, contentID string, mutate func(*Record)) error {
	if contentID == "" {
		return ErrInvalidContentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.records[contentID]
	if !exists {
		return ErrNotFound
	}

	record, _, err := Migrate(data)
	if err != nil {
		return err
	}
	mutate(record)

	updated, err := prepareForSave(record)
	if err != nil {
		return err
	}
	s.records[contentID] = updated

	return nil
}

var _ Store = (*MemoryStore)(nil)
