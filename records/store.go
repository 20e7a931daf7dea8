package records

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrNotFound indicates no record exists for the content ID.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidContentID indicates an empty or unusable content ID.
	ErrInvalidContentID = errors.New("invalid content ID")
)

// DefaultListLimit caps List results when the caller gives no limit.
const DefaultListLimit = 100

// ListOptions controls pagination for List.
type ListOptions struct {
	// Offset skips this many records from the newest end.
	Offset int
	// Limit caps the page size. Zero means DefaultListLimit.
	Limit int
}

func (o ListOptions) withDefaults() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Store persists versioned TTS records keyed by content ID.
type Store interface {
	// Load returns the record for contentID, upgraded to the current
	// schema version. Returns ErrNotFound when none exists.
	Load(ctx context.Context, contentID string) (*Record, error)

	// Save validates and persists the record, stamping UpdatedAt.
	Save(ctx context.Context, record *Record) error

	// Delete removes the record. Returns ErrNotFound when none exists.
	Delete(ctx context.Context, contentID string) error

	// List returns records ordered by last update, newest first.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)

	// Touch bumps the record's UpdatedAt without other changes.
	Touch(ctx context.Context, contentID string) error

	// IncrementPlayCount adds one play to the record's stats.
	IncrementPlayCount(ctx context.Context, contentID string) error
}

// prepareForSave normalizes, stamps and validates a record, returning
// its serialized form.
func prepareForSave(record *Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	if record.ContentID == "" {
		return nil, ErrInvalidContentID
	}
	record.SchemaVersion = CurrentSchemaVersion
	record.Normalize()
	record.UpdatedAt = time.Now().UTC()
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record.MarshalJSON()
}
