// Package storage defines the audio storage abstraction and its factory.
// Implementations store generated audio in the local filesystem, S3, or a
// podcast host (Buzzsprout, Spotify).
//
// Example usage:
//
//	store, err := local.NewFileStore(local.Config{BaseDir: "data/audio"})
//	if err != nil {
//	    return err
//	}
//	obj, err := store.Upload(ctx, storage.UploadInput{
//	    ContentID: "post-42",
//	    Data:      audio,
//	    MIMEType:  "audio/mpeg",
//	})
//
// Implementations are safe for concurrent use by multiple goroutines.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage errors.
var (
	// ErrNotFound is returned when a reference does not resolve to a
	// stored object.
	ErrNotFound = errors.New("stored object not found")

	// ErrEmptyData is returned when an upload carries no audio bytes.
	ErrEmptyData = errors.New("upload data is empty")

	// ErrMissingContentID is returned when an upload has no content ID.
	ErrMissingContentID = errors.New("upload content ID is required")

	// ErrArtworkRequired is returned by backends that cannot publish an
	// episode without artwork.
	ErrArtworkRequired = errors.New("episode artwork is required")
)

// UploadInput describes one audio upload.
type UploadInput struct {
	// ContentID identifies the content the audio was generated for.
	ContentID string

	// Data is the encoded audio.
	Data []byte

	// Filename is the suggested object name. Backends may derive their
	// own name when empty.
	Filename string

	// MIMEType is the audio content type (e.g. "audio/mpeg").
	MIMEType string

	// Title is the episode title for podcast backends.
	Title string

	// Description is the episode description for podcast backends.
	Description string

	// Artwork is optional episode artwork (encoded image).
	Artwork []byte

	// Metadata carries backend-agnostic annotations persisted with the
	// object where the backend supports it.
	Metadata map[string]string
}

// Object describes a stored audio object.
type Object struct {
	// Ref is the backend-specific reference used for Delete and URL
	// (relative path, object key, or episode ID).
	Ref string `json:"ref"`

	// URL is the public playback URL known at upload time. May be empty
	// for backends that only mint expiring URLs.
	URL string `json:"url,omitempty"`

	// Provider is the backend name that stored the object.
	Provider string `json:"provider"`

	// SizeBytes is the stored audio size.
	SizeBytes int64 `json:"size_bytes"`

	// UploadedAt is when the object was stored.
	UploadedAt time.Time `json:"uploaded_at"`
}

// Provider stores and serves generated audio.
//
// Implementations should be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the backend identifier (for logging and records).
	Name() string

	// Upload stores audio and returns the object descriptor.
	Upload(ctx context.Context, input UploadInput) (*Object, error)

	// Delete removes a stored object. Deleting a missing object returns
	// ErrNotFound.
	Delete(ctx context.Context, ref string) error

	// URL returns a playback URL for the object. Backends with expiring
	// URLs honor expiry; others ignore it.
	URL(ctx context.Context, ref string, expiry time.Duration) (string, error)

	// Validate verifies the backend is reachable and writable with the
	// configured credentials.
	Validate(ctx context.Context) error
}
