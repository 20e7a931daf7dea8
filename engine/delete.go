package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AudioPress/audiopress/cache"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/storage"
)

// DeleteAudio removes the content's generated audio: the stored object,
// the cache entry derived from it, and the audio section of the record.
// The record itself survives so voice selection and stats persist.
func (e *Engine) DeleteAudio(ctx context.Context, contentID string) (*records.Record, error) {
	if contentID == "" {
		return nil, records.ErrInvalidContentID
	}

	ctx = logger.WithContentID(ctx, contentID)

	record, err := e.records.Load(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if record.Audio.ObjectRef != "" && record.Audio.StorageProvider != "" {
		provider, err := e.storage.Build(ctx, record.Audio.StorageProvider)
		if err != nil {
			logger.WarnContext(ctx, "Cannot reach storage for audio deletion",
				"storage", record.Audio.StorageProvider, "error", err)
		} else if err := provider.Delete(ctx, record.Audio.ObjectRef); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.WarnContext(ctx, "Failed to delete audio object",
				"storage", record.Audio.StorageProvider,
				"ref", record.Audio.ObjectRef, "error", err)
		}
	}

	if e.cache != nil && record.Content.Hash != "" {
		if err := e.cache.Delete(ctx, cache.KeyPrefix+record.Content.Hash); err != nil {
			logger.WarnContext(ctx, "Failed to invalidate cache entry", "error", err)
		}
	}

	deletedURL := record.Audio.URL
	record.Audio = records.Audio{Status: records.StatusNone}
	record.Enabled = false
	if err := e.records.Save(ctx, record); err != nil {
		return nil, err
	}

	e.publishDeleted(ctx, AudioEvent{
		ContentID:  contentID,
		URL:        deletedURL,
		RequestID:  uuid.NewString(),
		OccurredAt: time.Now().UTC(),
	})

	logger.InfoContext(ctx, "Audio deleted", "url", deletedURL)
	return record, nil
}
