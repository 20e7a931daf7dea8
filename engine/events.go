package engine

import (
	"context"
	"time"

	"github.com/AudioPress/audiopress/logger"
)

// AudioEvent describes an audio lifecycle change for event publication.
type AudioEvent struct {
	ContentID  string
	Provider   string
	URL        string
	Err        string
	RequestID  string
	OccurredAt time.Time
}

// EventPublisher publishes audio lifecycle events. Implementations must
// be safe for concurrent use.
type EventPublisher interface {
	AudioGenerated(ctx context.Context, event AudioEvent) error
	AudioFailed(ctx context.Context, event AudioEvent) error
	AudioDeleted(ctx context.Context, event AudioEvent) error
}

// Publishing is best effort: a failed publish is logged and never fails
// the operation that produced the event.

func (e *Engine) publishGenerated(ctx context.Context, event AudioEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.AudioGenerated(ctx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish audio.generated event", "error", err)
	}
}

func (e *Engine) publishFailed(ctx context.Context, event AudioEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.AudioFailed(ctx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish audio.failed event", "error", err)
	}
}

func (e *Engine) publishDeleted(ctx context.Context, event AudioEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.AudioDeleted(ctx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish audio.deleted event", "error", err)
	}
}
