// Package events publishes AudioPress domain events over NATS and runs
// the queued generation worker.
//
// Outcome events (audio generated, failed, deleted) fan out on the
// audiopress.audio.* subjects so downstream systems can react without
// polling records. Generation jobs queue on audiopress.tts.requests and
// are consumed by Worker with bounded concurrency.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/metrics/prometheus"
)

// Subjects for audio outcome events.
const (
	SubjectAudioGenerated = "audiopress.audio.generated"
	SubjectAudioFailed    = "audiopress.audio.failed"
	SubjectAudioDeleted   = "audiopress.audio.deleted"
)

// DefaultQueueSubject carries queued generation jobs.
const DefaultQueueSubject = "audiopress.tts.requests"

// connectTimeout bounds the initial NATS connection attempt.
const connectTimeout = 5 * time.Second

// Connect dials NATS with the client options AudioPress uses: a stable
// connection name and unlimited reconnects with backoff.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("audiopress"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// payload is the wire form of an audio outcome event.
type payload struct {
	ContentID  string    `json:"content_id"`
	Provider   string    `json:"provider,omitempty"`
	URL        string    `json:"url,omitempty"`
	Error      string    `json:"error,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends audio outcome events to NATS.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher creates a publisher over an established connection.
func NewPublisher(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

// AudioGenerated announces newly available audio.
func (p *Publisher) AudioGenerated(ctx context.Context, event engine.AudioEvent) error {
	return p.publish(ctx, SubjectAudioGenerated, event)
}

// AudioFailed announces a failed generation.
func (p *Publisher) AudioFailed(ctx context.Context, event engine.AudioEvent) error {
	return p.publish(ctx, SubjectAudioFailed, event)
}

// AudioDeleted announces removed audio.
func (p *Publisher) AudioDeleted(ctx context.Context, event engine.AudioEvent) error {
	return p.publish(ctx, SubjectAudioDeleted, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, event engine.AudioEvent) error {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(payload{
		ContentID:  event.ContentID,
		Provider:   event.Provider,
		URL:        event.URL,
		Error:      event.Err,
		RequestID:  event.RequestID,
		OccurredAt: occurredAt,
	})
	if err != nil {
		prometheus.RecordEventPublished(subject, "error")
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		prometheus.RecordEventPublished(subject, "error")
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	prometheus.RecordEventPublished(subject, "success")
	logger.DebugContext(ctx, "Event published", "subject", subject, "content_id", event.ContentID)
	return nil
}

var _ engine.EventPublisher = (*Publisher)(nil)

// PublishJob enqueues a generation job on the queue subject.
func PublishJob(conn *nats.Conn, subject string, job Job) error {
	if subject == "" {
		subject = DefaultQueueSubject
	}
	if job.ContentID == "" {
		return errors.New("job content_id is required")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := conn.Publish(subject, data); err != nil {
		prometheus.RecordEventPublished(subject, "error")
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	prometheus.RecordEventPublished(subject, "success")
	return nil
}
