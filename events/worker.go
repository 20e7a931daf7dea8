package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/logger"
)

// Job is the queued generation request payload.
type Job struct {
	ContentID       string  `json:"content_id"`
	Text            string  `json:"text"`
	Title           string  `json:"title,omitempty"`
	UserID          string  `json:"user_id,omitempty"`
	Provider        string  `json:"provider,omitempty"`
	Voice           string  `json:"voice,omitempty"`
	Language        string  `json:"language,omitempty"`
	Format          string  `json:"format,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
	Pitch           float64 `json:"pitch,omitempty"`
	ForceRegenerate bool    `json:"force_regenerate,omitempty"`
	RequestID       string  `json:"request_id,omitempty"`
}

func (j Job) request() engine.GenerateRequest {
	return engine.GenerateRequest{
		ContentID:       j.ContentID,
		Text:            j.Text,
		Title:           j.Title,
		UserID:          j.UserID,
		Provider:        j.Provider,
		Voice:           j.Voice,
		Language:        j.Language,
		Format:          j.Format,
		Speed:           j.Speed,
		Pitch:           j.Pitch,
		ForceRegenerate: j.ForceRegenerate,
		RequestID:       j.RequestID,
	}
}

// jobReply is the response sent when a job carries a reply subject.
type jobReply struct {
	ContentID string `json:"content_id"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Generator runs one audio generation. Satisfied by engine.Engine.
type Generator interface {
	Generate(ctx context.Context, req engine.GenerateRequest) (*engine.GenerateResult, error)
}

// WorkerConfig tunes the queue worker.
type WorkerConfig struct {
	// Subject is the queue subject to consume. Defaults to
	// DefaultQueueSubject.
	Subject string

	// Queue is the NATS queue group name, so multiple worker processes
	// share the subject. Defaults to "audiopress-workers".
	Queue string

	// Concurrency bounds the jobs processed at once. Defaults to 2.
	Concurrency int

	// JobTimeout bounds one generation. Defaults to 5 minutes.
	JobTimeout time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Subject == "" {
		c.Subject = DefaultQueueSubject
	}
	if c.Queue == "" {
		c.Queue = "audiopress-workers"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	return c
}

// Worker consumes generation jobs from NATS and runs them through the
// engine.
type Worker struct {
	conn      *nats.Conn
	generator Generator
	config    WorkerConfig
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

// NewWorker creates a queue worker.
func NewWorker(conn *nats.Conn, generator Generator, config WorkerConfig) *Worker {
	config = config.withDefaults()
	return &Worker{
		conn:      conn,
		generator: generator,
		config:    config,
		sem:       semaphore.NewWeighted(int64(config.Concurrency)),
	}
}

// Run consumes jobs until the context is cancelled, then drains the
// subscription and waits for in-flight generations to finish.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.conn.QueueSubscribe(w.config.Subject, w.config.Queue, w.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.config.Subject, err)
	}

	logger.Info("Generation worker started",
		"subject", w.config.Subject,
		"queue", w.config.Queue,
		"concurrency", w.config.Concurrency)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	w.wg.Wait()
	return nil
}

// handle admits one message into the bounded pool. Acquisition blocks
// the dispatch goroutine, so delivery pauses while the pool is full.
func (w *Worker) handle(msg *nats.Msg) {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		logger.Warn("Discarding malformed generation job", "error", err)
		return
	}
	if job.ContentID == "" {
		logger.Warn("Discarding generation job without content_id")
		return
	}

	if err := w.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.process(msg, job)
	}()
}

func (w *Worker) process(msg *nats.Msg, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
	defer cancel()

	reply := jobReply{ContentID: job.ContentID, RequestID: job.RequestID}

	result, err := w.generator.Generate(ctx, job.request())
	if err != nil {
		logger.ErrorContext(ctx, "Queued generation failed",
			"content_id", job.ContentID, "error", err)
		reply.Error = err.Error()
	} else {
		logger.InfoContext(ctx, "Queued generation complete",
			"content_id", job.ContentID, "url", result.URL)
		reply.URL = result.URL
		reply.RequestID = result.RequestID
	}

	w.respond(msg, reply)
}

// respond answers request-style jobs. Fire-and-forget jobs have no
// reply subject and skip this.
func (w *Worker) respond(msg *nats.Msg, reply jobReply) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		logger.Warn("Failed to marshal job reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		logger.Warn("Failed to send job reply", "error", err)
	}
}
