// Package logger provides structured logging with automatic credential redaction.
package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeyContentID identifies the content item being narrated.
	ContextKeyContentID contextKey = "content_id"

	// ContextKeyProvider identifies the TTS vendor (e.g., "azure", "polly").
	ContextKeyProvider contextKey = "provider"

	// ContextKeyVoice identifies the vendor voice in use.
	ContextKeyVoice contextKey = "voice"

	// ContextKeyStorage identifies the storage backend handling the audio.
	ContextKeyStorage contextKey = "storage"

	// ContextKeyStage identifies the generation stage (e.g., "cache", "synthesis", "upload").
	ContextKeyStage contextKey = "stage"

	// ContextKeyUserID identifies the requesting user for rate limiting and audit.
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyJob identifies the scheduler job emitting the record.
	ContextKeyJob contextKey = "job"

	// ContextKeyRequestID identifies the individual request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyCorrelationID is used for distributed tracing.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeyContentID,
	ContextKeyProvider,
	ContextKeyVoice,
	ContextKeyStorage,
	ContextKeyStage,
	ContextKeyUserID,
	ContextKeyJob,
	ContextKeyRequestID,
	ContextKeyCorrelationID,
	ContextKeyEnvironment,
}

// WithContentID returns a new context with the content ID set.
func WithContentID(ctx context.Context, contentID string) context.Context {
	return context.WithValue(ctx, ContextKeyContentID, contentID)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithVoice returns a new context with the voice ID set.
func WithVoice(ctx context.Context, voice string) context.Context {
	return context.WithValue(ctx, ContextKeyVoice, voice)
}

// WithStorage returns a new context with the storage backend name set.
func WithStorage(ctx context.Context, storage string) context.Context {
	return context.WithValue(ctx, ContextKeyStorage, storage)
}

// WithStage returns a new context with the generation stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithUserID returns a new context with the user ID set.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// WithJob returns a new context with the scheduler job name set.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, ContextKeyJob, job)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// This is a convenience function for setting multiple fields in one call.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.ContentID != "" {
		ctx = WithContentID(ctx, fields.ContentID)
	}
	if fields.Provider != "" {
		ctx = WithProvider(ctx, fields.Provider)
	}
	if fields.Voice != "" {
		ctx = WithVoice(ctx, fields.Voice)
	}
	if fields.Storage != "" {
		ctx = WithStorage(ctx, fields.Storage)
	}
	if fields.Stage != "" {
		ctx = WithStage(ctx, fields.Stage)
	}
	if fields.UserID != "" {
		ctx = WithUserID(ctx, fields.UserID)
	}
	if fields.Job != "" {
		ctx = WithJob(ctx, fields.Job)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, fields.CorrelationID)
	}
	if fields.Environment != "" {
		ctx = WithEnvironment(ctx, fields.Environment)
	}
	return ctx
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	ContentID     string
	Provider      string
	Voice         string
	Storage       string
	Stage         string
	UserID        string
	Job           string
	RequestID     string
	CorrelationID string
	Environment   string
}

// ExtractLoggingFields extracts all logging fields from a context.
// Returns a LoggingFields struct with all values found in the context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeyContentID); v != nil {
		fields.ContentID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyProvider); v != nil {
		fields.Provider, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyVoice); v != nil {
		fields.Voice, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStorage); v != nil {
		fields.Storage, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStage); v != nil {
		fields.Stage, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyUserID); v != nil {
		fields.UserID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyJob); v != nil {
		fields.Job, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		fields.CorrelationID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != nil {
		fields.Environment, _ = v.(string)
	}
	return fields
}
