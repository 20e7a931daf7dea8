// Package engine orchestrates audio generation for content: record
// loading, text resolution, caching, rate limiting, provider selection,
// chunked synthesis, asset mixing, storage upload, record persistence
// and event publication.
//
// Key types:
//   - Engine: the orchestrator; Generate runs one end-to-end generation
//   - GenerateRequest/GenerateResult: one generation's input and outcome
//   - QuotaTracker: per-provider monthly character quotas
//   - PlayBuffer: Redis-buffered play counters folded into records
package engine

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/AudioPress/audiopress/cache"
	"github.com/AudioPress/audiopress/ratelimit"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/storage"
	"github.com/AudioPress/audiopress/tts"
)

// instrumentationName is the OTel instrumentation scope for engine spans.
const instrumentationName = "github.com/AudioPress/audiopress/engine"

var (
	// ErrGenerationInProgress is returned when a generation for the same
	// content ID is already running.
	ErrGenerationInProgress = errors.New("generation already in progress for this content")

	// ErrStorageUnavailable wraps failures to reach or write the storage
	// backend during generation.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrValidationUnsupported is returned when a provider exposes no
	// credential check endpoint.
	ErrValidationUnsupported = errors.New("does not support validation")
)

// Config defines runtime configuration for the engine. Zero values take
// package defaults.
type Config struct {
	// MaxConcurrentSynthesis caps simultaneous vendor synthesis calls
	// across all generations.
	// Default: 4
	MaxConcurrentSynthesis int

	// GenerationTimeout caps one Generate call end to end.
	// Set to 0 to disable.
	// Default: 2 minutes
	GenerationTimeout time.Duration

	// GuardTTL is how long the duplicate-submission guard holds a content
	// ID before a stale hold expires.
	// Default: 5 minutes
	GuardTTL time.Duration

	// DefaultProvider is the provider assumed when neither the request
	// nor the record names one.
	// Default: "azure"
	DefaultProvider string

	// StorageBackend is the storage backend name uploads go to.
	// Default: "local"
	StorageBackend string

	// Defaults seeds voice, format, language and speed for requests that
	// leave them unset.
	Defaults tts.SynthesisConfig
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSynthesis: 4,
		GenerationTimeout:      2 * time.Minute,
		GuardTTL:               5 * time.Minute,
		DefaultProvider:        tts.ProviderAzure,
		StorageBackend:         storage.LocalBackend,
		Defaults:               tts.DefaultSynthesisConfig(),
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MaxConcurrentSynthesis <= 0 {
		c.MaxConcurrentSynthesis = defaults.MaxConcurrentSynthesis
	}
	if c.GenerationTimeout < 0 {
		c.GenerationTimeout = 0
	}
	if c.GuardTTL <= 0 {
		c.GuardTTL = defaults.GuardTTL
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = defaults.DefaultProvider
	}
	if c.StorageBackend == "" {
		c.StorageBackend = defaults.StorageBackend
	}
	if c.Defaults.Format.Name == "" {
		c.Defaults.Format = defaults.Defaults.Format
	}
	if c.Defaults.Language == "" {
		c.Defaults.Language = defaults.Defaults.Language
	}
	if c.Defaults.Speed <= 0 {
		c.Defaults.Speed = defaults.Defaults.Speed
	}
	return c
}

// Engine coordinates audio generation across the records store, TTS
// providers, cache, rate limiter, storage and event publication.
type Engine struct {
	records   records.Store
	providers *tts.Registry
	selector  *tts.Selector
	storage   *storage.Factory
	cache     cache.Cache
	limiter   ratelimit.Limiter
	quota     *QuotaTracker
	publisher EventPublisher
	assets    AssetSource
	plays     *PlayBuffer
	tracer    trace.Tracer
	guard     *flightGuard
	sem       *semaphore.Weighted
	config    Config
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithCache attaches a synthesis cache. Without one every generation
// calls the vendor.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLimiter attaches a per-user rate limiter.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithQuota attaches per-provider monthly character quotas.
func WithQuota(q *QuotaTracker) Option {
	return func(e *Engine) { e.quota = q }
}

// WithPublisher attaches an audio lifecycle event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithAssetSource attaches a source for intro/outro/background audio
// assets referenced by records.
func WithAssetSource(s AssetSource) Option {
	return func(e *Engine) { e.assets = s }
}

// WithPlayBuffer attaches a Redis play-count buffer. Without one plays
// are written straight to the records store.
func WithPlayBuffer(b *PlayBuffer) Option {
	return func(e *Engine) { e.plays = b }
}

// WithTracer sets the tracer used for engine spans. The default reads
// the global OTel provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithConfig replaces the engine configuration. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// New creates an Engine. The records store, provider registry, selector
// and storage factory are required; everything else is optional.
func New(
	store records.Store,
	providers *tts.Registry,
	selector *tts.Selector,
	storageFactory *storage.Factory,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("records store is required")
	}
	if providers == nil {
		return nil, errors.New("provider registry is required")
	}
	if selector == nil {
		return nil, errors.New("provider selector is required")
	}
	if storageFactory == nil {
		return nil, errors.New("storage factory is required")
	}

	e := &Engine{
		records:   store,
		providers: providers,
		selector:  selector,
		storage:   storageFactory,
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.config = e.config.withDefaults()
	e.guard = newFlightGuard(e.config.GuardTTL)
	e.sem = semaphore.NewWeighted(int64(e.config.MaxConcurrentSynthesis))
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	return e, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.config
}
