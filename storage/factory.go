package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AudioPress/audiopress/logger"
)

// LocalBackend is the backend name the factory falls back to.
const LocalBackend = "local"

// BuilderFunc constructs a storage provider from configuration.
type BuilderFunc func(ctx context.Context) (Provider, error)

// Factory builds the configured storage backend. When a non-local backend
// fails to construct or validate, the factory falls back once to local
// storage and remembers that it did, so health reporting and metrics can
// surface the degradation.
type Factory struct {
	mu       sync.Mutex
	builders map[string]BuilderFunc

	fellBack       bool
	fallbackReason string
}

// NewFactory creates an empty storage factory.
func NewFactory() *Factory {
	return &Factory{
		builders: make(map[string]BuilderFunc),
	}
}

// RegisterBackend registers a builder for a backend name.
func (f *Factory) RegisterBackend(name string, builder BuilderFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[name] = builder
}

// Backends returns the registered backend names, sorted.
func (f *Factory) Backends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.builders))
	for name := range f.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs and validates the named backend. A non-local backend
// that fails falls back once to local; a second failure is returned.
func (f *Factory) Build(ctx context.Context, name string) (Provider, error) {
	f.mu.Lock()
	builder, exists := f.builders[name]
	f.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("unknown storage backend %q (valid: %v)", name, f.Backends())
	}

	provider, err := f.construct(ctx, builder)
	if err == nil {
		return provider, nil
	}

	if name == LocalBackend {
		return nil, fmt.Errorf("local storage unavailable: %w", err)
	}

	f.mu.Lock()
	localBuilder, hasLocal := f.builders[LocalBackend]
	f.mu.Unlock()

	if !hasLocal {
		return nil, fmt.Errorf("storage backend %q unavailable and no local fallback registered: %w", name, err)
	}

	logger.StorageFallback(name, err)

	fallback, fallbackErr := f.construct(ctx, localBuilder)
	if fallbackErr != nil {
		return nil, fmt.Errorf("storage backend %q unavailable (%v) and local fallback failed: %w", name, err, fallbackErr)
	}

	f.mu.Lock()
	f.fellBack = true
	f.fallbackReason = err.Error()
	f.mu.Unlock()

	return fallback, nil
}

// construct runs a builder and validates the result.
func (f *Factory) construct(ctx context.Context, builder BuilderFunc) (Provider, error) {
	provider, err := builder(ctx)
	if err != nil {
		return nil, err
	}
	if err := provider.Validate(ctx); err != nil {
		return nil, err
	}
	return provider, nil
}

// FellBack reports whether the factory degraded to local storage, and why.
func (f *Factory) FellBack() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fellBack, f.fallbackReason
}
