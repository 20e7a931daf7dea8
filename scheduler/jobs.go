package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/metrics/prometheus"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/storage"
	"github.com/AudioPress/audiopress/storage/policy"
)

// Job names, also the metric label values.
const (
	JobCacheCleanup    = "cache_cleanup"
	JobAnalyticsUpdate = "analytics_update"
	JobQuotaReset      = "quota_reset"
	JobHealthCheck     = "health_check"
)

// Default job intervals.
const (
	DefaultCacheCleanupInterval    = 24 * time.Hour
	DefaultAnalyticsUpdateInterval = time.Hour
	DefaultQuotaResetInterval      = 24 * time.Hour
	DefaultHealthCheckInterval     = 15 * time.Minute
)

// CachePurger removes cache entries older than maxAge.
type CachePurger interface {
	PurgeExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

// CacheCleanupConfig wires the daily storage hygiene job. Nil
// collaborators skip their step.
type CacheCleanupConfig struct {
	// Cache is purged of entries older than MaxAge.
	Cache CachePurger

	// MaxAge is the cache entry lifetime. Zero keeps the purge off.
	MaxAge time.Duration

	// Enforcer applies retention policies to the local storage root.
	Enforcer *policy.Enforcer

	// Orphans sweeps stored audio no record references anymore.
	Orphans *OrphanSweeper

	// Interval between runs. Zero means DefaultCacheCleanupInterval.
	Interval time.Duration
}

// CacheCleanup builds the cache and storage cleanup job. It runs under
// the storage lock because it deletes files other processes may share.
func CacheCleanup(cfg CacheCleanupConfig) Job {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultCacheCleanupInterval
	}

	return Job{
		Name:      JobCacheCleanup,
		Interval:  interval,
		Exclusive: true,
		Run: func(ctx context.Context) error {
			var errs []error

			if cfg.Cache != nil && cfg.MaxAge > 0 {
				purged, err := cfg.Cache.PurgeExpired(ctx, cfg.MaxAge)
				if err != nil {
					errs = append(errs, fmt.Errorf("cache purge: %w", err))
				} else if purged > 0 {
					logger.InfoContext(ctx, "Purged expired cache entries", "purged", purged)
				}
			}

			if cfg.Enforcer != nil {
				removed, err := cfg.Enforcer.Enforce(ctx)
				if err != nil {
					errs = append(errs, fmt.Errorf("retention sweep: %w", err))
				} else if removed > 0 {
					logger.InfoContext(ctx, "Removed expired stored audio", "removed", removed)
				}
			}

			if cfg.Orphans != nil {
				removed, err := cfg.Orphans.Sweep(ctx)
				if err != nil {
					errs = append(errs, fmt.Errorf("orphan sweep: %w", err))
				} else if removed > 0 {
					logger.InfoContext(ctx, "Removed orphaned audio files", "removed", removed)
				}
			}

			return errors.Join(errs...)
		},
	}
}

// AnalyticsUpdate builds the hourly job folding buffered play counters
// into record stats.
func AnalyticsUpdate(plays *engine.PlayBuffer, store records.Store, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultAnalyticsUpdateInterval
	}

	return Job{
		Name:     JobAnalyticsUpdate,
		Interval: interval,
		Run: func(ctx context.Context) error {
			if plays == nil {
				return nil
			}
			updated, err := plays.Flush(ctx, store)
			if err != nil {
				return fmt.Errorf("play buffer flush: %w", err)
			}
			if updated > 0 {
				logger.InfoContext(ctx, "Folded play counts into records", "records", updated)
			}
			return nil
		},
	}
}

// QuotaReset builds the daily job that drops counters from past months
// and refreshes the usage gauges for the current one.
func QuotaReset(quota *engine.QuotaTracker, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultQuotaResetInterval
	}

	return Job{
		Name:     JobQuotaReset,
		Interval: interval,
		Run: func(ctx context.Context) error {
			if quota == nil {
				return nil
			}

			removed, err := quota.PurgeStale(ctx)
			if err != nil {
				return fmt.Errorf("quota purge: %w", err)
			}
			if removed > 0 {
				logger.InfoContext(ctx, "Dropped stale quota counters", "removed", removed)
			}

			for _, provider := range quota.Providers() {
				used, err := quota.Usage(ctx, provider)
				if err != nil {
					logger.WarnContext(ctx, "Cannot read quota usage",
						"provider", provider, "error", err)
					continue
				}
				prometheus.SetQuotaUsage(provider, float64(used))
			}
			return nil
		},
	}
}

// HealthCheckConfig wires the periodic provider and storage probe.
type HealthCheckConfig struct {
	// Engine validates TTS provider credentials.
	Engine *engine.Engine

	// Providers are the TTS provider names to check.
	Providers []string

	// Factory builds storage backends for validation.
	Factory *storage.Factory

	// Backends are the storage backend names to validate.
	Backends []string

	// Interval between probes. Zero means DefaultHealthCheckInterval.
	Interval time.Duration
}

// HealthCheck builds the recurring credential and storage probe. Health
// gauges update as a side effect; failures are logged, not returned, so
// one broken vendor does not mark the whole job failed.
func HealthCheck(cfg HealthCheckConfig) Job {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}

	return Job{
		Name:     JobHealthCheck,
		Interval: interval,
		Run: func(ctx context.Context) error {
			for _, name := range cfg.Providers {
				result, err := cfg.Engine.ValidateProvider(ctx, name)
				if err != nil {
					logger.DebugContext(ctx, "Provider not checkable",
						"provider", name, "error", err)
					continue
				}
				if !result.OK {
					logger.WarnContext(ctx, "Provider unhealthy",
						"provider", name, "detail", result.Detail)
				}
			}

			for _, name := range cfg.Backends {
				healthy := false
				provider, err := cfg.Factory.Build(ctx, name)
				// A fallback provider means the named backend is down
				// even though Build succeeded.
				if err == nil && provider.Name() == name {
					err = provider.Validate(ctx)
					healthy = err == nil
				}
				prometheus.SetStorageHealth(name, healthy)
				if !healthy {
					logger.WarnContext(ctx, "Storage backend unhealthy",
						"backend", name, "error", err)
				}
			}
			return nil
		},
	}
}
