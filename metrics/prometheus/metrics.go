// Package prometheus provides Prometheus metrics exporters for AudioPress.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audiopress"

var (
	// synthesisDuration is a histogram of vendor synthesis call duration in seconds.
	synthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of TTS vendor synthesis calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "format"},
	)

	// synthesisRequestsTotal is a counter of vendor synthesis calls.
	synthesisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Total number of TTS vendor synthesis calls",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// synthesisCharactersTotal is a counter of characters sent to vendors.
	synthesisCharactersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_characters_total",
			Help:      "Total characters synthesized by provider",
		},
		[]string{"provider"},
	)

	// generationsActive is a gauge of audio generations currently in flight.
	generationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generations_active",
			Help:      "Number of audio generations currently in flight",
		},
	)

	// generationDuration is a histogram of end-to-end generation duration.
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "End-to-end audio generation duration in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"}, // status: success, error, cached
	)

	// cacheLookupsTotal is a counter of synthesis cache lookups.
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total synthesis cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// storageUploadsTotal is a counter of audio uploads by backend.
	storageUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_uploads_total",
			Help:      "Total audio uploads by storage backend",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// storageUploadBytesTotal is a counter of bytes uploaded by backend.
	storageUploadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_upload_bytes_total",
			Help:      "Total bytes uploaded by storage backend",
		},
		[]string{"provider"},
	)

	// storageFallbacksTotal is a counter of falls back to local storage.
	storageFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_fallbacks_total",
			Help:      "Times the storage factory fell back to local storage",
		},
	)

	// rateLimitRejectionsTotal is a counter of rate-limited generation requests.
	rateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Generation requests rejected by the per-user rate limit",
		},
	)

	// quotaCharactersUsed is a gauge of monthly quota consumption by provider.
	quotaCharactersUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_characters_used",
			Help:      "Characters consumed against the provider's monthly quota",
		},
		[]string{"provider"},
	)

	// jobRunsTotal is a counter of scheduler job executions.
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Total scheduler job executions",
		},
		[]string{"job", "status"}, // status: success, error, skipped
	)

	// jobDuration is a histogram of scheduler job duration.
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_job_duration_seconds",
			Help:      "Duration of scheduler job executions in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"job"},
	)

	// providerHealthy is a gauge of TTS provider health.
	providerHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_healthy",
			Help:      "Whether the TTS provider passed its last health check (1 healthy, 0 unhealthy)",
		},
		[]string{"provider"},
	)

	// storageHealthy is a gauge of storage backend health.
	storageHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_healthy",
			Help:      "Whether the storage backend passed its last health check (1 healthy, 0 unhealthy)",
		},
		[]string{"provider"},
	)

	// playerPlaysTotal is a counter of audio plays reported by the player.
	playerPlaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "player_plays_total",
			Help:      "Total audio plays reported by the player",
		},
	)

	// eventsPublishedTotal is a counter of published domain events.
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total domain events published",
		},
		[]string{"subject", "status"}, // status: success, error
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		synthesisDuration,
		synthesisRequestsTotal,
		synthesisCharactersTotal,
		generationsActive,
		generationDuration,
		cacheLookupsTotal,
		storageUploadsTotal,
		storageUploadBytesTotal,
		storageFallbacksTotal,
		rateLimitRejectionsTotal,
		quotaCharactersUsed,
		jobRunsTotal,
		jobDuration,
		providerHealthy,
		storageHealthy,
		playerPlaysTotal,
		eventsPublishedTotal,
	}
)

// RecordSynthesis records a vendor synthesis call.
func RecordSynthesis(provider, format, status string, chars int, durationSeconds float64) {
	synthesisDuration.WithLabelValues(provider, format).Observe(durationSeconds)
	synthesisRequestsTotal.WithLabelValues(provider, status).Inc()
	if chars > 0 {
		synthesisCharactersTotal.WithLabelValues(provider).Add(float64(chars))
	}
}

// RecordGenerationStart records the start of an audio generation.
func RecordGenerationStart() {
	generationsActive.Inc()
}

// RecordGenerationEnd records a completed audio generation.
func RecordGenerationEnd(status string, durationSeconds float64) {
	generationsActive.Dec()
	generationDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordCacheLookup records a synthesis cache lookup.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordStorageUpload records an audio upload.
func RecordStorageUpload(provider, status string, sizeBytes int64) {
	storageUploadsTotal.WithLabelValues(provider, status).Inc()
	if sizeBytes > 0 {
		storageUploadBytesTotal.WithLabelValues(provider).Add(float64(sizeBytes))
	}
}

// RecordStorageFallback records a fall back to local storage.
func RecordStorageFallback() {
	storageFallbacksTotal.Inc()
}

// RecordRateLimitRejection records a rate-limited generation request.
func RecordRateLimitRejection() {
	rateLimitRejectionsTotal.Inc()
}

// SetQuotaUsage records the current monthly quota consumption for a provider.
func SetQuotaUsage(provider string, chars float64) {
	quotaCharactersUsed.WithLabelValues(provider).Set(chars)
}

// RecordJobRun records a scheduler job execution.
func RecordJobRun(job, status string, durationSeconds float64) {
	jobRunsTotal.WithLabelValues(job, status).Inc()
	jobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// SetProviderHealth records a TTS provider health check result.
func SetProviderHealth(provider string, healthy bool) {
	providerHealthy.WithLabelValues(provider).Set(boolGauge(healthy))
}

// SetStorageHealth records a storage backend health check result.
func SetStorageHealth(provider string, healthy bool) {
	storageHealthy.WithLabelValues(provider).Set(boolGauge(healthy))
}

// RecordPlay records an audio play reported by the player.
func RecordPlay() {
	playerPlaysTotal.Inc()
}

// RecordEventPublished records a published domain event.
func RecordEventPublished(subject, status string) {
	eventsPublishedTotal.WithLabelValues(subject, status).Inc()
}

func boolGauge(healthy bool) float64 {
	if healthy {
		return 1
	}
	return 0
}
