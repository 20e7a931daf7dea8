package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

func TestRecordSynthesis(t *testing.T) {
	// Reset metrics for test isolation
	synthesisDuration.Reset()
	synthesisRequestsTotal.Reset()
	synthesisCharactersTotal.Reset()

	RecordSynthesis("polly", "mp3", "success", 1200, 1.5)
	RecordSynthesis("polly", "mp3", "success", 800, 0.9)
	RecordSynthesis("azure", "wav", "error", 0, 0.2)

	successCount := testutil.ToFloat64(synthesisRequestsTotal.WithLabelValues("polly", "success"))
	errorCount := testutil.ToFloat64(synthesisRequestsTotal.WithLabelValues("azure", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 success requests, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 error request, got %f", errorCount)
	}

	chars := testutil.ToFloat64(synthesisCharactersTotal.WithLabelValues("polly"))
	if chars != 2000 {
		t.Errorf("Expected 2000 characters for polly, got %f", chars)
	}

	count := testutil.CollectAndCount(synthesisDuration)
	if count == 0 {
		t.Error("Expected non-zero histogram observations")
	}
}

func TestRecordSynthesisZeroChars(t *testing.T) {
	synthesisCharactersTotal.Reset()

	// Should not record zero character counts
	RecordSynthesis("azure", "mp3", "error", 0, 0.1)

	chars := testutil.ToFloat64(synthesisCharactersTotal.WithLabelValues("azure"))
	if chars != 0 {
		t.Errorf("Expected 0 characters for zero value, got %f", chars)
	}
}

func TestRecordGenerationStartEnd(t *testing.T) {
	generationsActive.Set(0)
	generationDuration.Reset()

	RecordGenerationStart()
	active := testutil.ToFloat64(generationsActive)
	if active != 1 {
		t.Errorf("Expected 1 active generation, got %f", active)
	}

	RecordGenerationStart()
	active = testutil.ToFloat64(generationsActive)
	if active != 2 {
		t.Errorf("Expected 2 active generations, got %f", active)
	}

	RecordGenerationEnd("success", 5.0)
	active = testutil.ToFloat64(generationsActive)
	if active != 1 {
		t.Errorf("Expected 1 active generation after end, got %f", active)
	}

	RecordGenerationEnd("error", 2.0)
	active = testutil.ToFloat64(generationsActive)
	if active != 0 {
		t.Errorf("Expected 0 active generations after end, got %f", active)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	cacheLookupsTotal.Reset()

	RecordCacheLookup(true)
	RecordCacheLookup(true)
	RecordCacheLookup(false)

	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))

	if hits != 2 {
		t.Errorf("Expected 2 cache hits, got %f", hits)
	}
	if misses != 1 {
		t.Errorf("Expected 1 cache miss, got %f", misses)
	}
}

func TestRecordStorageUpload(t *testing.T) {
	storageUploadsTotal.Reset()
	storageUploadBytesTotal.Reset()

	RecordStorageUpload("s3", "success", 4096)
	RecordStorageUpload("s3", "success", 1024)
	RecordStorageUpload("buzzsprout", "error", 0)

	successCount := testutil.ToFloat64(storageUploadsTotal.WithLabelValues("s3", "success"))
	errorCount := testutil.ToFloat64(storageUploadsTotal.WithLabelValues("buzzsprout", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 successful uploads, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 failed upload, got %f", errorCount)
	}

	bytes := testutil.ToFloat64(storageUploadBytesTotal.WithLabelValues("s3"))
	if bytes != 5120 {
		t.Errorf("Expected 5120 uploaded bytes, got %f", bytes)
	}
}

func TestRecordStorageFallback(t *testing.T) {
	before := testutil.ToFloat64(storageFallbacksTotal)

	RecordStorageFallback()
	RecordStorageFallback()

	after := testutil.ToFloat64(storageFallbacksTotal)
	if after-before != 2 {
		t.Errorf("Expected 2 fallbacks recorded, got %f", after-before)
	}
}

func TestRecordRateLimitRejection(t *testing.T) {
	before := testutil.ToFloat64(rateLimitRejectionsTotal)

	RecordRateLimitRejection()

	after := testutil.ToFloat64(rateLimitRejectionsTotal)
	if after-before != 1 {
		t.Errorf("Expected 1 rejection recorded, got %f", after-before)
	}
}

func TestSetQuotaUsage(t *testing.T) {
	quotaCharactersUsed.Reset()

	SetQuotaUsage("polly", 150000)
	SetQuotaUsage("polly", 175000)
	SetQuotaUsage("elevenlabs", 9000)

	polly := testutil.ToFloat64(quotaCharactersUsed.WithLabelValues("polly"))
	eleven := testutil.ToFloat64(quotaCharactersUsed.WithLabelValues("elevenlabs"))

	if polly != 175000 {
		t.Errorf("Expected quota gauge 175000, got %f", polly)
	}
	if eleven != 9000 {
		t.Errorf("Expected quota gauge 9000, got %f", eleven)
	}
}

func TestRecordJobRun(t *testing.T) {
	jobRunsTotal.Reset()
	jobDuration.Reset()

	RecordJobRun("cache_cleanup", "success", 1.2)
	RecordJobRun("cache_cleanup", "success", 0.8)
	RecordJobRun("health_check", "error", 0.1)

	successCount := testutil.ToFloat64(jobRunsTotal.WithLabelValues("cache_cleanup", "success"))
	errorCount := testutil.ToFloat64(jobRunsTotal.WithLabelValues("health_check", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 successful job runs, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 failed job run, got %f", errorCount)
	}
}

func TestSetProviderHealth(t *testing.T) {
	providerHealthy.Reset()

	SetProviderHealth("polly", true)
	SetProviderHealth("azure", false)

	polly := testutil.ToFloat64(providerHealthy.WithLabelValues("polly"))
	azure := testutil.ToFloat64(providerHealthy.WithLabelValues("azure"))

	if polly != 1 {
		t.Errorf("Expected healthy gauge 1, got %f", polly)
	}
	if azure != 0 {
		t.Errorf("Expected unhealthy gauge 0, got %f", azure)
	}

	// Recovery flips the gauge back
	SetProviderHealth("azure", true)
	azure = testutil.ToFloat64(providerHealthy.WithLabelValues("azure"))
	if azure != 1 {
		t.Errorf("Expected recovered gauge 1, got %f", azure)
	}
}

func TestSetStorageHealth(t *testing.T) {
	storageHealthy.Reset()

	SetStorageHealth("s3", true)
	SetStorageHealth("buzzsprout", false)

	s3 := testutil.ToFloat64(storageHealthy.WithLabelValues("s3"))
	buzz := testutil.ToFloat64(storageHealthy.WithLabelValues("buzzsprout"))

	if s3 != 1 {
		t.Errorf("Expected healthy gauge 1, got %f", s3)
	}
	if buzz != 0 {
		t.Errorf("Expected unhealthy gauge 0, got %f", buzz)
	}
}

func TestRecordPlay(t *testing.T) {
	before := testutil.ToFloat64(playerPlaysTotal)

	RecordPlay()
	RecordPlay()
	RecordPlay()

	after := testutil.ToFloat64(playerPlaysTotal)
	if after-before != 3 {
		t.Errorf("Expected 3 plays recorded, got %f", after-before)
	}
}

func TestRecordEventPublished(t *testing.T) {
	eventsPublishedTotal.Reset()

	RecordEventPublished("audiopress.audio.generated", "success")
	RecordEventPublished("audiopress.audio.generated", "success")
	RecordEventPublished("audiopress.audio.failed", "error")

	successCount := testutil.ToFloat64(eventsPublishedTotal.WithLabelValues("audiopress.audio.generated", "success"))
	errorCount := testutil.ToFloat64(eventsPublishedTotal.WithLabelValues("audiopress.audio.failed", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 published events, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 failed publish, got %f", errorCount)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter == nil {
		t.Fatal("Expected non-nil exporter")
	}
	if exporter.Registry() == nil {
		t.Error("Expected non-nil registry")
	}
}

func TestNewExporterWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9092", reg)

	if exporter.Registry() != reg {
		t.Error("Expected custom registry to be used")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9093", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterGather(t *testing.T) {
	exporter := NewExporter(":9096")

	RecordSynthesis("gather", "mp3", "success", 640, 0.4)

	families, err := exporter.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "audiopress_synthesis_requests_total" {
			family = f
			break
		}
	}
	if family == nil {
		t.Fatal("Expected gathered output to include audiopress_synthesis_requests_total")
	}
	if family.GetType() != dto.MetricType_COUNTER {
		t.Errorf("Expected counter type, got %v", family.GetType())
	}

	var found bool
	for _, m := range family.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "provider" && label.GetValue() == "gather" {
				found = true
				if got := m.GetCounter().GetValue(); got != 1 {
					t.Errorf("Expected counter value 1, got %f", got)
				}
			}
		}
	}
	if !found {
		t.Error("Expected a series labeled provider=gather")
	}
}

func TestExporterScrapeParses(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_test_total",
			Help: "Scrape test counter",
		},
		[]string{"provider"},
	)
	reg.MustRegister(counter)
	counter.WithLabelValues("polly").Add(3)

	exporter := NewExporterWithRegistry(":9097", reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		t.Fatalf("Scrape output did not parse: %v", err)
	}

	family, ok := families["scrape_test_total"]
	if !ok {
		t.Fatal("Expected scrape_test_total in parsed scrape")
	}
	metrics := family.GetMetric()
	if len(metrics) != 1 {
		t.Fatalf("Expected 1 series, got %d", len(metrics))
	}
	if got := metrics[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("Expected counter value 3, got %f", got)
	}
}

func TestExporterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9094", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter",
		Help: "Custom counter",
	})

	err := exporter.Register(counter)
	if err != nil {
		t.Errorf("Expected no error registering counter, got %v", err)
	}

	// Registering again should fail
	err = exporter.Register(counter)
	if err == nil {
		t.Error("Expected error when registering duplicate counter")
	}
}

func TestExporterMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9095", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "must_register_counter",
		Help: "Must register counter",
	})

	// Should not panic
	exporter.MustRegister(counter)
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	// Start in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := exporter.Shutdown(ctx)
	if err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	// Start should have returned with ErrServerClosed
	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestExporterDoubleStart(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	go func() {
		_ = exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	// Second start should return nil immediately
	err := exporter.Start()
	if err != nil {
		t.Errorf("Expected nil on double start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exporter.Shutdown(ctx)
}
