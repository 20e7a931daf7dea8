package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AudioPress/audiopress/cache"
	"github.com/AudioPress/audiopress/config"
	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/events"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/metrics/prometheus"
	"github.com/AudioPress/audiopress/ratelimit"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/scheduler"
	"github.com/AudioPress/audiopress/server"
	"github.com/AudioPress/audiopress/storage"
	"github.com/AudioPress/audiopress/storage/local"
	"github.com/AudioPress/audiopress/storage/policy"
	"github.com/AudioPress/audiopress/telemetry"
	"github.com/AudioPress/audiopress/tts"
	"github.com/AudioPress/audiopress/version"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers and the
// trace exporter.
const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the AudioPress service",
	Long: `Serve runs the full AudioPress service: the HTTP API, the Prometheus
exporter, the maintenance scheduler, and (when events are enabled) the
NATS queue worker. SIGINT or SIGTERM shuts everything down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().String("metrics-addr", "", "Metrics listen address (overrides server.metrics_addr)")

	_ = viper.BindPFlag("serve_addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("serve_metrics_addr", serveCmd.Flags().Lookup("metrics-addr"))
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	version.LogStartup()

	tracer, tracerShutdown, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := buildRecordsStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	registry, selector := buildProviders(ctx, cfg)
	if len(registry.List()) == 0 {
		logger.Warn("No TTS provider has credentials; generation requests will fail")
	}
	factory := buildStorageFactory(cfg)

	redisClient := redisFromConfig(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	synthCache := buildCache(cfg, redisClient)
	limiter := buildLimiter(cfg, redisClient)
	quota := buildQuota(cfg, redisClient)

	var plays *engine.PlayBuffer
	if redisClient != nil {
		plays = engine.NewPlayBuffer(redisClient)
	}

	profileReg, err := buildProfiles(cfg)
	if err != nil {
		return err
	}

	opts := engineOptions(cfg, synthCache, limiter, quota, plays, tracer)

	var natsConn *nats.Conn
	if cfg.GetBool("events.enabled", false) {
		natsConn, err = events.Connect(cfg.GetString("events.nats_url", nats.DefaultURL))
		if err != nil {
			return err
		}
		defer natsConn.Close()
		opts = append(opts, engine.WithPublisher(events.NewPublisher(natsConn)))
	}

	eng, err := engine.New(store, registry, selector, factory, opts...)
	if err != nil {
		return err
	}

	workerDone := make(chan struct{})
	if natsConn != nil {
		worker := events.NewWorker(natsConn, eng, events.WorkerConfig{
			Subject:     cfg.GetString("events.queue_subject", events.DefaultQueueSubject),
			Concurrency: cfg.GetInt("events.workers", 0),
		})
		go func() {
			defer close(workerDone)
			if err := worker.Run(ctx); err != nil {
				logger.Error("Queue worker stopped", "error", err)
			}
		}()
	} else {
		close(workerDone)
	}

	sched := buildScheduler(cfg, maintenance{
		engine:   eng,
		store:    store,
		registry: registry,
		factory:  factory,
		cache:    synthCache,
		quota:    quota,
		plays:    plays,
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	var exporter *prometheus.Exporter
	if addr := cfg.GetString("server.metrics_addr", ""); addr != "" {
		exporter = prometheus.NewExporter(addr)
		go func() {
			logger.Info("Metrics exporter listening", "addr", addr)
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics exporter failed", "error", err)
			}
		}()
	}

	auth, err := server.AuthenticatorFromConfig(cfg)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{
		server.WithAddr(cfg.GetString("server.addr", ":8080")),
		server.WithAuthenticator(auth),
	}
	if profileReg != nil {
		srvOpts = append(srvOpts, server.WithProfiles(profileReg))
	}

	srv, err := server.NewServer(eng, store, registry, cfg, srvOpts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("AudioPress listening", "addr", cfg.GetString("server.addr", ":8080"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	// Restore default signal handling so a second signal kills the
	// process instead of waiting out the drain.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	sched.Stop()
	<-workerDone

	if plays != nil {
		if _, err := plays.Flush(shutdownCtx, store); err != nil {
			logger.Warn("Could not flush buffered play counts", "error", err)
		}
	}
	if exporter != nil {
		if err := exporter.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	if err := tracerShutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// applyServeFlags lets command-line flags override the settings file.
func applyServeFlags(cfg *config.Manager) {
	if addr := viper.GetString("serve_addr"); addr != "" {
		_ = cfg.Set("server.addr", addr)
	}
	if addr := viper.GetString("serve_metrics_addr"); addr != "" {
		_ = cfg.Set("server.metrics_addr", addr)
	}
}

// setupTracing starts the OTLP trace exporter when telemetry is enabled
// and installs it as the global provider so HTTP middleware spans land
// on it. The returned shutdown func is safe to call either way.
func setupTracing(ctx context.Context, cfg *config.Manager) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.GetBool("telemetry.enabled", false) {
		return nil, func(context.Context) error { return nil }, nil
	}

	tp, err := telemetry.NewTracerProvider(ctx,
		cfg.GetString("telemetry.endpoint", ""),
		cfg.GetString("telemetry.service_name", "audiopress"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	telemetry.SetupPropagation()
	otel.SetTracerProvider(tp)
	return telemetry.Tracer(tp), tp.Shutdown, nil
}

// engineOptions assembles the optional engine collaborators. Nil
// collaborators are left unset so the engine skips their step.
func engineOptions(
	cfg *config.Manager,
	synthCache cache.Cache,
	limiter ratelimit.Limiter,
	quota *engine.QuotaTracker,
	plays *engine.PlayBuffer,
	tracer trace.Tracer,
) []engine.Option {
	opts := []engine.Option{
		engine.WithConfig(engine.Config{
			DefaultProvider: cfg.GetString("defaults.provider", tts.ProviderAzure),
			StorageBackend:  cfg.GetString("storage.provider", storage.LocalBackend),
			Defaults:        synthesisDefaults(cfg),
		}),
		engine.WithLimiter(limiter),
	}
	if synthCache != nil {
		opts = append(opts, engine.WithCache(synthCache))
	}
	if quota != nil {
		opts = append(opts, engine.WithQuota(quota))
	}
	if plays != nil {
		opts = append(opts, engine.WithPlayBuffer(plays))
	}
	if tracer != nil {
		opts = append(opts, engine.WithTracer(tracer))
	}
	if dir := cfg.GetString("assets.dir", ""); dir != "" {
		opts = append(opts, engine.WithAssetSource(engine.NewDirAssetSource(dir)))
	}
	return opts
}

// maintenance bundles the collaborators the scheduler jobs act on.
type maintenance struct {
	engine   *engine.Engine
	store    records.Store
	registry *tts.Registry
	factory  *storage.Factory
	cache    cache.Cache
	quota    *engine.QuotaTracker
	plays    *engine.PlayBuffer
}

// buildScheduler wires the four maintenance jobs. Jobs whose
// collaborators are not configured run as no-ops.
func buildScheduler(cfg *config.Manager, m maintenance) *scheduler.Scheduler {
	var baseDir string
	if cfg.GetString("storage.provider", storage.LocalBackend) == storage.LocalBackend {
		baseDir = cfg.GetString("storage.local.base_dir", local.DefaultBaseDir)
	}

	var enforcer *policy.Enforcer
	if retention := cfg.GetString("storage.local.retention", ""); baseDir != "" && retention != "" {
		pol, err := policy.Parse(retention)
		if err != nil {
			logger.Warn("Invalid retention policy, keeping stored audio forever",
				"policy", retention, "error", err)
		} else {
			enforcer = policy.NewEnforcer(baseDir, pol)
		}
	}

	var orphans *scheduler.OrphanSweeper
	if baseDir != "" {
		orphans = scheduler.NewOrphanSweeper(m.store, baseDir, 0)
	}

	lockDir := cfg.GetString("scheduler.lock_dir", "")
	if lockDir == "" {
		lockDir = baseDir
	}

	sched := scheduler.New(scheduler.WithLockDir(lockDir))
	sched.Add(
		scheduler.CacheCleanup(scheduler.CacheCleanupConfig{
			Cache:    m.cache,
			MaxAge:   cfg.GetDuration("cache.ttl", cache.DefaultTTL),
			Enforcer: enforcer,
			Orphans:  orphans,
			Interval: cfg.GetDuration("scheduler.cache_cleanup_interval", 0),
		}),
		scheduler.AnalyticsUpdate(m.plays, m.store,
			cfg.GetDuration("scheduler.analytics_update_interval", 0)),
		scheduler.QuotaReset(m.quota,
			cfg.GetDuration("scheduler.quota_reset_interval", 0)),
		scheduler.HealthCheck(scheduler.HealthCheckConfig{
			Engine:    m.engine,
			Providers: m.registry.List(),
			Factory:   m.factory,
			Backends:  []string{cfg.GetString("storage.provider", storage.LocalBackend)},
			Interval:  cfg.GetDuration("scheduler.health_check_interval", 0),
		}),
	)
	return sched
}
