package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Registers the MySQL driver for the records store.
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/AudioPress/audiopress/cache"
	"github.com/AudioPress/audiopress/config"
	"github.com/AudioPress/audiopress/credentials"
	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/profiles"
	"github.com/AudioPress/audiopress/ratelimit"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/storage"
	"github.com/AudioPress/audiopress/storage/buzzsprout"
	"github.com/AudioPress/audiopress/storage/local"
	"github.com/AudioPress/audiopress/storage/s3"
	"github.com/AudioPress/audiopress/storage/spotify"
	"github.com/AudioPress/audiopress/tts"
)

// defaultConfigFile is tried when --config is not given.
const defaultConfigFile = "audiopress.yaml"

// loadConfig reads the settings file named by --config. An explicitly
// named file must exist; the default file is optional and its absence
// yields a defaults-only configuration.
func loadConfig() (*config.Manager, error) {
	if path := viper.GetString("config"); path != "" {
		return config.Load(path)
	}

	cfg, err := config.Load(defaultConfigFile)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("No config file found, using defaults", "path", defaultConfigFile)
		return config.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// configDir returns the directory of the backing config file, for
// resolving relative credential file paths. Empty for defaults-only
// configurations.
func configDir(cfg *config.Manager) string {
	if path := cfg.Path(); path != "" {
		return filepath.Dir(path)
	}
	return ""
}

// buildProviders constructs every TTS service whose credentials resolve
// and a selector that only routes to them. A provider without
// credentials is simply inactive, not an error.
func buildProviders(ctx context.Context, cfg *config.Manager) (*tts.Registry, *tts.Selector) {
	registry := tts.NewServiceRegistry()

	for _, name := range tts.RegisteredProviders() {
		service, err := buildProvider(ctx, cfg, name)
		if err != nil {
			if errors.Is(err, tts.ErrMissingCredentials) {
				logger.Debug("TTS provider inactive", "provider", name)
			} else {
				logger.Warn("TTS provider misconfigured", "provider", name, "error", err)
			}
			continue
		}
		registry.Register(service)
		logger.Info("TTS provider active", "provider", name)
	}

	mode := tts.SelectionMode(cfg.GetString("selection.mode", string(tts.SelectDefault)))
	selector := tts.NewSelector(mode, cfg.GetString("defaults.provider", tts.ProviderAzure), nil,
		func(name string) bool {
			_, ok := registry.Get(name)
			return ok
		})
	return registry, selector
}

// buildProvider constructs one TTS service from its providers.* config
// subtree. Errors wrapping tts.ErrMissingCredentials mean the provider
// is switched off, not broken.
func buildProvider(ctx context.Context, cfg *config.Manager, name string) (tts.Service, error) {
	if name == tts.ProviderPolly {
		return buildPolly(ctx, cfg)
	}

	base := "providers." + name
	spec := tts.ProviderSpec{
		Name:   name,
		Region: cfg.GetString(base+".region", ""),
		Model:  cfg.GetString(base+".model", cfg.GetString(base+".model_id", "")),
	}

	platform := cfg.GetString(base+".platform", "")
	credentialFile := cfg.GetString(base+".credentials_file", "")
	if name == tts.ProviderGoogle && platform == "" && credentialFile != "" {
		// A bare credentials_file on Google is a service account JSON,
		// not a file holding an API key.
		platform = credentials.PlatformGCPServiceAccount
	}

	cred, err := credentials.Resolve(ctx, credentials.ResolverConfig{
		Provider: name,
		Spec: &credentials.Spec{
			APIKey:         cfg.GetString(base+".api_key", ""),
			CredentialFile: credentialFile,
			CredentialEnv:  cfg.GetString(base+".credential_env", ""),
		},
		Platform:  platform,
		ConfigDir: configDir(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	switch c := cred.(type) {
	case *credentials.APIKeyCredential:
		spec.APIKey = c.APIKey()
	case *credentials.NoOpCredential:
		return nil, fmt.Errorf("%s: %w", name, tts.ErrMissingCredentials)
	default:
		spec.Authorizer = cred
	}

	return tts.CreateServiceFromSpec(spec)
}

// buildPolly constructs the Polly service. The AWS default chain always
// materializes a config, so Polly only counts as active when static keys
// are configured or AWS credentials are present in the environment.
func buildPolly(ctx context.Context, cfg *config.Manager) (tts.Service, error) {
	accessKey := cfg.GetString("providers.polly.access_key_id", "")
	if accessKey == "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" && os.Getenv("AWS_PROFILE") == "" {
		return nil, fmt.Errorf("polly: %w", tts.ErrMissingCredentials)
	}

	awsCfg, err := credentials.ResolveAWS(ctx, credentials.AWSSpec{
		Region:          cfg.GetString("providers.polly.region", ""),
		AccessKeyID:     accessKey,
		SecretAccessKey: cfg.GetString("providers.polly.secret_access_key", ""),
		SessionToken:    cfg.GetString("providers.polly.session_token", ""),
		RoleARN:         cfg.GetString("providers.polly.role_arn", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("polly: %w", err)
	}

	return tts.CreateServiceFromSpec(tts.ProviderSpec{
		Name:   tts.ProviderPolly,
		Engine: cfg.GetString("providers.polly.engine", ""),
		AWS:    &awsCfg,
	})
}

// buildStorageFactory registers a builder per storage backend. Backends
// are constructed lazily on first use, so a misconfigured podcast host
// does not break startup: uploads fall back to local storage.
func buildStorageFactory(cfg *config.Manager) *storage.Factory {
	factory := storage.NewFactory()

	factory.RegisterBackend(storage.LocalBackend, func(ctx context.Context) (storage.Provider, error) {
		return local.NewFileStore(local.Config{
			BaseDir:             cfg.GetString("storage.local.base_dir", local.DefaultBaseDir),
			PublicBaseURL:       cfg.GetString("storage.local.public_base_url", ""),
			EnableDeduplication: cfg.GetBool("storage.local.deduplicate", true),
			RetentionPolicy:     cfg.GetString("storage.local.retention", ""),
		})
	})

	factory.RegisterBackend("s3", func(ctx context.Context) (storage.Provider, error) {
		awsCfg, err := credentials.ResolveAWS(ctx, credentials.AWSSpec{
			Region: cfg.GetString("storage.s3.region", ""),
		})
		if err != nil {
			return nil, err
		}
		return s3.New(awsCfg, s3.Config{
			Bucket:        cfg.GetString("storage.s3.bucket", ""),
			Prefix:        cfg.GetString("storage.s3.prefix", ""),
			PublicBaseURL: cfg.GetString("storage.s3.public_url", ""),
			PresignExpiry: cfg.GetDuration("storage.s3.presign_expiry", 0),
		})
	})

	factory.RegisterBackend("buzzsprout", func(ctx context.Context) (storage.Provider, error) {
		cred, err := credentials.Resolve(ctx, credentials.ResolverConfig{
			Provider: "buzzsprout",
			Spec: &credentials.Spec{
				APIKey: cfg.GetString("storage.buzzsprout.api_token", ""),
			},
			ConfigDir: configDir(cfg),
		})
		if err != nil {
			return nil, err
		}
		keyed, ok := cred.(*credentials.APIKeyCredential)
		if !ok {
			return nil, errors.New("no Buzzsprout API token configured")
		}
		return buzzsprout.New(keyed.APIKey(), cfg.GetString("storage.buzzsprout.podcast_id", ""))
	})

	factory.RegisterBackend("spotify", func(ctx context.Context) (storage.Provider, error) {
		return spotify.New(spotify.Config{
			ClientID:     cfg.GetString("storage.spotify.client_id", ""),
			ClientSecret: cfg.GetString("storage.spotify.client_secret", ""),
			RefreshToken: cfg.GetString("storage.spotify.refresh_token", ""),
			ShowID:       cfg.GetString("storage.spotify.show_id", ""),
		})
	})

	return factory
}

// buildRecordsStore opens the configured records backend. The returned
// close function releases the backing connection; for the in-memory
// store it is a no-op.
func buildRecordsStore(ctx context.Context, cfg *config.Manager) (records.Store, func() error, error) {
	backend := cfg.GetString("records.backend", "memory")
	switch backend {
	case "memory":
		return records.NewMemoryStore(), func() error { return nil }, nil

	case "mysql":
		dsn := cfg.GetString("records.mysql.dsn", "")
		if dsn == "" {
			return nil, nil, errors.New("records.mysql.dsn is required for the mysql backend")
		}

		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open mysql: %w", err)
		}

		store, err := records.NewMySQLStore(db,
			records.WithTable(cfg.GetString("records.mysql.table", records.DefaultTable)))
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to ensure records schema: %w", err)
		}
		return store, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown records backend %q (valid: memory, mysql)", backend)
	}
}

// buildProfiles loads voice profile manifests when profiles.dir is set.
// Returns nil when no directory is configured.
func buildProfiles(cfg *config.Manager) (*profiles.Registry, error) {
	dir := cfg.GetString("profiles.dir", "")
	if dir == "" {
		return nil, nil
	}

	registry := profiles.NewRegistry()
	loaded, err := registry.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice profiles: %w", err)
	}
	logger.Info("Loaded voice profiles", "dir", dir, "count", loaded)
	return registry, nil
}

// redisFromConfig opens the shared Redis client. Returns nil when the
// cache backend is memory; the quota tracker and play buffer need Redis
// and stay off without it.
func redisFromConfig(cfg *config.Manager) *redis.Client {
	if cfg.GetString("cache.backend", "memory") != "redis" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetString("cache.redis.addr", "localhost:6379"),
		Password: cfg.GetString("cache.redis.password", ""),
		DB:       cfg.GetInt("cache.redis.db", 0),
	})
}

// buildCache returns the synthesis cache, nil when caching is disabled.
func buildCache(cfg *config.Manager, client *redis.Client) cache.Cache {
	if !cfg.GetBool("cache.enabled", true) {
		return nil
	}

	ttl := cfg.GetDuration("cache.ttl", cache.DefaultTTL)
	if client != nil {
		return cache.NewRedisCache(client, cache.WithTTL(ttl))
	}
	return cache.NewMemoryCache(cache.WithMemoryTTL(ttl))
}

// buildLimiter returns the per-user fixed-window rate limiter.
func buildLimiter(cfg *config.Manager, client *redis.Client) ratelimit.Limiter {
	limCfg := ratelimit.Config{
		MaxRequests: cfg.GetInt("rate_limit.max_requests", ratelimit.DefaultMaxRequests),
		Window:      cfg.GetDuration("rate_limit.window", ratelimit.DefaultWindow),
	}
	if client != nil {
		return ratelimit.NewRedisLimiter(client, limCfg)
	}
	return ratelimit.NewMemoryLimiter(limCfg)
}

// buildQuota returns the monthly character quota tracker, nil without
// Redis or configured limits.
func buildQuota(cfg *config.Manager, client *redis.Client) *engine.QuotaTracker {
	if client == nil {
		return nil
	}
	limits := quotaLimits(cfg)
	if len(limits) == 0 {
		return nil
	}
	return engine.NewQuotaTracker(client, limits)
}

// quotaLimits reads quotas.<provider>.monthly_characters into the shape
// the tracker wants. Non-positive entries are dropped.
func quotaLimits(cfg *config.Manager) map[string]int64 {
	raw := cfg.GetStringMap("quotas")
	if len(raw) == 0 {
		return nil
	}

	limits := make(map[string]int64, len(raw))
	for provider := range raw {
		if limit := cfg.GetInt("quotas."+provider+".monthly_characters", 0); limit > 0 {
			limits[provider] = int64(limit)
		}
	}
	return limits
}

// synthesisDefaults builds the engine's default voice settings from the
// defaults.* config subtree.
func synthesisDefaults(cfg *config.Manager) tts.SynthesisConfig {
	defaults := tts.DefaultSynthesisConfig()
	defaults.Voice = cfg.GetString("defaults.voice", defaults.Voice)
	defaults.Language = cfg.GetString("defaults.language", defaults.Language)
	defaults.Speed = cfg.GetFloat("defaults.speed", defaults.Speed)
	if format, ok := tts.FormatByName(cfg.GetString("defaults.format", defaults.Format.Name)); ok {
		defaults.Format = format
	}
	return defaults
}
