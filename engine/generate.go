package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AudioPress/audiopress/audio"
	"github.com/AudioPress/audiopress/cache"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/metrics/prometheus"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/storage"
	"github.com/AudioPress/audiopress/tts"
)

// GenerateRequest describes one audio generation.
type GenerateRequest struct {
	// ContentID identifies the content the audio belongs to.
	ContentID string

	// Text is the content body to synthesize. The record's custom text
	// takes precedence when use_custom_text is set.
	Text string

	// Title labels the stored audio (podcast episode title).
	Title string

	// UserID is the rate limit subject. Empty requests share the
	// anonymous bucket.
	UserID string

	// Provider overrides provider selection when that provider is
	// active.
	Provider string

	// Voice, Language, Format, Speed and Pitch override the record's
	// voice selection and the configured defaults for this request.
	Voice    string
	Language string
	Format   string
	Speed    float64
	Pitch    float64

	// Artwork is optional episode artwork for podcast storage backends.
	Artwork []byte

	// ForceRegenerate skips the cache and always calls the vendor.
	ForceRegenerate bool

	// RequestID correlates logs and events. Assigned when empty.
	RequestID string
}

// GenerateResult is the outcome of a generation.
type GenerateResult struct {
	Record          *records.Record
	URL             string
	Provider        string
	Voice           string
	Format          string
	DurationSeconds float64
	Chunks          int
	Cached          bool
	RequestID       string
}

// anonymousUser is the rate limit bucket for requests without a user.
const anonymousUser = "anonymous"

// customProviderLabel marks generations narrated from the record's own
// audio asset instead of a TTS vendor.
const customProviderLabel = "custom"

// Generate runs one end-to-end audio generation: resolve the text,
// consult the cache, enforce the rate limit, select a provider,
// synthesize (chunked for long text), mix attached assets, upload,
// update the cache and record, and publish the outcome.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.ContentID == "" {
		return nil, records.ErrInvalidContentID
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx = logger.WithContentID(ctx, req.ContentID)
	ctx = logger.WithRequestID(ctx, req.RequestID)

	ctx, span := e.tracer.Start(ctx, "engine.generate",
		trace.WithAttributes(attribute.String("audiopress.content_id", req.ContentID)))
	defer span.End()

	if e.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.GenerationTimeout)
		defer cancel()
	}

	start := time.Now()
	prometheus.RecordGenerationStart()
	outcome := "error"
	defer func() {
		prometheus.RecordGenerationEnd(outcome, time.Since(start).Seconds())
	}()

	record, err := e.loadOrCreate(ctx, req.ContentID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	text, err := resolveText(record, req.Text)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	synthCfg := e.synthesisConfig(record, req)
	key := cache.Key(text, cache.KeyOptions{
		Provider: e.providerIntent(record, req),
		Voice:    synthCfg.Voice,
		Format:   synthCfg.Format.Name,
		Language: synthCfg.Language,
		Speed:    synthCfg.Speed,
	})

	if result, ok := e.fromCache(ctx, record, req, key); ok {
		outcome = "cached"
		span.SetAttributes(attribute.Bool("audiopress.cached", true))
		return result, nil
	}

	if err := e.checkRateLimit(ctx, req.UserID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	provider := customProviderLabel
	if !usesCustomNarration(record, e.assets) {
		override := req.Provider
		if override == "" {
			override = record.Voice.Provider
		}
		provider, err = e.selector.Select(override)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	ctx = logger.WithProvider(ctx, provider)
	span.SetAttributes(attribute.String("audiopress.provider", provider))

	if !e.guard.acquire(req.ContentID) {
		span.SetStatus(codes.Error, ErrGenerationInProgress.Error())
		return nil, ErrGenerationInProgress
	}
	defer e.guard.release(req.ContentID)

	if e.quota != nil && provider != customProviderLabel {
		if err := e.quota.Check(ctx, provider, len(text)); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	record.Enabled = true
	record.Audio.Status = records.StatusGenerating
	record.Generation.Attempts++
	if err := e.records.Save(ctx, record); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := e.synthesizeAndStore(ctx, record, req, text, synthCfg, provider, key)
	if err != nil {
		e.markFailed(ctx, record, err)
		e.publishFailed(context.WithoutCancel(ctx), AudioEvent{
			ContentID:  req.ContentID,
			Provider:   provider,
			Err:        logger.RedactSensitiveData(err.Error()),
			RequestID:  req.RequestID,
			OccurredAt: time.Now().UTC(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.publishGenerated(ctx, AudioEvent{
		ContentID:  req.ContentID,
		Provider:   result.Provider,
		URL:        result.URL,
		RequestID:  req.RequestID,
		OccurredAt: time.Now().UTC(),
	})

	outcome = "success"
	logger.InfoContext(ctx, "Audio generated",
		"url", result.URL,
		"format", result.Format,
		"duration_seconds", result.DurationSeconds,
		"chunks", result.Chunks)
	return result, nil
}

// loadOrCreate returns the content's record, creating one for content
// that has never had TTS.
func (e *Engine) loadOrCreate(ctx context.Context, contentID string) (*records.Record, error) {
	record, err := e.records.Load(ctx, contentID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return records.New(contentID), nil
		}
		return nil, err
	}
	return record, nil
}

// resolveText picks the text to synthesize: the record's custom text
// when enabled, the supplied content text otherwise.
func resolveText(record *records.Record, text string) (string, error) {
	if record.Content.UseCustomText && strings.TrimSpace(record.Content.CustomText) != "" {
		return strings.TrimSpace(record.Content.CustomText), nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", tts.ErrEmptyText
	}
	return text, nil
}

// synthesisConfig layers the voice selection: engine defaults, then the
// record's stored voice, then per-request overrides.
func (e *Engine) synthesisConfig(record *records.Record, req GenerateRequest) tts.SynthesisConfig {
	cfg := e.config.Defaults
	if record.Voice.VoiceID != "" {
		cfg.Voice = record.Voice.VoiceID
	}
	if record.Voice.Language != "" {
		cfg.Language = record.Voice.Language
	}
	if req.Voice != "" {
		cfg.Voice = req.Voice
	}
	if req.Language != "" {
		cfg.Language = req.Language
	}
	if req.Format != "" {
		if format, ok := tts.FormatByName(req.Format); ok {
			cfg.Format = format
		}
	}
	if req.Speed > 0 {
		cfg.Speed = req.Speed
	}
	if req.Pitch != 0 {
		cfg.Pitch = req.Pitch
	}
	return cfg
}

// providerIntent is the provider folded into the cache key: the request
// override, the record's stored provider, or the configured default.
// Selection can still land elsewhere when the intended provider is
// inactive; the key stays stable so repeat requests share an entry.
func (e *Engine) providerIntent(record *records.Record, req GenerateRequest) string {
	if req.Provider != "" {
		return req.Provider
	}
	if record.Voice.Provider != "" {
		return record.Voice.Provider
	}
	return e.config.DefaultProvider
}

// fromCache serves the generation from the synthesis cache when
// possible, updating the record to point at the cached audio.
func (e *Engine) fromCache(ctx context.Context, record *records.Record, req GenerateRequest, key string) (*GenerateResult, bool) {
	if e.cache == nil || req.ForceRegenerate {
		return nil, false
	}
	if usesCustomNarration(record, e.assets) {
		return nil, false
	}

	entry, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.WarnContext(ctx, "Cache lookup failed", "error", err)
		}
		prometheus.RecordCacheLookup(false)
		return nil, false
	}
	prometheus.RecordCacheLookup(true)

	record.Enabled = true
	record.Audio.URL = entry.URL
	record.Audio.Status = records.StatusGenerated
	record.Audio.DurationSeconds = entry.DurationSeconds
	record.Audio.Format = entry.Format
	record.Voice.Provider = entry.Provider
	record.Voice.VoiceID = entry.Voice
	record.Content.Hash = strings.TrimPrefix(key, cache.KeyPrefix)
	if err := e.records.Save(ctx, record); err != nil {
		logger.WarnContext(ctx, "Failed to persist record after cache hit", "error", err)
		return nil, false
	}

	e.publishGenerated(ctx, AudioEvent{
		ContentID:  req.ContentID,
		Provider:   entry.Provider,
		URL:        entry.URL,
		RequestID:  req.RequestID,
		OccurredAt: time.Now().UTC(),
	})

	logger.InfoContext(ctx, "Serving audio from cache", "url", entry.URL)
	return &GenerateResult{
		Record:          record,
		URL:             entry.URL,
		Provider:        entry.Provider,
		Voice:           entry.Voice,
		Format:          entry.Format,
		DurationSeconds: entry.DurationSeconds,
		Cached:          true,
		RequestID:       req.RequestID,
	}, true
}

// checkRateLimit enforces the per-user generation limit.
func (e *Engine) checkRateLimit(ctx context.Context, userID string) error {
	if e.limiter == nil {
		return nil
	}
	if userID == "" {
		userID = anonymousUser
	}

	decision, err := e.limiter.Allow(ctx, userID)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if !decision.Allowed {
		prometheus.RecordRateLimitRejection()
		logger.WarnContext(ctx, "Generation rate limited",
			"user_id", userID, "retry_after", decision.RetryAfter)
	}
	return decision.Err()
}

// usesCustomNarration reports whether the record supplies its own
// narration asset, replacing vendor synthesis.
func usesCustomNarration(record *records.Record, assets AssetSource) bool {
	return assets != nil && assetRef(record.AudioAssets.Custom) != ""
}

// synthesizeAndStore runs the vendor and storage half of a generation:
// chunked synthesis (or the record's custom narration), asset mixing,
// upload, cache write and record persistence.
func (e *Engine) synthesizeAndStore(
	ctx context.Context,
	record *records.Record,
	req GenerateRequest,
	text string,
	synthCfg tts.SynthesisConfig,
	provider string,
	key string,
) (*GenerateResult, error) {
	data, formatName, chunkCount, err := e.produceNarration(ctx, record, text, synthCfg, provider)
	if err != nil {
		return nil, err
	}

	if hasMixableAssets(record) && e.assets != nil {
		ctx, mixSpan := e.tracer.Start(ctx, "engine.mix")
		data, err = e.mixAssets(ctx, record, data)
		mixSpan.End()
		if err != nil {
			return nil, fmt.Errorf("asset mixing failed: %w", err)
		}
		formatName = "wav"
	}

	duration := measureDuration(data, formatName)

	if e.quota != nil && chunkCount > 0 {
		if _, err := e.quota.Consume(ctx, provider, len(text)); err != nil {
			logger.WarnContext(ctx, "Failed to record quota usage", "error", err)
		}
	}

	obj, err := e.upload(ctx, record, req, data, formatName, key)
	if err != nil {
		return nil, err
	}

	e.writeCache(ctx, key, synthCfg, provider, obj, formatName, duration, chunkCount)

	previousRef := record.Audio.ObjectRef
	previousProvider := record.Audio.StorageProvider

	now := time.Now().UTC()
	record.Audio = records.Audio{
		URL:             obj.URL,
		Status:          records.StatusGenerated,
		DurationSeconds: duration,
		Format:          formatName,
		StorageProvider: obj.Provider,
		ObjectRef:       obj.Ref,
	}
	if chunkCount > 0 {
		record.Voice = records.Voice{
			Provider: provider,
			VoiceID:  synthCfg.Voice,
			Language: synthCfg.Language,
		}
	}
	record.Content.Hash = strings.TrimPrefix(key, cache.KeyPrefix)
	record.Generation.LastError = ""
	record.Generation.LastGeneratedAt = &now
	record.Stats.GenerationCount++
	if err := e.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist record: %w", err)
	}

	e.deletePrevious(ctx, previousProvider, previousRef, obj)

	return &GenerateResult{
		Record:          record,
		URL:             obj.URL,
		Provider:        provider,
		Voice:           synthCfg.Voice,
		Format:          formatName,
		DurationSeconds: duration,
		Chunks:          chunkCount,
		RequestID:       req.RequestID,
	}, nil
}

// produceNarration returns the narration audio: the record's custom
// narration asset when set, vendor synthesis otherwise. The chunk count
// is zero for custom narration.
func (e *Engine) produceNarration(
	ctx context.Context,
	record *records.Record,
	text string,
	synthCfg tts.SynthesisConfig,
	provider string,
) ([]byte, string, int, error) {
	if usesCustomNarration(record, e.assets) {
		ref := record.AudioAssets.Custom.Ref
		data, err := e.assets.Load(ctx, ref)
		if err != nil {
			return nil, "", 0, fmt.Errorf("custom narration asset: %w", err)
		}
		if _, _, err := audio.ParseWAV(data); err != nil {
			return nil, "", 0, fmt.Errorf("custom narration asset %q: %w", ref, err)
		}
		logger.InfoContext(ctx, "Using custom narration asset", "ref", ref)
		return data, "wav", 0, nil
	}

	svc, ok := e.providers.Get(provider)
	if !ok {
		return nil, "", 0, fmt.Errorf("provider %q is not registered", provider)
	}

	chunks := tts.SplitText(text, tts.TextBudget(provider))

	ctx, span := e.tracer.Start(ctx, "engine.synthesize",
		trace.WithAttributes(
			attribute.String("audiopress.provider", provider),
			attribute.Int("audiopress.chunks", len(chunks)),
		))
	defer span.End()

	// Multi-chunk synthesis and asset mixing both need sample-level
	// access, so they run through a WAV-concatenable vendor format.
	// A plain single chunk keeps the requested format untouched.
	if len(chunks) == 1 && !hasMixableAssets(record) {
		data, err := e.synthesizeChunk(ctx, svc, chunks[0], synthCfg)
		if err != nil {
			return nil, "", 0, err
		}
		return data, synthCfg.Format.Name, 1, nil
	}

	pcmCfg := synthCfg
	pcmCfg.Format = concatFormat(svc)

	wavChunks, err := e.synthesizeChunks(ctx, svc, chunks, pcmCfg)
	if err != nil {
		return nil, "", 0, err
	}

	data, err := audio.ConcatWAV(wavChunks)
	if err != nil {
		return nil, "", 0, fmt.Errorf("chunk concatenation failed: %w", err)
	}
	return data, "wav", len(chunks), nil
}

// synthesizeChunks synthesizes chunks concurrently, bounded by the
// engine-wide semaphore, and returns them as WAV segments in order.
func (e *Engine) synthesizeChunks(
	ctx context.Context,
	svc tts.Service,
	chunks []string,
	cfg tts.SynthesisConfig,
) ([][]byte, error) {
	results := make([][]byte, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			// A failed acquire means the group context is already dead;
			// Wait surfaces the chunk error that killed it.
			break
		}
		g.Go(func() error {
			defer e.sem.Release(1)
			data, err := e.synthesizeChunk(ctx, svc, chunk, cfg)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i], err = chunkToWAV(data, cfg.Format)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// synthesizeChunk runs one vendor synthesis call and drains the stream.
func (e *Engine) synthesizeChunk(
	ctx context.Context,
	svc tts.Service,
	text string,
	cfg tts.SynthesisConfig,
) ([]byte, error) {
	start := time.Now()
	logger.SynthesisCall(svc.Name(), cfg.Voice, len(text), cfg.Format.Name)

	rc, err := svc.Synthesize(ctx, text, cfg)
	if err != nil {
		prometheus.RecordSynthesis(svc.Name(), cfg.Format.Name, "error", 0, time.Since(start).Seconds())
		logger.SynthesisFailure(svc.Name(), cfg.Voice, err)
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		prometheus.RecordSynthesis(svc.Name(), cfg.Format.Name, "error", 0, time.Since(start).Seconds())
		logger.SynthesisFailure(svc.Name(), cfg.Voice, err)
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}

	elapsed := time.Since(start)
	prometheus.RecordSynthesis(svc.Name(), cfg.Format.Name, "success", len(text), elapsed.Seconds())
	logger.SynthesisResult(svc.Name(), cfg.Voice, int64(len(data)), elapsed.Seconds())
	return data, nil
}

// concatFormat picks the provider's WAV-concatenable format: a wav
// container when the catalog offers one, raw PCM otherwise.
func concatFormat(svc tts.Service) tts.AudioFormat {
	var pcm tts.AudioFormat
	for _, format := range svc.SupportedFormats() {
		switch format.Name {
		case "wav":
			return format
		case "pcm":
			pcm = format
		}
	}
	if pcm.Name != "" {
		return pcm
	}
	return tts.FormatWAV
}

// chunkToWAV normalizes a synthesized chunk to a WAV file. Container
// responses pass through; raw PCM is wrapped using the catalog format's
// parameters.
func chunkToWAV(data []byte, format tts.AudioFormat) ([]byte, error) {
	if _, _, err := audio.ParseWAV(data); err == nil {
		return data, nil
	}

	sampleRate := format.SampleRate
	if sampleRate <= 0 {
		sampleRate = tts.FormatPCM16.SampleRate
	}
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}
	bitDepth := format.BitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}

	if len(data)%2 != 0 {
		return nil, fmt.Errorf("raw audio length %d is not sample-aligned", len(data))
	}

	return audio.EncodeWAV(audio.WAVInfo{
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
		DataSize:   len(data),
	}, data), nil
}

// measureDuration derives the audio duration: exact from a WAV header,
// bitrate-estimated for compressed formats.
func measureDuration(data []byte, formatName string) float64 {
	if info, _, err := audio.ParseWAV(data); err == nil {
		return info.Duration().Seconds()
	}
	return audio.EstimateDurationForFormat(formatName, data).Seconds()
}

// upload stores the audio through the configured backend, noting when
// the factory degraded to local storage.
func (e *Engine) upload(
	ctx context.Context,
	record *records.Record,
	req GenerateRequest,
	data []byte,
	formatName string,
	key string,
) (*storage.Object, error) {
	ctx, span := e.tracer.Start(ctx, "engine.upload",
		trace.WithAttributes(attribute.String("audiopress.storage", e.config.StorageBackend)))
	defer span.End()

	provider, err := e.storage.Build(ctx, e.config.StorageBackend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if provider.Name() != e.config.StorageBackend {
		prometheus.RecordStorageFallback()
	}

	title := req.Title
	if title == "" {
		title = "Audio for " + record.ContentID
	}

	format, _ := tts.FormatByName(formatName)
	mimeType := format.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	hash := strings.TrimPrefix(key, cache.KeyPrefix)
	filename := fmt.Sprintf("%s-%s.%s", record.ContentID, shortHash(hash), formatName)

	start := time.Now()
	obj, err := provider.Upload(ctx, storage.UploadInput{
		ContentID: record.ContentID,
		Data:      data,
		Filename:  filename,
		MIMEType:  mimeType,
		Title:     title,
		Artwork:   req.Artwork,
		Metadata: map[string]string{
			"content_id": record.ContentID,
			"format":     formatName,
		},
	})
	if err != nil {
		prometheus.RecordStorageUpload(provider.Name(), "error", 0)
		return nil, fmt.Errorf("%w: upload: %w", ErrStorageUnavailable, err)
	}

	prometheus.RecordStorageUpload(provider.Name(), "success", obj.SizeBytes)
	logger.StorageUpload(provider.Name(), obj.Ref, obj.SizeBytes,
		"elapsed", time.Since(start).Round(time.Millisecond).String())
	return obj, nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// writeCache stores the finished audio in the synthesis cache. Custom
// narration is never cached: its key would not describe the output.
func (e *Engine) writeCache(
	ctx context.Context,
	key string,
	synthCfg tts.SynthesisConfig,
	provider string,
	obj *storage.Object,
	formatName string,
	duration float64,
	chunkCount int,
) {
	if e.cache == nil || chunkCount == 0 {
		return
	}

	entry := &cache.Entry{
		URL:             obj.URL,
		Provider:        provider,
		Voice:           synthCfg.Voice,
		Format:          formatName,
		DurationSeconds: duration,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.cache.Set(ctx, key, entry); err != nil {
		logger.WarnContext(ctx, "Cache write failed", "error", err)
	}
}

// deletePrevious removes the audio object the new upload replaced.
// Best effort: a leftover object is an orphan the cleanup job sweeps.
func (e *Engine) deletePrevious(ctx context.Context, providerName, ref string, current *storage.Object) {
	if ref == "" || providerName == "" {
		return
	}
	if current != nil && ref == current.Ref && providerName == current.Provider {
		return
	}

	provider, err := e.storage.Build(ctx, providerName)
	if err != nil {
		logger.WarnContext(ctx, "Cannot delete replaced audio object",
			"storage", providerName, "ref", ref, "error", err)
		return
	}
	if err := provider.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.WarnContext(ctx, "Failed to delete replaced audio object",
			"storage", providerName, "ref", ref, "error", err)
	}
}

// markFailed records a failed generation on the record. The write uses
// a context detached from the request so a timeout that killed the
// generation cannot also suppress the failure bookkeeping.
func (e *Engine) markFailed(ctx context.Context, record *records.Record, genErr error) {
	saveCtx := context.WithoutCancel(ctx)

	record.Audio.Status = records.StatusFailed
	record.Generation.LastError = logger.RedactSensitiveData(genErr.Error())
	if err := e.records.Save(saveCtx, record); err != nil {
		logger.ErrorContext(ctx, "Failed to persist failed generation", "error", err)
	}
	logger.ErrorContext(ctx, "Audio generation failed", "error", genErr)
}
