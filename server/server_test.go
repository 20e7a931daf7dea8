package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AudioPress/audiopress/audio"
	"github.com/AudioPress/audiopress/cache"
	"github.com/AudioPress/audiopress/config"
	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/profiles"
	"github.com/AudioPress/audiopress/ratelimit"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/storage"
	"github.com/AudioPress/audiopress/tts"
)

// makeWAV builds a mono 16-bit WAV of the given sample count.
func makeWAV(sampleRate, samples int) []byte {
	pcm := make([]byte, samples*2)
	return audio.EncodeWAV(audio.WAVInfo{
		SampleRate: sampleRate,
		Channels:   1,
		BitDepth:   16,
		DataSize:   len(pcm),
	}, pcm)
}

// testSynthService returns canned audio for every synthesis call.
type testSynthService struct {
	mu    sync.Mutex
	name  string
	audio []byte
	calls int
}

func (s *testSynthService) Name() string { return s.name }

func (s *testSynthService) Synthesize(ctx context.Context, text string, cfg tts.SynthesisConfig) (io.ReadCloser, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return io.NopCloser(bytes.NewReader(s.audio)), nil
}

func (s *testSynthService) SupportedVoices() []tts.Voice {
	return []tts.Voice{
		{ID: "en-US-JennyNeural", Name: "Jenny", Language: "en", Gender: "female"},
		{ID: "en-US-GuyNeural", Name: "Guy", Language: "en", Gender: "male"},
	}
}

func (s *testSynthService) SupportedFormats() []tts.AudioFormat {
	return []tts.AudioFormat{tts.FormatMP3, tts.FormatWAV, tts.FormatPCM16}
}

// testStorageProvider keeps uploads in memory.
type testStorageProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newTestStorageProvider() *testStorageProvider {
	return &testStorageProvider{objects: make(map[string][]byte)}
}

func (p *testStorageProvider) Name() string { return storage.LocalBackend }

func (p *testStorageProvider) Upload(ctx context.Context, input storage.UploadInput) (*storage.Object, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := "audio/" + input.Filename
	p.objects[ref] = input.Data
	return &storage.Object{
		Ref:       ref,
		URL:       "https://cdn.example.com/" + input.Filename,
		Provider:  storage.LocalBackend,
		SizeBytes: int64(len(input.Data)),
	}, nil
}

func (p *testStorageProvider) Delete(ctx context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.objects[ref]; !exists {
		return storage.ErrNotFound
	}
	delete(p.objects, ref)
	return nil
}

func (p *testStorageProvider) URL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	return "https://cdn.example.com/" + strings.TrimPrefix(ref, "audio/"), nil
}

func (p *testStorageProvider) Validate(ctx context.Context) error { return nil }

// serverHarness wires a Server over in-memory collaborators.
type serverHarness struct {
	ts    *httptest.Server
	store *records.MemoryStore
	synth *testSynthService
	cfg   *config.Manager
}

func newTestServer(t *testing.T, engineOpts []engine.Option, serverOpts ...Option) *serverHarness {
	t.Helper()

	h := &serverHarness{
		store: records.NewMemoryStore(),
		synth: &testSynthService{name: tts.ProviderAzure, audio: makeWAV(24000, 4800)},
		cfg:   config.New(),
	}

	registry := tts.NewServiceRegistry()
	registry.Register(h.synth)

	factory := storage.NewFactory()
	factory.RegisterBackend(storage.LocalBackend, func(ctx context.Context) (storage.Provider, error) {
		return newTestStorageProvider(), nil
	})

	base := []engine.Option{engine.WithCache(cache.NewMemoryCache())}
	eng, err := engine.New(h.store, registry,
		tts.NewSelector(tts.SelectDefault, tts.ProviderAzure, nil, nil),
		factory, append(base, engineOpts...)...)
	require.NoError(t, err)

	srv, err := NewServer(eng, h.store, registry, h.cfg, serverOpts...)
	require.NoError(t, err)

	h.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(h.ts.Close)
	return h
}

func (h *serverHarness) request(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decodeBody[errorBody](t, resp)
	return body.Error.Code
}

// seedGeneratedRecord stores a record with finished audio.
func seedGeneratedRecord(t *testing.T, store records.Store, contentID string) *records.Record {
	t.Helper()

	record := records.New(contentID)
	record.Enabled = true
	record.Audio = records.Audio{
		URL:             "https://cdn.example.com/" + contentID + ".mp3",
		Status:          records.StatusGenerated,
		DurationSeconds: 90,
		Format:          "mp3",
		StorageProvider: storage.LocalBackend,
		ObjectRef:       "audio/" + contentID + ".mp3",
	}
	require.NoError(t, store.Save(context.Background(), record))
	return record
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/readyz", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodPost, "/v1/tts/generate", generateRequest{
		ContentID: "post-1",
		Text:      "Hello from the HTTP API.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[generateResponse](t, resp)
	assert.Equal(t, "post-1", result.ContentID)
	assert.Equal(t, tts.ProviderAzure, result.Provider)
	assert.Contains(t, result.URL, "https://cdn.example.com/")
	assert.False(t, result.Cached)
	assert.NotEmpty(t, result.RequestID)
	require.NotNil(t, result.Record)
	assert.Equal(t, records.StatusGenerated, result.Record.Audio.Status)

	stored, err := h.store.Load(context.Background(), "post-1")
	require.NoError(t, err)
	assert.Equal(t, records.StatusGenerated, stored.Audio.Status)
}

func TestGenerateEndpointValidation(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name string
		body generateRequest
		code string
	}{
		{"empty content id", generateRequest{Text: "hello"}, "invalid_request"},
		{"empty text", generateRequest{ContentID: "post-2"}, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.request(t, http.MethodPost, "/v1/tts/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, errorCode(t, resp))
		})
	}
}

func TestGenerateEndpointMalformedBody(t *testing.T) {
	h := newTestServer(t, nil)

	resp, err := http.Post(h.ts.URL+"/v1/tts/generate", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", errorCode(t, resp))
}

func TestGenerateEndpointRateLimited(t *testing.T) {
	h := newTestServer(t, []engine.Option{
		engine.WithLimiter(newBlockingLimiter()),
	})

	resp := h.request(t, http.MethodPost, "/v1/tts/generate", generateRequest{
		ContentID: "post-3",
		Text:      "over the limit",
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limited", errorCode(t, resp))
}

func TestGetRecord(t *testing.T) {
	h := newTestServer(t, nil)
	seedGeneratedRecord(t, h.store, "post-4")

	resp := h.request(t, http.MethodGet, "/v1/tts/post-4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	record := decodeBody[records.Record](t, resp)
	assert.Equal(t, "post-4", record.ContentID)
	assert.Equal(t, records.StatusGenerated, record.Audio.Status)
}

func TestGetRecordNotFound(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/v1/tts/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, resp))
}

func TestUpdateRecordCreates(t *testing.T) {
	h := newTestServer(t, nil)

	enabled := true
	voice := "en-US-JennyNeural"
	resp := h.request(t, http.MethodPut, "/v1/tts/post-5", updateRecordRequest{
		Enabled: &enabled,
		VoiceID: &voice,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[updateRecordResponse](t, resp)
	assert.False(t, result.GenerationStarted)
	require.NotNil(t, result.Record)
	assert.True(t, result.Record.Enabled)
	assert.Equal(t, voice, result.Record.Voice.VoiceID)

	stored, err := h.store.Load(context.Background(), "post-5")
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
}

func TestUpdateRecordPartial(t *testing.T) {
	h := newTestServer(t, nil)
	seedGeneratedRecord(t, h.store, "post-6")

	custom := "Read this instead."
	useCustom := true
	resp := h.request(t, http.MethodPut, "/v1/tts/post-6", updateRecordRequest{
		CustomText:    &custom,
		UseCustomText: &useCustom,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := h.store.Load(context.Background(), "post-6")
	require.NoError(t, err)
	assert.Equal(t, custom, stored.Content.CustomText)
	assert.True(t, stored.Content.UseCustomText)
	// Untouched fields survive.
	assert.True(t, stored.Enabled)
	assert.Equal(t, records.StatusGenerated, stored.Audio.Status)
}

func TestUpdateRecordAutoGenerate(t *testing.T) {
	h := newTestServer(t, nil)

	enabled := true
	resp := h.request(t, http.MethodPut, "/v1/tts/post-7", updateRecordRequest{
		Enabled:      &enabled,
		Text:         "Narrate me in the background.",
		AutoGenerate: true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[updateRecordResponse](t, resp)
	assert.True(t, result.GenerationStarted)

	require.Eventually(t, func() bool {
		record, err := h.store.Load(context.Background(), "post-7")
		return err == nil && record.Audio.Status == records.StatusGenerated
	}, 3*time.Second, 20*time.Millisecond)
}

func TestUpdateRecordAutoGenerateSkipsExistingAudio(t *testing.T) {
	h := newTestServer(t, nil)
	seedGeneratedRecord(t, h.store, "post-8")

	enabled := true
	resp := h.request(t, http.MethodPut, "/v1/tts/post-8", updateRecordRequest{
		Enabled:      &enabled,
		Text:         "should not synthesize",
		AutoGenerate: true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[updateRecordResponse](t, resp)
	assert.False(t, result.GenerationStarted)
}

func TestDeleteAudioEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodPost, "/v1/tts/generate", generateRequest{
		ContentID: "post-9",
		Text:      "soon to be deleted",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.request(t, http.MethodDelete, "/v1/tts/post-9/audio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	record := decodeBody[records.Record](t, resp)
	assert.Equal(t, records.StatusNone, record.Audio.Status)
	assert.Empty(t, record.Audio.URL)
}

func TestDeleteAudioNotFound(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodDelete, "/v1/tts/missing/audio", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListProviders(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/v1/providers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[providersResponse](t, resp)
	assert.Equal(t, []string{tts.ProviderAzure}, body.Providers)
}

func TestProviderVoices(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/v1/providers/azure/voices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[voicesResponse](t, resp)
	assert.Equal(t, tts.ProviderAzure, body.Provider)
	require.Len(t, body.Voices, 2)
	assert.Equal(t, "en-US-JennyNeural", body.Voices[0].ID)
	assert.Equal(t, "female", body.Voices[0].Gender)
}

func TestProviderVoicesUnknown(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/v1/providers/nope/voices", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, resp))
}

func TestValidateProviderEndpointUnknown(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodPost, "/v1/tts/validate-provider",
		validateProviderRequest{Provider: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unknown_provider", errorCode(t, resp))
}

func TestValidateProviderEndpointUnsupported(t *testing.T) {
	// The plain test service implements no credential check.
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodPost, "/v1/tts/validate-provider",
		validateProviderRequest{Provider: tts.ProviderAzure})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_unsupported", errorCode(t, resp))
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	h := newTestServer(t, nil)
	require.NoError(t, h.cfg.Set("providers.azure.api_key", "super-secret"))

	resp := h.request(t, http.MethodGet, "/v1/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tree := decodeBody[map[string]interface{}](t, resp)
	providers := tree["providers"].(map[string]interface{})
	azure := providers["azure"].(map[string]interface{})
	assert.Equal(t, config.RedactedValue, azure["api_key"])
}

func TestSetConfig(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodPut, "/v1/config", map[string]interface{}{
		"player.theme": "dark",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, "dark", h.cfg.GetString("player.theme", ""))
}

func TestPlayerConfigEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	seedGeneratedRecord(t, h.store, "post-10")

	resp := h.request(t, http.MethodGet, "/v1/player/post-10/config?title=My+Episode", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cfg := decodeBody[map[string]interface{}](t, resp)
	assert.Equal(t, "post-10", cfg["content_id"])
	assert.Equal(t, "My Episode", cfg["title"])
	assert.Equal(t, "default", cfg["theme"])
	assert.Equal(t, "1:30", cfg["duration"])
}

func TestPlayerConfigNotEmbeddable(t *testing.T) {
	h := newTestServer(t, nil)

	record := records.New("post-11")
	record.Audio.Status = records.StatusPending
	require.NoError(t, h.store.Save(context.Background(), record))

	resp := h.request(t, http.MethodGet, "/v1/player/post-11/config", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_embeddable", errorCode(t, resp))
}

func TestPlayerEmbedEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	seedGeneratedRecord(t, h.store, "post-12")

	resp := h.request(t, http.MethodGet, "/v1/player/post-12/embed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<audio")
	assert.Contains(t, string(body), "https://cdn.example.com/post-12.mp3")
}

func TestPlayerPlayedEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	seedGeneratedRecord(t, h.store, "post-13")

	resp := h.request(t, http.MethodPost, "/v1/player/post-13/played", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	stored, err := h.store.Load(context.Background(), "post-13")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Stats.PlayCount)
}

func TestPlayerPlayedNotFound(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodPost, "/v1/player/missing/played", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/healthz", nil)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestRequestIDHeaderHonorsInbound(t *testing.T) {
	h := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, h.ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-from-proxy")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-from-proxy", resp.Header.Get(requestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newTestServer(t, nil)
	srv, err := NewServer(mustEngine(t, h), h.store, tts.NewServiceRegistry(), h.cfg)
	require.NoError(t, err)

	panicking := srv.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	panicking.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal")
}

func TestNewServerRequiresDependencies(t *testing.T) {
	h := newTestServer(t, nil)
	eng := mustEngine(t, h)
	registry := tts.NewServiceRegistry()

	_, err := NewServer(nil, h.store, registry, h.cfg)
	assert.ErrorContains(t, err, "engine")

	_, err = NewServer(eng, nil, registry, h.cfg)
	assert.ErrorContains(t, err, "records store")

	_, err = NewServer(eng, h.store, nil, h.cfg)
	assert.ErrorContains(t, err, "provider registry")

	_, err = NewServer(eng, h.store, registry, nil)
	assert.ErrorContains(t, err, "config manager")
}

// mustEngine builds a throwaway engine for constructor tests.
func mustEngine(t *testing.T, h *serverHarness) *engine.Engine {
	t.Helper()

	factory := storage.NewFactory()
	registry := tts.NewServiceRegistry()
	registry.Register(h.synth)

	eng, err := engine.New(h.store, registry,
		tts.NewSelector(tts.SelectDefault, tts.ProviderAzure, nil, nil), factory)
	require.NoError(t, err)
	return eng
}

// blockingLimiter denies every request.
type blockingLimiter struct{}

func newBlockingLimiter() *blockingLimiter { return &blockingLimiter{} }

func (l *blockingLimiter) Allow(ctx context.Context, userID string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: 30 * time.Second}, nil
}

// testProfileRegistry loads one narrator profile.
func testProfileRegistry(t *testing.T) *profiles.Registry {
	t.Helper()

	profile, err := profiles.Parse([]byte(`apiVersion: audiopress.io/v1alpha1
kind: VoiceProfile
metadata:
  name: narrator
spec:
  provider: azure
  voice_id: en-US-GuyNeural
  language: en-US
  speed: 1.1
`))
	require.NoError(t, err)

	registry := profiles.NewRegistry()
	require.NoError(t, registry.Register(profile))
	return registry
}

func TestGenerateWithProfile(t *testing.T) {
	h := newTestServer(t, nil, WithProfiles(testProfileRegistry(t)))

	resp := h.request(t, http.MethodPost, "/v1/tts/generate", map[string]interface{}{
		"content_id": "post-70",
		"text":       "The narrator profile picks the voice.",
		"profile":    "narrator",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[generateResponse](t, resp)
	assert.Equal(t, "en-US-GuyNeural", body.Voice)
	assert.Equal(t, tts.ProviderAzure, body.Provider)
}

func TestGenerateWithProfileExplicitWins(t *testing.T) {
	h := newTestServer(t, nil, WithProfiles(testProfileRegistry(t)))

	resp := h.request(t, http.MethodPost, "/v1/tts/generate", map[string]interface{}{
		"content_id": "post-71",
		"text":       "Explicit voice beats the profile.",
		"profile":    "narrator",
		"voice":      "en-US-JennyNeural",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[generateResponse](t, resp)
	assert.Equal(t, "en-US-JennyNeural", body.Voice)
}

func TestGenerateWithUnknownProfile(t *testing.T) {
	h := newTestServer(t, nil, WithProfiles(testProfileRegistry(t)))

	resp := h.request(t, http.MethodPost, "/v1/tts/generate", map[string]interface{}{
		"content_id": "post-72",
		"text":       "hello",
		"profile":    "bogus",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unknown_profile", errorCode(t, resp))
}

func TestListProfiles(t *testing.T) {
	h := newTestServer(t, nil, WithProfiles(testProfileRegistry(t)))

	resp := h.request(t, http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[profilesResponse](t, resp)
	assert.Equal(t, []string{"narrator"}, body.Profiles)
}

func TestListProfilesUnconfigured(t *testing.T) {
	h := newTestServer(t, nil)

	resp := h.request(t, http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[profilesResponse](t, resp)
	assert.Empty(t, body.Profiles)
}

func TestGetProfile(t *testing.T) {
	h := newTestServer(t, nil, WithProfiles(testProfileRegistry(t)))

	resp := h.request(t, http.MethodGet, "/v1/profiles/narrator", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[profiles.VoiceProfile](t, resp)
	assert.Equal(t, "narrator", body.Name())
	assert.Equal(t, "en-US-GuyNeural", body.Spec.VoiceID)
}

func TestGetProfileUnknown(t *testing.T) {
	h := newTestServer(t, nil, WithProfiles(testProfileRegistry(t)))

	resp := h.request(t, http.MethodGet, "/v1/profiles/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, resp))
}
