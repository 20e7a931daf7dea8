package tts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// stubAuthorizer applies a fixed bearer token, or fails.
type stubAuthorizer struct {
	token string
	err   error
}

func (a *stubAuthorizer) Apply(_ context.Context, req *http.Request) error {
	if a.err != nil {
		return a.err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

func TestNewAzure(t *testing.T) {
	service := NewAzure("test-key", "westeurope")
	if service == nil {
		t.Fatal("NewAzure() returned nil")
	}

	if service.subscriptionKey != "test-key" {
		t.Errorf("subscriptionKey = %v, want test-key", service.subscriptionKey)
	}

	if service.region != "westeurope" {
		t.Errorf("region = %v, want westeurope", service.region)
	}
}

func TestNewAzure_DefaultRegion(t *testing.T) {
	service := NewAzure("test-key", "")
	if service.region != azureDefaultRegion {
		t.Errorf("region = %v, want %v", service.region, azureDefaultRegion)
	}
}

func TestAzureService_Name(t *testing.T) {
	service := NewAzure("test-key", "eastus")
	if service.Name() != "azure" {
		t.Errorf("Name() = %v, want azure", service.Name())
	}
}

func TestAzureService_Synthesize_EmptyText(t *testing.T) {
	service := NewAzure("test-key", "eastus")
	_, err := service.Synthesize(context.Background(), "", SynthesisConfig{})
	if err != ErrEmptyText {
		t.Errorf("Synthesize() error = %v, want ErrEmptyText", err)
	}
}

func TestAzureService_Synthesize_Success(t *testing.T) {
	var body string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %v, want POST", r.Method)
		}

		if r.URL.Path != azureSynthesizePath {
			t.Errorf("Path = %v, want %v", r.URL.Path, azureSynthesizePath)
		}

		if key := r.Header.Get("Ocp-Apim-Subscription-Key"); key != "test-key" {
			t.Errorf("Ocp-Apim-Subscription-Key = %v, want test-key", key)
		}

		if ct := r.Header.Get("Content-Type"); ct != "application/ssml+xml" {
			t.Errorf("Content-Type = %v, want application/ssml+xml", ct)
		}

		if format := r.Header.Get("X-Microsoft-OutputFormat"); format != azureFormatMP3 {
			t.Errorf("X-Microsoft-OutputFormat = %v, want %v", format, azureFormatMP3)
		}

		data, _ := io.ReadAll(r.Body)
		body = string(data)

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("azure audio"))
	}))
	defer server.Close()

	service := NewAzure("test-key", "eastus", WithAzureBaseURL(server.URL))

	reader, err := service.Synthesize(context.Background(), "Hello world", SynthesisConfig{
		Voice:  "en-US-JennyNeural",
		Format: FormatMP3,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	if string(data) != "azure audio" {
		t.Errorf("data = %v, want azure audio", string(data))
	}

	if !strings.Contains(body, "name='en-US-JennyNeural'") {
		t.Errorf("body missing voice name: %v", body)
	}

	if !strings.Contains(body, "Hello world") {
		t.Errorf("body missing text: %v", body)
	}
}

func TestAzureService_Synthesize_DefaultVoice(t *testing.T) {
	var body string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	service := NewAzure("test-key", "eastus", WithAzureBaseURL(server.URL))

	reader, err := service.Synthesize(context.Background(), "Test", SynthesisConfig{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	reader.Close()

	if !strings.Contains(body, azureDefaultVoice) {
		t.Errorf("body should contain default voice %v: %v", azureDefaultVoice, body)
	}

	if !strings.Contains(body, "xml:lang='en-US'") {
		t.Errorf("body should carry the voice locale: %v", body)
	}
}

func TestAzureService_Synthesize_Authorizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer ad-token" {
			t.Errorf("Authorization = %v, want Bearer ad-token", auth)
		}

		if key := r.Header.Get("Ocp-Apim-Subscription-Key"); key != "" {
			t.Errorf("Ocp-Apim-Subscription-Key should be empty with authorizer, got %v", key)
		}

		w.Write([]byte("audio"))
	}))
	defer server.Close()

	service := NewAzure("", "eastus",
		WithAzureBaseURL(server.URL),
		WithAzureAuthorizer(&stubAuthorizer{token: "ad-token"}),
	)

	reader, err := service.Synthesize(context.Background(), "Test", SynthesisConfig{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	reader.Close()
}

func TestAzureService_Synthesize_AuthorizerError(t *testing.T) {
	service := NewAzure("", "eastus",
		WithAzureAuthorizer(&stubAuthorizer{err: errors.New("token refresh failed")}),
	)

	_, err := service.Synthesize(context.Background(), "Test", SynthesisConfig{})
	if err == nil {
		t.Fatal("Synthesize() should return error")
	}

	var synthErr *SynthesisError
	if !isError(err, &synthErr) {
		t.Fatalf("error should be SynthesisError, got %T", err)
	}

	if synthErr.Retryable {
		t.Error("credential failures should not be retryable")
	}
}

func TestAzureService_Synthesize_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	service := NewAzure("test-key", "eastus", WithAzureBaseURL(server.URL))

	_, err := service.Synthesize(context.Background(), "Test", SynthesisConfig{})
	if err == nil {
		t.Fatal("Synthesize() should return error")
	}

	var synthErr *SynthesisError
	if !isError(err, &synthErr) {
		t.Fatalf("error should be SynthesisError, got %T", err)
	}

	if !synthErr.Retryable {
		t.Error("429 should be retryable")
	}

	if !errors.Is(err, ErrRateLimited) {
		t.Error("429 should wrap ErrRateLimited")
	}
}

func TestAzureService_Synthesize_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	service := NewAzure("bad-key", "eastus", WithAzureBaseURL(server.URL))

	_, err := service.Synthesize(context.Background(), "Test", SynthesisConfig{})
	if err == nil {
		t.Fatal("Synthesize() should return error")
	}

	var synthErr *SynthesisError
	if !isError(err, &synthErr) {
		t.Fatalf("error should be SynthesisError, got %T", err)
	}

	if synthErr.Retryable {
		t.Error("401 should not be retryable")
	}

	if synthErr.Code != "401" {
		t.Errorf("Code = %v, want 401", synthErr.Code)
	}
}

func TestBuildSSML_EscapesText(t *testing.T) {
	ssml, err := buildSSML("Tom & Jerry <live>", "en-US-JennyNeural", "en-US", 0, 0)
	if err != nil {
		t.Fatalf("buildSSML() error = %v", err)
	}

	if !strings.Contains(ssml, "Tom &amp; Jerry &lt;live&gt;") {
		t.Errorf("ssml should escape markup: %v", ssml)
	}

	if strings.Contains(ssml, "<live>") {
		t.Errorf("ssml contains unescaped markup: %v", ssml)
	}
}

func TestBuildSSML_Prosody(t *testing.T) {
	ssml, err := buildSSML("Test", "en-US-JennyNeural", "en-US", 1.5, -2)
	if err != nil {
		t.Fatalf("buildSSML() error = %v", err)
	}

	if !strings.Contains(ssml, "<prosody rate='+50%' pitch='-2st'>") {
		t.Errorf("ssml missing prosody element: %v", ssml)
	}

	if !strings.Contains(ssml, "</prosody>") {
		t.Errorf("ssml missing prosody close: %v", ssml)
	}
}

func TestBuildSSML_NoProsodyAtDefaults(t *testing.T) {
	ssml, err := buildSSML("Test", "en-US-JennyNeural", "en-US", 1.0, 0)
	if err != nil {
		t.Fatalf("buildSSML() error = %v", err)
	}

	if strings.Contains(ssml, "<prosody") {
		t.Errorf("ssml should not carry prosody at defaults: %v", ssml)
	}
}

func TestVoiceLocale(t *testing.T) {
	tests := []struct {
		voice string
		want  string
	}{
		{"en-US-JennyNeural", "en-US"},
		{"de-DE-KatjaNeural", "de-DE"},
		{"ja-JP-NanamiNeural", "ja-JP"},
		{"Joanna", "en-US"},
		{"", "en-US"},
	}

	for _, tt := range tests {
		t.Run(tt.voice, func(t *testing.T) {
			if got := voiceLocale(tt.voice); got != tt.want {
				t.Errorf("voiceLocale(%v) = %v, want %v", tt.voice, got, tt.want)
			}
		})
	}
}

func TestAzureService_mapFormat(t *testing.T) {
	service := NewAzure("test-key", "eastus")

	tests := []struct {
		format AudioFormat
		want   string
	}{
		{FormatMP3, azureFormatMP3},
		{FormatWAV, azureFormatWAV},
		{FormatPCM16, azureFormatPCM},
		{FormatOpus, azureFormatOpus},
		{AudioFormat{Name: "unknown"}, azureFormatMP3},
		{AudioFormat{}, azureFormatMP3},
	}

	for _, tt := range tests {
		t.Run(tt.format.Name, func(t *testing.T) {
			if got := service.mapFormat(tt.format); got != tt.want {
				t.Errorf("mapFormat(%v) = %v, want %v", tt.format.Name, got, tt.want)
			}
		})
	}
}

func TestAzureService_CheckAccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != azureVoicesPath {
			t.Errorf("Path = %v, want %v", r.URL.Path, azureVoicesPath)
		}

		if key := r.Header.Get("Ocp-Apim-Subscription-Key"); key != "test-key" {
			t.Errorf("Ocp-Apim-Subscription-Key = %v, want test-key", key)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"ShortName":"en-US-JennyNeural","Locale":"en-US"}]`))
	}))
	defer server.Close()

	service := NewAzure("test-key", "eastus", WithAzureBaseURL(server.URL))

	data, err := service.CheckAccess(context.Background())
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}

	if !strings.Contains(string(data), "en-US-JennyNeural") {
		t.Errorf("CheckAccess() = %v, want voices payload", string(data))
	}
}

func TestAzureService_CheckAccess_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	service := NewAzure("bad-key", "eastus", WithAzureBaseURL(server.URL))

	_, err := service.CheckAccess(context.Background())
	if err == nil {
		t.Fatal("CheckAccess() should return error")
	}
}

func TestAzureService_SupportedVoices(t *testing.T) {
	service := NewAzure("test-key", "eastus")
	voices := service.SupportedVoices()

	if len(voices) < 8 {
		t.Errorf("len(SupportedVoices()) = %v, want >= 8", len(voices))
	}

	found := false
	for _, v := range voices {
		if v.ID == azureDefaultVoice {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("default voice %v not in SupportedVoices()", azureDefaultVoice)
	}
}

func TestAzureService_SupportedFormats(t *testing.T) {
	service := NewAzure("test-key", "eastus")
	formats := service.SupportedFormats()

	if len(formats) != 4 {
		t.Errorf("len(SupportedFormats()) = %v, want 4", len(formats))
	}
}
