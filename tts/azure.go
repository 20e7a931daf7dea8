package tts

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	azureEndpointTemplate = "https://%s.tts.speech.microsoft.com"
	azureSynthesizePath   = "/cognitiveservices/v1"
	azureVoicesPath       = "/cognitiveservices/voices/list"

	// Default timeout for Azure Speech requests.
	defaultAzureTimeout = 30 * time.Second

	// Outbound request ceiling (requests per second).
	defaultAzureRPS = 20

	// HTTP status code threshold for server errors.
	azureServerErrorThreshold = 500

	// azureDefaultRegion is used when no region is configured.
	azureDefaultRegion = "eastus"

	// azureDefaultVoice is the default neural voice.
	azureDefaultVoice = "en-US-JennyNeural"

	// Azure output format identifiers.
	azureFormatMP3  = "audio-24khz-96kbitrate-mono-mp3"
	azureFormatWAV  = "riff-24khz-16bit-mono-pcm"
	azureFormatPCM  = "raw-24khz-16bit-mono-pcm"
	azureFormatOpus = "ogg-24khz-16bit-mono-opus"

	// Cap on error body bytes read for diagnostics.
	azureErrorBodyLimit = 512
)

// AzureService implements TTS using the Azure Speech REST API.
// Authentication is a subscription key by default, or an Azure AD bearer
// token when a RequestAuthorizer is configured.
type AzureService struct {
	subscriptionKey string
	region          string
	baseURL         string
	client          *http.Client
	authorizer      RequestAuthorizer
	limiter         *rate.Limiter
}

// AzureOption configures the Azure TTS service.
type AzureOption func(*AzureService)

// WithAzureBaseURL sets a custom base URL (for testing or private endpoints).
func WithAzureBaseURL(url string) AzureOption {
	return func(s *AzureService) {
		s.baseURL = url
	}
}

// WithAzureClient sets a custom HTTP client.
func WithAzureClient(client *http.Client) AzureOption {
	return func(s *AzureService) {
		s.client = client
	}
}

// WithAzureAuthorizer sets an Azure AD token authorizer.
// When set, the subscription key header is not sent.
func WithAzureAuthorizer(authorizer RequestAuthorizer) AzureOption {
	return func(s *AzureService) {
		s.authorizer = authorizer
	}
}

// WithAzureLimiter sets the outbound request limiter.
func WithAzureLimiter(limiter *rate.Limiter) AzureOption {
	return func(s *AzureService) {
		s.limiter = limiter
	}
}

// NewAzure creates an Azure Speech TTS service for the given region.
func NewAzure(subscriptionKey, region string, opts ...AzureOption) *AzureService {
	if region == "" {
		region = azureDefaultRegion
	}

	s := &AzureService{
		subscriptionKey: subscriptionKey,
		region:          region,
		client:          &http.Client{Timeout: defaultAzureTimeout},
		limiter:         rate.NewLimiter(rate.Limit(defaultAzureRPS), defaultAzureRPS),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *AzureService) Name() string {
	return "azure"
}

func (s *AzureService) endpoint(path string) string {
	base := s.baseURL
	if base == "" {
		base = fmt.Sprintf(azureEndpointTemplate, s.region)
	}
	return base + path
}

// Synthesize converts text to audio using the Azure Speech REST API.
// The request body is an SSML document carrying voice, rate and pitch.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy Service interface
func (s *AzureService) Synthesize(
	ctx context.Context, text string, config SynthesisConfig,
) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// Use config voice or default
	voice := config.Voice
	if voice == "" {
		voice = azureDefaultVoice
	}

	// Language falls back to the voice's locale prefix
	lang := config.Language
	if lang == "" {
		lang = voiceLocale(voice)
	}

	ssml, err := buildSSML(text, voice, lang, config.Speed, config.Pitch)
	if err != nil {
		return nil, fmt.Errorf("failed to build ssml: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.endpoint(azureSynthesizePath),
		strings.NewReader(ssml),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", s.mapFormat(config.Format))
	req.Header.Set("User-Agent", "audiopress")

	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewSynthesisError("azure", "", "request failed", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, s.handleError(resp)
	}

	return resp.Body, nil
}

// authorize applies either the AD token or the subscription key header.
func (s *AzureService) authorize(ctx context.Context, req *http.Request) error {
	if s.authorizer != nil {
		if err := s.authorizer.Apply(ctx, req); err != nil {
			return NewSynthesisError("azure", "", "failed to apply credential", err, false)
		}
		return nil
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", s.subscriptionKey)
	return nil
}

// buildSSML renders the SSML document for one synthesis request.
func buildSSML(text, voice, lang string, speed, pitch float64) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'>",
		lang, lang, voice)

	withProsody := (speed != 0 && speed != 1.0) || pitch != 0
	if withProsody {
		if speed == 0 {
			speed = 1.0
		}
		ratePct := int((speed - 1.0) * 100)
		fmt.Fprintf(&b, "<prosody rate='%+d%%' pitch='%+dst'>", ratePct, int(pitch))
	}

	if err := xml.EscapeText(&b, []byte(text)); err != nil {
		return "", err
	}

	if withProsody {
		b.WriteString("</prosody>")
	}
	b.WriteString("</voice></speak>")

	return b.String(), nil
}

// voiceLocale extracts the locale prefix from an Azure voice name,
// e.g. "en-US-JennyNeural" yields "en-US".
func voiceLocale(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

// mapFormat converts AudioFormat to an Azure output format identifier.
func (s *AzureService) mapFormat(format AudioFormat) string {
	switch format.Name {
	case "wav":
		return azureFormatWAV
	case "pcm":
		return azureFormatPCM
	case "opus":
		return azureFormatOpus
	default:
		return azureFormatMP3
	}
}

// handleError processes an error response from Azure Speech.
// Azure error bodies are plain text or empty, not JSON.
func (s *AzureService) handleError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, azureErrorBodyLimit))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= azureServerErrorThreshold

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = fmt.Errorf("invalid subscription key or token")
	case http.StatusBadRequest:
		cause = fmt.Errorf("bad request")
	}

	return NewSynthesisError("azure", fmt.Sprintf("%d", resp.StatusCode), message, cause, retryable)
}

// CheckAccess verifies credentials with a voices listing call.
func (s *AzureService) CheckAccess(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(azureVoicesPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewSynthesisError("azure", "", "request failed", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleError(resp)
	}

	return io.ReadAll(resp.Body)
}

// SupportedVoices returns a sample of Azure neural voices.
// The full catalog is served by the voices list endpoint.
func (s *AzureService) SupportedVoices() []Voice {
	return []Voice{
		{
			ID:          "en-US-JennyNeural",
			Name:        "Jenny",
			Language:    "en-US",
			Gender:      "female",
			Description: "Conversational, friendly",
		},
		{
			ID:          "en-US-GuyNeural",
			Name:        "Guy",
			Language:    "en-US",
			Gender:      "male",
			Description: "Conversational, clear",
		},
		{
			ID:          "en-US-AriaNeural",
			Name:        "Aria",
			Language:    "en-US",
			Gender:      "female",
			Description: "News and narration",
		},
		{
			ID:          "en-US-DavisNeural",
			Name:        "Davis",
			Language:    "en-US",
			Gender:      "male",
			Description: "Calm, professional",
		},
		{
			ID:          "en-GB-SoniaNeural",
			Name:        "Sonia",
			Language:    "en-GB",
			Gender:      "female",
			Description: "British, warm",
		},
		{
			ID:          "en-GB-RyanNeural",
			Name:        "Ryan",
			Language:    "en-GB",
			Gender:      "male",
			Description: "British, narrative",
		},
		{
			ID:          "de-DE-KatjaNeural",
			Name:        "Katja",
			Language:    "de-DE",
			Gender:      "female",
			Description: "German, standard",
		},
		{
			ID:          "es-ES-ElviraNeural",
			Name:        "Elvira",
			Language:    "es-ES",
			Gender:      "female",
			Description: "Spanish, standard",
		},
		{
			ID:          "fr-FR-DeniseNeural",
			Name:        "Denise",
			Language:    "fr-FR",
			Gender:      "female",
			Description: "French, standard",
		},
		{
			ID:          "ja-JP-NanamiNeural",
			Name:        "Nanami",
			Language:    "ja-JP",
			Gender:      "female",
			Description: "Japanese, standard",
		},
	}
}

// SupportedFormats returns audio formats supported by Azure Speech.
func (s *AzureService) SupportedFormats() []AudioFormat {
	return []AudioFormat{
		FormatMP3,
		FormatWAV,
		FormatPCM16,
		FormatOpus,
	}
}
