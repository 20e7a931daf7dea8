package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	googleBaseURL        = "https://texttospeech.googleapis.com/v1"
	googleSynthesizePath = "/text:synthesize"
	googleVoicesPath     = "/voices"

	// Default timeout for Google TTS requests.
	defaultGoogleTimeout = 30 * time.Second

	// Outbound request ceiling (requests per second).
	defaultGoogleRPS = 15

	// HTTP status code threshold for server errors.
	googleServerErrorThreshold = 500

	// googleDefaultVoice is the default neural voice.
	googleDefaultVoice = "en-US-Neural2-C"

	// Google audio encodings.
	googleEncodingMP3      = "MP3"
	googleEncodingLinear16 = "LINEAR16"
	googleEncodingOggOpus  = "OGG_OPUS"
)

// GoogleService implements TTS using the Google Cloud Text-to-Speech REST API.
// Authentication is an API key passed as a query parameter, or an OAuth2
// bearer token when a RequestAuthorizer is configured.
type GoogleService struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	authorizer RequestAuthorizer
	limiter    *rate.Limiter
}

// GoogleOption configures the Google TTS service.
type GoogleOption func(*GoogleService)

// WithGoogleBaseURL sets a custom base URL (for testing or proxies).
func WithGoogleBaseURL(url string) GoogleOption {
	return func(s *GoogleService) {
		s.baseURL = url
	}
}

// WithGoogleClient sets a custom HTTP client.
func WithGoogleClient(client *http.Client) GoogleOption {
	return func(s *GoogleService) {
		s.client = client
	}
}

// WithGoogleAuthorizer sets an OAuth2 token authorizer.
// When set, the API key query parameter is not sent.
func WithGoogleAuthorizer(authorizer RequestAuthorizer) GoogleOption {
	return func(s *GoogleService) {
		s.authorizer = authorizer
	}
}

// WithGoogleLimiter sets the outbound request limiter.
func WithGoogleLimiter(limiter *rate.Limiter) GoogleOption {
	return func(s *GoogleService) {
		s.limiter = limiter
	}
}

// NewGoogle creates a Google Cloud TTS service.
func NewGoogle(apiKey string, opts ...GoogleOption) *GoogleService {
	s := &GoogleService{
		apiKey:  apiKey,
		baseURL: googleBaseURL,
		client:  &http.Client{Timeout: defaultGoogleTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultGoogleRPS), defaultGoogleRPS),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *GoogleService) Name() string {
	return "google"
}

// requestURL builds a request URL, appending the API key when no
// authorizer is configured.
func (s *GoogleService) requestURL(path string, params url.Values) string {
	if s.authorizer == nil && s.apiKey != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set("key", s.apiKey)
	}

	u := s.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// googleSynthesizeRequest is the request body for text:synthesize.
type googleSynthesizeRequest struct {
	Input       googleSynthesisInput `json:"input"`
	Voice       googleVoiceSelection `json:"voice"`
	AudioConfig googleAudioConfig    `json:"audioConfig"`
}

type googleSynthesisInput struct {
	Text string `json:"text"`
}

type googleVoiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	Pitch           float64 `json:"pitch,omitempty"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
}

// googleSynthesizeResponse carries the synthesized audio as base64.
type googleSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize converts text to audio using the Google Cloud TTS API.
// The response carries the complete audio as base64, decoded here.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy Service interface
func (s *GoogleService) Synthesize(
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
		voice = googleDefaultVoice
	}

	// Language falls back to the voice's locale prefix
	lang := config.Language
	if lang == "" {
		lang = voiceLocale(voice)
	}

	reqBody := googleSynthesizeRequest{
		Input: googleSynthesisInput{Text: text},
		Voice: googleVoiceSelection{
			LanguageCode: lang,
			Name:         voice,
		},
		AudioConfig: googleAudioConfig{
			AudioEncoding: s.mapFormat(config.Format),
			SpeakingRate:  config.Speed,
			Pitch:         config.Pitch,
		},
	}

	if reqBody.AudioConfig.AudioEncoding == googleEncodingLinear16 && config.Format.SampleRate > 0 {
		reqBody.AudioConfig.SampleRateHertz = config.Format.SampleRate
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.requestURL(googleSynthesizePath, nil),
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if s.authorizer != nil {
		if err := s.authorizer.Apply(ctx, req); err != nil {
			return nil, NewSynthesisError("google", "", "failed to apply credential", err, false)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewSynthesisError("google", "", "request failed", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleError(resp)
	}

	var synthResp googleSynthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&synthResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if synthResp.AudioContent == "" {
		return nil, NewSynthesisError("google", "", "empty audio content", ErrSynthesisFailed, false)
	}

	audio, err := base64.StdEncoding.DecodeString(synthResp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}

	return io.NopCloser(bytes.NewReader(audio)), nil
}

// mapFormat converts AudioFormat to a Google audio encoding.
// LINEAR16 responses carry a WAV header.
func (s *GoogleService) mapFormat(format AudioFormat) string {
	switch format.Name {
	case "wav", "pcm":
		return googleEncodingLinear16
	case "opus":
		return googleEncodingOggOpus
	default:
		return googleEncodingMP3
	}
}

// googleErrorResponse represents an error response from Google.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// handleError processes an error response from Google.
func (s *GoogleService) handleError(resp *http.Response) error {
	var errResp googleErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return NewSynthesisError(
			"google",
			fmt.Sprintf("%d", resp.StatusCode),
			"unknown error",
			err,
			resp.StatusCode >= googleServerErrorThreshold,
		)
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= googleServerErrorThreshold

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = fmt.Errorf("invalid API key or token")
	case http.StatusBadRequest:
		cause = fmt.Errorf("bad request")
	}

	return NewSynthesisError(
		"google",
		errResp.Error.Status,
		errResp.Error.Message,
		cause,
		retryable,
	)
}

// CheckAccess verifies credentials with a voices listing call.
func (s *GoogleService) CheckAccess(ctx context.Context) ([]byte, error) {
	params := url.Values{}
	params.Set("languageCode", "en-US")

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		s.requestURL(googleVoicesPath, params),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if s.authorizer != nil {
		if err := s.authorizer.Apply(ctx, req); err != nil {
			return nil, NewSynthesisError("google", "", "failed to apply credential", err, false)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewSynthesisError("google", "", "request failed", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleError(resp)
	}

	return io.ReadAll(resp.Body)
}

// SupportedVoices returns a sample of Google Cloud voices.
// The full catalog is served by the voices endpoint.
func (s *GoogleService) SupportedVoices() []Voice {
	return []Voice{
		{
			ID:          "en-US-Neural2-A",
			Name:        "Neural2 A",
			Language:    "en-US",
			Gender:      "male",
			Description: "Neural, conversational",
		},
		{
			ID:          "en-US-Neural2-C",
			Name:        "Neural2 C",
			Language:    "en-US",
			Gender:      "female",
			Description: "Neural, conversational",
		},
		{
			ID:          "en-US-Neural2-F",
			Name:        "Neural2 F",
			Language:    "en-US",
			Gender:      "female",
			Description: "Neural, narration",
		},
		{
			ID:          "en-US-Wavenet-D",
			Name:        "Wavenet D",
			Language:    "en-US",
			Gender:      "male",
			Description: "Wavenet, deep",
		},
		{
			ID:          "en-GB-Neural2-A",
			Name:        "Neural2 A (British)",
			Language:    "en-GB",
			Gender:      "female",
			Description: "Neural, British accent",
		},
		{
			ID:          "de-DE-Neural2-B",
			Name:        "Neural2 B (German)",
			Language:    "de-DE",
			Gender:      "male",
			Description: "Neural, German",
		},
		{
			ID:          "es-ES-Neural2-A",
			Name:        "Neural2 A (Spanish)",
			Language:    "es-ES",
			Gender:      "female",
			Description: "Neural, Spanish",
		},
		{
			ID:          "fr-FR-Neural2-A",
			Name:        "Neural2 A (French)",
			Language:    "fr-FR",
			Gender:      "female",
			Description: "Neural, French",
		},
	}
}

// SupportedFormats returns audio formats supported by Google Cloud TTS.
func (s *GoogleService) SupportedFormats() []AudioFormat {
	return []AudioFormat{
		FormatMP3,
		FormatWAV,
		FormatOpus,
	}
}
