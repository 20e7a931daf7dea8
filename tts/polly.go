package tts

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"golang.org/x/time/rate"
)

const (
	// Outbound request ceiling (requests per second). Matches the neural
	// engine's SynthesizeSpeech throttle.
	defaultPollyRPS = 8

	// pollyDefaultVoice is the default neural voice.
	pollyDefaultVoice = "Joanna"

	// pollyPCMSampleRate is the sample rate requested for PCM output.
	// Polly PCM supports 8000 and 16000 Hz only.
	pollyPCMSampleRate = "16000"
)

// pollyClient is the subset of the Polly SDK client used by this service.
type pollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput,
		optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput,
		optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// PollyService implements TTS using AWS Polly through the AWS SDK.
// Request signing, retries and endpoint resolution are handled by the SDK.
type PollyService struct {
	client  pollyClient
	engine  pollytypes.Engine
	limiter *rate.Limiter
}

// PollyOption configures the Polly TTS service.
type PollyOption func(*PollyService)

// WithPollyEngine selects the synthesis engine ("standard" or "neural").
func WithPollyEngine(engine string) PollyOption {
	return func(s *PollyService) {
		if engine != "" {
			s.engine = pollytypes.Engine(engine)
		}
	}
}

// WithPollyClient sets a custom Polly client (for testing).
func WithPollyClient(client pollyClient) PollyOption {
	return func(s *PollyService) {
		s.client = client
	}
}

// WithPollyLimiter sets the outbound request limiter.
func WithPollyLimiter(limiter *rate.Limiter) PollyOption {
	return func(s *PollyService) {
		s.limiter = limiter
	}
}

// NewPolly creates an AWS Polly TTS service from an AWS config.
func NewPolly(cfg aws.Config, opts ...PollyOption) *PollyService {
	s := &PollyService{
		client:  polly.NewFromConfig(cfg),
		engine:  pollytypes.EngineNeural,
		limiter: rate.NewLimiter(rate.Limit(defaultPollyRPS), defaultPollyRPS),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *PollyService) Name() string {
	return "polly"
}

// Synthesize converts text to audio using AWS Polly.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy Service interface
func (s *PollyService) Synthesize(
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
		voice = pollyDefaultVoice
	}

	input := &polly.SynthesizeSpeechInput{
		OutputFormat: s.mapFormat(config.Format),
		Text:         aws.String(text),
		VoiceId:      pollytypes.VoiceId(voice),
		Engine:       s.engine,
		TextType:     pollytypes.TextTypeText,
	}

	// Speed runs through SSML prosody; Polly has no plain-text rate control.
	if config.Speed != 0 && config.Speed != 1.0 {
		ssml, err := pollyProsodySSML(text, config.Speed)
		if err != nil {
			return nil, fmt.Errorf("failed to build ssml: %w", err)
		}
		input.Text = aws.String(ssml)
		input.TextType = pollytypes.TextTypeSsml
	}

	if input.OutputFormat == pollytypes.OutputFormatPcm {
		input.SampleRate = aws.String(pollyPCMSampleRate)
	}

	out, err := s.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, s.wrapError(err)
	}

	return out.AudioStream, nil
}

// pollyProsodySSML wraps text in a prosody element carrying the speech rate.
func pollyProsodySSML(text string, speed float64) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<speak><prosody rate='%d%%'>", int(speed*100))

	if err := xml.EscapeText(&b, []byte(text)); err != nil {
		return "", err
	}

	b.WriteString("</prosody></speak>")
	return b.String(), nil
}

// mapFormat converts AudioFormat to a Polly output format.
// Polly PCM is headerless 16-bit little-endian samples.
func (s *PollyService) mapFormat(format AudioFormat) pollytypes.OutputFormat {
	switch format.Name {
	case "pcm", "wav":
		return pollytypes.OutputFormatPcm
	case "ogg", "opus":
		return pollytypes.OutputFormatOggVorbis
	default:
		return pollytypes.OutputFormatMp3
	}
}

// wrapError maps SDK errors to SynthesisError with retry semantics.
func (s *PollyService) wrapError(err error) error {
	var textLen *pollytypes.TextLengthExceededException
	var invalidSSML *pollytypes.InvalidSsmlException
	var serviceFailure *pollytypes.ServiceFailureException

	switch {
	case errors.As(err, &textLen):
		return NewSynthesisError("polly", "TextLengthExceeded", "text length exceeds the Polly limit", err, false)
	case errors.As(err, &invalidSSML):
		return NewSynthesisError("polly", "InvalidSsml", "invalid ssml document", err, false)
	case errors.As(err, &serviceFailure):
		return NewSynthesisError("polly", "ServiceFailure", "polly service failure", err, true)
	default:
		return NewSynthesisError("polly", "", "synthesize speech failed", err, true)
	}
}

// CheckAccess verifies credentials with a voices listing call.
func (s *PollyService) CheckAccess(ctx context.Context) ([]byte, error) {
	out, err := s.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{Engine: s.engine})
	if err != nil {
		return nil, s.wrapError(err)
	}

	return json.Marshal(out)
}

// SupportedVoices returns a sample of Polly voices available on the
// neural engine.
func (s *PollyService) SupportedVoices() []Voice {
	return []Voice{
		{
			ID:          "Joanna",
			Name:        "Joanna",
			Language:    "en-US",
			Gender:      "female",
			Description: "American, natural",
		},
		{
			ID:          "Matthew",
			Name:        "Matthew",
			Language:    "en-US",
			Gender:      "male",
			Description: "American, newscaster",
		},
		{
			ID:          "Ivy",
			Name:        "Ivy",
			Language:    "en-US",
			Gender:      "female",
			Description: "American, child",
		},
		{
			ID:          "Joey",
			Name:        "Joey",
			Language:    "en-US",
			Gender:      "male",
			Description: "American, casual",
		},
		{
			ID:          "Kendra",
			Name:        "Kendra",
			Language:    "en-US",
			Gender:      "female",
			Description: "American, clear",
		},
		{
			ID:          "Kimberly",
			Name:        "Kimberly",
			Language:    "en-US",
			Gender:      "female",
			Description: "American, warm",
		},
		{
			ID:          "Salli",
			Name:        "Salli",
			Language:    "en-US",
			Gender:      "female",
			Description: "American, bright",
		},
		{
			ID:          "Amy",
			Name:        "Amy",
			Language:    "en-GB",
			Gender:      "female",
			Description: "British, clear",
		},
		{
			ID:          "Brian",
			Name:        "Brian",
			Language:    "en-GB",
			Gender:      "male",
			Description: "British, narrative",
		},
		{
			ID:          "Emma",
			Name:        "Emma",
			Language:    "en-GB",
			Gender:      "female",
			Description: "British, soft",
		},
	}
}

// SupportedFormats returns audio formats supported by AWS Polly.
func (s *PollyService) SupportedFormats() []AudioFormat {
	return []AudioFormat{
		FormatMP3,
		{
			Name:       "ogg",
			MIMEType:   "audio/ogg",
			SampleRate: sampleRateDefault,
			BitDepth:   0,
			Channels:   1,
		},
		{
			Name:       "pcm",
			MIMEType:   "audio/pcm",
			SampleRate: 16000,
			BitDepth:   bitDepthDefault,
			Channels:   1,
		},
	}
}
