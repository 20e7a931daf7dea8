package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/metrics/prometheus"
	"github.com/AudioPress/audiopress/tts"
)

// ValidationResult reports the outcome of a provider credential check.
type ValidationResult struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Detail   string `json:"detail,omitempty"`
}

// accessChecks maps each provider to the JMESPath expression that
// proves its voice/model listing came back non-empty. The shapes differ
// per vendor: Azure returns a bare array, Polly a Voices envelope, the
// rest a lowercase collection field.
var accessChecks = map[string]string{
	tts.ProviderAzure:      "length(@)",
	tts.ProviderGoogle:     "length(voices)",
	tts.ProviderPolly:      "length(Voices)",
	tts.ProviderOpenAI:     "length(data)",
	tts.ProviderElevenLabs: "length(voices)",
}

// ValidateProvider verifies the named provider's credentials by calling
// its cheapest authenticated listing endpoint and checking the response
// carries at least one voice or model.
func (e *Engine) ValidateProvider(ctx context.Context, name string) (*ValidationResult, error) {
	svc, ok := e.providers.Get(name)
	if !ok {
		return nil, &tts.UnsupportedProviderError{Provider: name}
	}

	checker, ok := svc.(tts.AccessChecker)
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, ErrValidationUnsupported)
	}

	ctx = logger.WithProvider(ctx, name)

	result := &ValidationResult{Provider: name}
	defer func() {
		prometheus.SetProviderHealth(name, result.OK)
	}()

	body, err := checker.CheckAccess(ctx)
	if err != nil {
		result.Detail = logger.RedactSensitiveData(err.Error())
		logger.WarnContext(ctx, "Provider validation failed", "error", err)
		return result, nil
	}

	expr, ok := accessChecks[name]
	if !ok {
		// No shape check registered: a successful authenticated call is
		// enough.
		result.OK = true
		return result, nil
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		result.Detail = "unparseable validation response"
		logger.WarnContext(ctx, "Provider validation response is not JSON", "error", err)
		return result, nil
	}

	value, err := jmespath.Search(expr, parsed)
	if err != nil {
		result.Detail = "validation response shape check failed"
		logger.WarnContext(ctx, "Provider validation shape check failed", "error", err)
		return result, nil
	}

	count, ok := value.(float64)
	if !ok || count <= 0 {
		result.Detail = "provider returned no voices"
		return result, nil
	}

	result.OK = true
	logger.InfoContext(ctx, "Provider validated", "voices", int(count))
	return result, nil
}
