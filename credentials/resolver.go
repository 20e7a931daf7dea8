package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Platform auth constants.
const (
	PlatformAzureAD           = "azure_ad"
	PlatformGCPADC            = "gcp_adc"
	PlatformGCPServiceAccount = "gcp_service_account"
)

// DefaultEnvVars maps provider names to their conventional environment
// variable names, checked when no explicit credential is configured.
var DefaultEnvVars = map[string][]string{
	"azure":      {"AZURE_SPEECH_KEY", "AZURE_TTS_KEY"},
	"google":     {"GOOGLE_API_KEY", "GOOGLE_TTS_API_KEY"},
	"openai":     {"OPENAI_API_KEY", "OPENAI_TOKEN"},
	"elevenlabs": {"ELEVENLABS_API_KEY", "XI_API_KEY"},
	"buzzsprout": {"BUZZSPROUT_API_TOKEN"},
}

// ProviderHeaderConfig maps provider names to their API key header shape.
var ProviderHeaderConfig = map[string]struct {
	HeaderName string
	Prefix     string
}{
	"azure":      {HeaderName: "Ocp-Apim-Subscription-Key", Prefix: ""},
	"google":     {HeaderName: "", Prefix: ""}, // key travels as a query parameter
	"openai":     {HeaderName: "Authorization", Prefix: "Bearer "},
	"elevenlabs": {HeaderName: "xi-api-key", Prefix: ""},
	"buzzsprout": {HeaderName: "Authorization", Prefix: "Token token="},
}

// Spec is the explicit credential configuration for one provider.
type Spec struct {
	// APIKey is the explicit key value.
	APIKey string

	// CredentialFile is a file holding the key (first line, trimmed).
	CredentialFile string

	// CredentialEnv names an environment variable holding the key.
	CredentialEnv string
}

// ResolverConfig holds configuration for credential resolution.
type ResolverConfig struct {
	// Provider is the provider name (azure, google, polly, openai, elevenlabs, buzzsprout).
	Provider string

	// Spec is the explicit credential configuration, may be nil.
	Spec *Spec

	// Platform selects token-based platform auth instead of an API key:
	// azure_ad, gcp_adc, or gcp_service_account.
	Platform string

	// ConfigDir is the base directory for resolving relative credential file paths.
	ConfigDir string
}

// Resolve resolves credentials according to the chain:
// 1. api_key (explicit value)
// 2. credential_file (read from file)
// 3. credential_env (read from named environment variable)
// 4. conventional env vars for the provider
//
// When Platform is set, the matching cloud credential type is returned
// instead; it uses the respective SDK's default credential chain.
func Resolve(ctx context.Context, cfg ResolverConfig) (Credential, error) {
	if cfg.Platform != "" {
		return resolvePlatformCredential(ctx, cfg)
	}
	return resolveAPIKeyCredential(cfg)
}

// resolveAPIKeyCredential resolves API key credentials from the chain.
func resolveAPIKeyCredential(cfg ResolverConfig) (Credential, error) {
	apiKey, err := findAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	// No key anywhere in the chain: the provider is inactive.
	if apiKey == "" {
		return &NoOpCredential{}, nil
	}

	return createAPIKeyCredential(apiKey, cfg.Provider), nil
}

// findAPIKey searches for an API key in the resolution chain.
func findAPIKey(cfg ResolverConfig) (string, error) {
	// 1. Try explicit api_key
	if cfg.Spec != nil && cfg.Spec.APIKey != "" {
		return cfg.Spec.APIKey, nil
	}

	// 2. Try credential_file
	if cfg.Spec != nil && cfg.Spec.CredentialFile != "" {
		key, err := readCredentialFile(cfg.Spec.CredentialFile, cfg.ConfigDir)
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		return key, nil
	}

	// 3. Try credential_env
	if cfg.Spec != nil && cfg.Spec.CredentialEnv != "" {
		key := os.Getenv(cfg.Spec.CredentialEnv)
		if key == "" {
			return "", fmt.Errorf("environment variable %s is not set", cfg.Spec.CredentialEnv)
		}
		return key, nil
	}

	// 4. Try conventional env vars for the provider
	return findDefaultEnvKey(cfg.Provider), nil
}

// findDefaultEnvKey looks for API keys in the conventional environment variables.
func findDefaultEnvKey(provider string) string {
	defaultVars, ok := DefaultEnvVars[provider]
	if !ok {
		return ""
	}
	for _, envVar := range defaultVars {
		if key := os.Getenv(envVar); key != "" {
			return key
		}
	}
	return ""
}

// createAPIKeyCredential creates an API key credential in the provider's header shape.
func createAPIKeyCredential(apiKey, provider string) *APIKeyCredential {
	headerCfg, ok := ProviderHeaderConfig[provider]
	if !ok {
		// Default to Bearer token in Authorization header
		headerCfg = struct {
			HeaderName string
			Prefix     string
		}{HeaderName: "Authorization", Prefix: "Bearer "}
	}

	return NewAPIKeyCredential(apiKey,
		WithHeaderName(headerCfg.HeaderName),
		WithPrefix(headerCfg.Prefix),
	)
}

// readCredentialFile reads an API key from a file.
func readCredentialFile(path, configDir string) (string, error) {
	// Handle relative paths
	if !strings.HasPrefix(path, "/") && configDir != "" {
		path = configDir + "/" + path
	}

	//nolint:gosec // G304: File path is from trusted configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	// Trim whitespace and newlines
	return strings.TrimSpace(string(data)), nil
}

// Active reports whether the credential chain resolves for a provider.
// A provider with no resolvable credential is skipped by provider selection.
func Active(cfg ResolverConfig) bool {
	if cfg.Platform != "" {
		return true
	}

	// Polly rides the AWS chain rather than a single API key.
	if cfg.Provider == "polly" {
		return awsChainPresent(cfg.Spec)
	}

	// Google accepts a service-account file in place of an API key.
	if cfg.Provider == "google" && cfg.Spec != nil && cfg.Spec.CredentialFile != "" {
		return true
	}
	if cfg.Provider == "google" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		return true
	}

	key, err := findAPIKey(cfg)
	return err == nil && key != ""
}

// awsChainPresent reports whether any AWS credential source is configured.
func awsChainPresent(spec *Spec) bool {
	if spec != nil && spec.APIKey != "" {
		return true
	}
	for _, envVar := range []string{"AWS_ACCESS_KEY_ID", "AWS_PROFILE", "AWS_ROLE_ARN", "AWS_WEB_IDENTITY_TOKEN_FILE"} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// MustResolve resolves credentials and panics on error.
// Use this only in initialization code where errors are unrecoverable.
func MustResolve(ctx context.Context, cfg ResolverConfig) Credential {
	cred, err := Resolve(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve credentials: %v", err))
	}
	return cred
}
