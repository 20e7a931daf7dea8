package tts

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Provider name identifiers.
const (
	ProviderAzure      = "azure"
	ProviderGoogle     = "google"
	ProviderPolly      = "polly"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
)

// DefaultProviderOrder is the stable provider ordering used for selection
// and fallback.
var DefaultProviderOrder = []string{
	ProviderAzure,
	ProviderGoogle,
	ProviderPolly,
	ProviderOpenAI,
	ProviderElevenLabs,
}

// ProviderSpec holds the configuration needed to create a provider instance.
type ProviderSpec struct {
	Name   string
	APIKey string
	Region string
	Model  string
	Engine string

	// BaseURL overrides the vendor endpoint (for testing or proxies).
	BaseURL string

	// Authorizer supplies token auth for Azure AD and GCP OAuth.
	Authorizer RequestAuthorizer

	// AWS carries the resolved SDK configuration for Polly.
	AWS *aws.Config
}

// ServiceFactory is a function that creates a Service from a spec.
type ServiceFactory func(spec ProviderSpec) (Service, error)

var (
	factoryMu        sync.RWMutex
	serviceFactories = map[string]ServiceFactory{}
)

// RegisterServiceFactory registers a factory function for a provider name.
func RegisterServiceFactory(name string, factory ServiceFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	serviceFactories[name] = factory
}

// RegisteredProviders returns the registered provider names, sorted.
func RegisteredProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(serviceFactories))
	for name := range serviceFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateServiceFromSpec creates a provider implementation from a spec.
// Returns an error if the provider name is unsupported.
func CreateServiceFromSpec(spec ProviderSpec) (Service, error) {
	factoryMu.RLock()
	factory, exists := serviceFactories[spec.Name]
	factoryMu.RUnlock()

	if !exists {
		return nil, &UnsupportedProviderError{Provider: spec.Name}
	}

	return factory(spec)
}

// UnsupportedProviderError is returned when a provider name is not recognized.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported TTS provider: " + e.Provider
}

func init() {
	RegisterServiceFactory(ProviderAzure, newAzureFromSpec)
	RegisterServiceFactory(ProviderGoogle, newGoogleFromSpec)
	RegisterServiceFactory(ProviderPolly, newPollyFromSpec)
	RegisterServiceFactory(ProviderOpenAI, newOpenAIFromSpec)
	RegisterServiceFactory(ProviderElevenLabs, newElevenLabsFromSpec)
}

func newAzureFromSpec(spec ProviderSpec) (Service, error) {
	if spec.APIKey == "" && spec.Authorizer == nil {
		return nil, fmt.Errorf("azure: %w", ErrMissingCredentials)
	}

	var opts []AzureOption
	if spec.Authorizer != nil {
		opts = append(opts, WithAzureAuthorizer(spec.Authorizer))
	}
	if spec.BaseURL != "" {
		opts = append(opts, WithAzureBaseURL(spec.BaseURL))
	}

	return NewAzure(spec.APIKey, spec.Region, opts...), nil
}

func newGoogleFromSpec(spec ProviderSpec) (Service, error) {
	if spec.APIKey == "" && spec.Authorizer == nil {
		return nil, fmt.Errorf("google: %w", ErrMissingCredentials)
	}

	var opts []GoogleOption
	if spec.Authorizer != nil {
		opts = append(opts, WithGoogleAuthorizer(spec.Authorizer))
	}
	if spec.BaseURL != "" {
		opts = append(opts, WithGoogleBaseURL(spec.BaseURL))
	}

	return NewGoogle(spec.APIKey, opts...), nil
}

func newPollyFromSpec(spec ProviderSpec) (Service, error) {
	if spec.AWS == nil {
		return nil, fmt.Errorf("polly: %w", ErrMissingCredentials)
	}

	var opts []PollyOption
	if spec.Engine != "" {
		opts = append(opts, WithPollyEngine(spec.Engine))
	}

	return NewPolly(*spec.AWS, opts...), nil
}

func newOpenAIFromSpec(spec ProviderSpec) (Service, error) {
	if spec.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingCredentials)
	}

	var opts []OpenAIOption
	if spec.Model != "" {
		opts = append(opts, WithOpenAIModel(spec.Model))
	}
	if spec.BaseURL != "" {
		opts = append(opts, WithOpenAIBaseURL(spec.BaseURL))
	}

	return NewOpenAI(spec.APIKey, opts...), nil
}

func newElevenLabsFromSpec(spec ProviderSpec) (Service, error) {
	if spec.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: %w", ErrMissingCredentials)
	}

	var opts []ElevenLabsOption
	if spec.Model != "" {
		opts = append(opts, WithElevenLabsModel(spec.Model))
	}
	if spec.BaseURL != "" {
		opts = append(opts, WithElevenLabsBaseURL(spec.BaseURL))
	}

	return NewElevenLabs(spec.APIKey, opts...), nil
}

// Registry holds constructed provider services keyed by name.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *Registry {
	return &Registry{
		services: make(map[string]Service),
	}
}

// Register adds a service to the registry.
func (r *Registry) Register(service Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[service.Name()] = service
}

// Get retrieves a service by provider name.
func (r *Registry) Get(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	service, exists := r.services[name]
	return service, exists
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
