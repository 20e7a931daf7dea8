package tts

import (
	"errors"
	"sync"
)

// SelectionMode controls how a provider is chosen per request.
type SelectionMode string

const (
	// SelectDefault picks the configured default provider, falling back to
	// the first active provider when the default has no credentials.
	SelectDefault SelectionMode = "default"

	// SelectRoundRobin rotates across active providers.
	SelectRoundRobin SelectionMode = "round_robin"
)

// ErrNoActiveProvider is returned when no provider has usable credentials.
var ErrNoActiveProvider = errors.New("no active TTS provider")

// ActiveFunc reports whether a provider's credentials resolve.
type ActiveFunc func(name string) bool

// Selector picks a TTS provider per generation request.
// A provider is active when its credential chain resolves; inactive
// providers are never selected.
type Selector struct {
	mu          sync.Mutex
	mode        SelectionMode
	defaultName string
	order       []string
	active      ActiveFunc
	next        int
}

// NewSelector creates a Selector over the given provider order.
// An empty order uses DefaultProviderOrder; a nil active function treats
// every provider as active.
func NewSelector(mode SelectionMode, defaultName string, order []string, active ActiveFunc) *Selector {
	if mode == "" {
		mode = SelectDefault
	}
	if len(order) == 0 {
		order = DefaultProviderOrder
	}

	return &Selector{
		mode:        mode,
		defaultName: defaultName,
		order:       append([]string(nil), order...),
		active:      active,
	}
}

// Select returns the provider to use for one request. A non-empty override
// wins when that provider is active; otherwise selection follows the
// configured mode.
func (s *Selector) Select(override string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if override != "" && s.isActive(override) {
		return override, nil
	}

	active := s.activeProviders()
	if len(active) == 0 {
		return "", ErrNoActiveProvider
	}

	if s.mode == SelectRoundRobin {
		name := active[s.next%len(active)]
		s.next++
		return name, nil
	}

	if s.defaultName != "" && s.isActive(s.defaultName) {
		return s.defaultName, nil
	}

	return active[0], nil
}

// ActiveProviders returns the providers whose credentials resolve,
// in selection order.
func (s *Selector) ActiveProviders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProviders()
}

// Mode returns the configured selection mode.
func (s *Selector) Mode() SelectionMode {
	return s.mode
}

func (s *Selector) activeProviders() []string {
	var active []string
	for _, name := range s.order {
		if s.isActive(name) {
			active = append(active, name)
		}
	}
	return active
}

func (s *Selector) isActive(name string) bool {
	if s.active == nil {
		return true
	}
	return s.active(name)
}
