package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AudioPress/audiopress/logger"
)

// ErrNotFound indicates no profile is registered under the name.
var ErrNotFound = errors.New("voice profile not found")

// Registry holds parsed voice profiles keyed by manifest name.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*VoiceProfile
}

// NewRegistry creates an empty profile registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]*VoiceProfile),
	}
}

// Register adds a profile, replacing any existing one with the same
// name.
func (r *Registry) Register(profile *VoiceProfile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if profile.Name() == "" {
		return errors.New("profile is missing metadata.name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Name()] = profile

	return nil
}

// Get retrieves a profile by name.
func (r *Registry) Get(name string) (*VoiceProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return profile, nil
}

// List returns the registered profile names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadDir walks dir and registers every .yaml/.yml manifest found.
// Returns the number of profiles loaded. A manifest that fails to
// parse aborts the load with the file path in the error.
func (r *Registry) LoadDir(dir string) (int, error) {
	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read profile %s: %w", path, err)
		}
		profile, err := Parse(data)
		if err != nil {
			return fmt.Errorf("invalid profile %s: %w", path, err)
		}
		if err := r.Register(profile); err != nil {
			return fmt.Errorf("failed to register profile %s: %w", path, err)
		}

		loaded++
		logger.Debug("Loaded voice profile",
			"name", profile.Name(),
			"provider", profile.Spec.Provider,
			"voice", profile.Spec.VoiceID)
		return nil
	})
	if err != nil {
		return loaded, err
	}

	return loaded, nil
}
