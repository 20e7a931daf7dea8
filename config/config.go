// Package config provides the AudioPress settings document.
//
// Settings live in a nested YAML tree covering providers, storage, defaults,
// cache, rate limiting, player, server, scheduler, events, and telemetry.
// The package implements:
//   - Dot-path accessors (JMESPath evaluation over the merged tree)
//   - Environment overrides (AUDIOPRESS_ prefix, "." becomes "_")
//   - Default-merge: missing keys take package defaults, explicit values win
//   - Atomic write-back to the backing file
//   - Redacted export that never leaks a credential
//   - JSON Schema validation of the whole document
//
// A Manager is safe for concurrent use by multiple goroutines.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmespath/go-jmespath"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment override names. The setting
// providers.azure.api_key is overridden by AUDIOPRESS_PROVIDERS_AZURE_API_KEY.
const EnvPrefix = "AUDIOPRESS_"

// RedactedValue replaces credential values in exported settings.
const RedactedValue = "***REDACTED***"

// secretKeyFragments marks key names whose values are redacted on export.
var secretKeyFragments = []string{
	"api_key",
	"apikey",
	"secret",
	"token",
	"password",
	"access_key",
	"credential",
}

// Manager holds the merged settings tree and guards concurrent access.
type Manager struct {
	mu   sync.RWMutex
	path string
	tree map[string]interface{}
}

// New creates a Manager holding only the package defaults.
func New() *Manager {
	return &Manager{tree: Defaults()}
}

// Load reads a YAML settings file and merges it over the package defaults.
// The file path is remembered for Save.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator, not request input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// Parse builds a Manager from raw YAML merged over the package defaults.
func Parse(data []byte) (*Manager, error) {
	var loaded map[string]interface{}
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	tree := Defaults()
	mergeTree(tree, loaded)
	return &Manager{tree: tree}, nil
}

// mergeTree merges src into dst in place. Nested maps merge recursively;
// everything else in src replaces the dst value.
func mergeTree(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				mergeTree(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

// Path returns the backing file path, empty for in-memory managers.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Get resolves a dot-path against the settings tree. An environment override
// (EnvPrefix + upper-cased path with dots replaced by underscores) wins over
// the file value. The boolean reports whether the path resolved.
func (m *Manager) Get(path string) (interface{}, bool) {
	if v, ok := envOverride(path); ok {
		return v, true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result, err := jmespath.Search(path, m.tree)
	if err != nil || result == nil {
		return nil, false
	}
	return result, true
}

// envOverride looks up the environment variable derived from a dot-path.
func envOverride(path string) (string, bool) {
	name := EnvPrefix + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
	return os.LookupEnv(name)
}

// GetString returns the string at path, or fallback when unset.
// Non-string scalars are formatted.
func (m *Manager) GetString(path, fallback string) string {
	v, ok := m.Get(path)
	if !ok {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// GetBool returns the boolean at path, or fallback when unset or unparseable.
func (m *Manager) GetBool(path string, fallback bool) bool {
	v, ok := m.Get(path)
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// GetInt returns the integer at path, or fallback when unset or unparseable.
func (m *Manager) GetInt(path string, fallback int) int {
	v, ok := m.Get(path)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// GetFloat returns the float at path, or fallback when unset or unparseable.
func (m *Manager) GetFloat(path string, fallback float64) float64 {
	v, ok := m.Get(path)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// GetDuration returns the duration at path, or fallback when unset or
// unparseable. String values use time.ParseDuration; bare numbers are seconds.
func (m *Manager) GetDuration(path string, fallback time.Duration) time.Duration {
	v, ok := m.Get(path)
	if !ok {
		return fallback
	}
	switch d := v.(type) {
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return fallback
		}
		return parsed
	case int:
		return time.Duration(d) * time.Second
	case int64:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	default:
		return fallback
	}
}

// GetStringMap returns the nested map at path, or nil when the path does not
// resolve to a map.
func (m *Manager) GetStringMap(path string) map[string]interface{} {
	v, ok := m.Get(path)
	if !ok {
		return nil
	}
	mp, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	copied, _ := deepCopy(mp).(map[string]interface{})
	return copied
}

// Set writes a value at a dot-path, creating intermediate maps as needed.
// Setting through an existing non-map intermediate is an error.
func (m *Manager) Set(path string, value interface{}) error {
	if path == "" {
		return fmt.Errorf("config path cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.Split(path, ".")
	node := m.tree
	for _, part := range parts[:len(parts)-1] {
		next, exists := node[part]
		if !exists {
			child := make(map[string]interface{})
			node[part] = child
			node = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("config path %q blocked by non-map value at %q", path, part)
		}
		node = child
	}

	node[parts[len(parts)-1]] = value
	return nil
}

// Save writes the settings tree back to the file it was loaded from.
// The write is atomic (temp file + rename).
func (m *Manager) Save() error {
	m.mu.RLock()
	path := m.path
	m.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("config has no backing file")
	}
	return m.SaveTo(path)
}

// SaveTo writes the settings tree to the given path atomically.
func (m *Manager) SaveTo(path string) error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.tree)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to temp file, then rename (atomic on POSIX systems)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Export returns a deep copy of the settings tree with credential values
// redacted. Keys containing api_key, secret, token, password, access_key,
// or credential (case-insensitive) have their non-empty scalar values
// replaced with RedactedValue.
func (m *Manager) Export() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exported, _ := redactTree(m.tree).(map[string]interface{})
	return exported
}

// Snapshot returns an unredacted deep copy of the settings tree.
func (m *Manager) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copied, _ := deepCopy(m.tree).(map[string]interface{})
	return copied
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// redactTree deep-copies a tree node, replacing secret leaf values.
func redactTree(node interface{}) interface{} {
	switch typed := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, val := range typed {
			if isSecretKey(key) {
				if s, ok := val.(string); ok && s != "" {
					out[key] = RedactedValue
					continue
				}
			}
			out[key] = redactTree(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, val := range typed {
			out[i] = redactTree(val)
		}
		return out
	default:
		return typed
	}
}

// deepCopy copies a tree node without redaction.
func deepCopy(node interface{}) interface{} {
	switch typed := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, val := range typed {
			out[key] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, val := range typed {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return typed
	}
}
