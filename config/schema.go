package config

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AudioPress/audiopress/schema"
)

//go:embed config.schema.json
var embeddedSchema string

// Validate checks the settings tree against the embedded JSON Schema.
func (m *Manager) Validate() (*schema.ValidationResult, error) {
	m.mu.RLock()
	data, err := json.Marshal(m.tree)
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	loader := gojsonschema.NewStringLoader(embeddedSchema)
	return schema.ValidateJSONAgainstLoader(data, loader)
}
