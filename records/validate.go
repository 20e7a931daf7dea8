package records

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AudioPress/audiopress/schema"
)

//go:embed record.schema.json
var embeddedSchema string

// Validate checks the record against the embedded JSON Schema. Stores
// run this before every save.
func (r *Record) Validate() error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	loader := gojsonschema.NewStringLoader(embeddedSchema)
	result, err := schema.ValidateJSONAgainstLoader(data, loader)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("invalid record for %q: %w", r.ContentID, result.FirstError())
	}
	return nil
}
