package schema

import (
	"strings"
	"testing"

	"github.com/xeipuuv/gojsonschema"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"count": {"type": "integer", "minimum": 0}
	},
	"required": ["name"]
}`

func TestValidateJSONAgainstLoader_Valid(t *testing.T) {
	loader := gojsonschema.NewStringLoader(testSchema)

	result, err := ValidateJSONAgainstLoader([]byte(`{"name": "intro", "count": 3}`), loader)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Valid {
		t.Errorf("Expected valid document, got errors: %v", result.Errors)
	}
	if result.FirstError() != nil {
		t.Errorf("Expected nil FirstError for valid document, got %v", result.FirstError())
	}
}

func TestValidateJSONAgainstLoader_MissingRequired(t *testing.T) {
	loader := gojsonschema.NewStringLoader(testSchema)

	result, err := ValidateJSONAgainstLoader([]byte(`{"count": 3}`), loader)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("Expected invalid document")
	}
	if len(result.Errors) == 0 {
		t.Fatal("Expected validation errors")
	}
	if result.FirstError() == nil {
		t.Error("Expected FirstError for invalid document")
	}
	if !strings.Contains(result.Errors[0].Description, "required") {
		t.Errorf("Expected required-field error, got: %s", result.Errors[0].Description)
	}
}

func TestValidateJSONAgainstLoader_WrongType(t *testing.T) {
	loader := gojsonschema.NewStringLoader(testSchema)

	result, err := ValidateJSONAgainstLoader([]byte(`{"name": "intro", "count": -1}`), loader)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("Expected invalid document")
	}
}

func TestValidateJSONAgainstLoader_MalformedJSON(t *testing.T) {
	loader := gojsonschema.NewStringLoader(testSchema)

	if _, err := ValidateJSONAgainstLoader([]byte(`{not json`), loader); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestValidationError_Error(t *testing.T) {
	withValue := ValidationError{Field: "count", Description: "must be >= 0", Value: -1}
	if !strings.Contains(withValue.Error(), "count") || !strings.Contains(withValue.Error(), "-1") {
		t.Errorf("Unexpected error string: %s", withValue.Error())
	}

	withoutValue := ValidationError{Field: "name", Description: "is required"}
	if withoutValue.Error() != "name: is required" {
		t.Errorf("Unexpected error string: %s", withoutValue.Error())
	}
}
