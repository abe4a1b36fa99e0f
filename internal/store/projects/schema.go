package projects

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed project.schema.json
var projectSchemaJSON string

var projectSchema = jsonschema.MustCompileString("project.schema.json", projectSchemaJSON)

// ValidateDocument checks a raw project document against the schema
// before anything touches disk. Malformed documents are a caller error,
// never a persistence error.
func ValidateDocument(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := projectSchema.Validate(v); err != nil {
		// The validator's multi-line output is for humans debugging
		// schemas; callers get the first line.
		msg := err.Error()
		if i := strings.IndexByte(msg, '\n'); i > 0 {
			msg = msg[:i]
		}
		return fmt.Errorf("invalid project document: %s", msg)
	}
	return nil
}
