package protocol

import (
	_ "embed"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/state.schema.json
var stateSchemaJSON string

// StateSchema compiles the embedded schema for the state wire message.
func StateSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("state.schema.json", strings.NewReader(stateSchemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("state.schema.json")
}
