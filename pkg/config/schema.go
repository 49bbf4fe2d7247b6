package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the pipeline description format, for
// editor completion and out-of-band validation of dataset configs.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Pipeline{})
	schema.Title = "dataflow pipeline"
	schema.Description = "Declarative description of a dataflow source and operator chain"
	return json.MarshalIndent(schema, "", "  ")
}
