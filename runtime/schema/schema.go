package schema

import (
	_ "embed"

	"github.com/xeipuuv/gojsonschema"
)

// Schema validates JSON documents against a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

func (s *Schema) Validate(data []byte) (*gojsonschema.Result, error) {
	return s.schema.Validate(gojsonschema.NewBytesLoader(data))
}

func load(raw []byte) (*Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}

	return &Schema{schema: schema}, nil
}

//go:embed request.json
var request []byte

// NewRequestSchema returns the schema of run request bodies.
func NewRequestSchema() (*Schema, error) {
	return load(request)
}

//go:embed response.json
var response []byte

// NewResponseSchema returns the schema of run response bodies.
func NewResponseSchema() (*Schema, error) {
	return load(response)
}
