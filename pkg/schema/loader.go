package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Validate checks doc against the given schema document and returns the
// flattened findings. A nil slice means the document conforms.
func Validate(schemaJSON string, doc any) ([]string, error) {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	docLoader := gojsonschema.NewGoLoader(doc)
	return run(schemaLoader, docLoader)
}

// ValidateBytes is Validate for documents already serialized as JSON.
func ValidateBytes(schemaJSON string, data []byte) ([]string, error) {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	docLoader := gojsonschema.NewBytesLoader(data)
	return run(schemaLoader, docLoader)
}

func run(schemaLoader, docLoader gojsonschema.JSONLoader) ([]string, error) {
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
