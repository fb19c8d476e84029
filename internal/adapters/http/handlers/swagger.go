package handlers

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var apiDocument []byte

// GetSwagger parses and validates the embedded API document.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()

	swagger, err := loader.LoadFromData(apiDocument)
	if err != nil {
		return nil, fmt.Errorf("error loading API document: %w", err)
	}

	if err := swagger.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid API document: %w", err)
	}

	return swagger, nil
}
