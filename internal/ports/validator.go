package ports

import "encoding/json"

// Validator checks values against cached JSON schemas.
type Validator interface {
	// IsValid reports whether obj matches its schema. The failure is handed
	// to obj when it accepts validation errors.
	IsValid(obj any) bool

	// Validate is IsValid returning the violation.
	Validate(obj any) error

	// AddSchema registers raw under name, replacing any previous schema.
	AddSchema(name string, raw json.RawMessage) error
}
