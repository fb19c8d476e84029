package domain

import (
	"encoding/json"
	"reflect"
	"strings"
)

type (
	// Object is anything the mapper can persist. Implementations use pointer
	// receivers so the mapper can assign identity on save.
	Object interface {
		ObjectID() string
		SetObjectID(id string)
	}

	// Collector overrides the collection an object is stored in.
	Collector interface {
		CollectionName() string
	}

	// SchemaNamer overrides the name an object's schema is registered under.
	SchemaNamer interface {
		SchemaName() string
	}

	// SchemaProvider supplies the JSON schema used when none is registered.
	SchemaProvider interface {
		ValidationSchema() json.RawMessage
	}

	// PayloadProvider narrows validation to part of an object.
	PayloadProvider interface {
		ValidationPayload() any
	}

	// ValidationErrorSetter receives the reason an object failed validation.
	ValidationErrorSetter interface {
		SetValidationError(err error)
	}
)

// CollectionName resolves where obj is stored: a string is taken verbatim,
// a Collector names itself, anything else uses its lower-cased type name.
func CollectionName(obj any) string {
	if name, ok := obj.(string); ok {
		return name
	}

	if c, ok := obj.(Collector); ok {
		if name := c.CollectionName(); name != "" {
			return name
		}
	}

	return strings.ToLower(TypeName(obj))
}

// TypeName returns the name of obj's type, dereferencing pointers.
func TypeName(obj any) string {
	t := reflect.TypeOf(obj)
	if t == nil {
		return ""
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.Name()
}
