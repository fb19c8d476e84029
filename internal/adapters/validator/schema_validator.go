package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

const schemaFileExt = ".json"

var errUnnamedObject = errors.New("cannot resolve a schema name")

// SchemaValidator checks objects against JSON schemas cached by name. An
// object without a registered schema is validated against the schema it
// provides itself, or accepted when it has none.
type SchemaValidator struct {
	logger infrastructure.Logger

	mu      sync.RWMutex
	schemas map[string]*openapi3.Schema
}

var _ ports.Validator = (*SchemaValidator)(nil)

func NewSchemaValidator(logger infrastructure.Logger) *SchemaValidator {
	return &SchemaValidator{
		logger:  logger.Component("validator"),
		schemas: make(map[string]*openapi3.Schema),
	}
}

// LoadDir registers every *.json file in dir under its base name.
func (v *SchemaValidator) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read schema directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != schemaFileExt {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), schemaFileExt)
		if err := v.AddSchema(name, raw); err != nil {
			return err
		}

		v.logger.Debug().Str("schema", name).Msg("registered schema")
	}

	return nil
}

func (v *SchemaValidator) AddSchema(name string, raw json.RawMessage) error {
	if name == "" {
		return errUnnamedObject
	}

	schema, err := parseSchema(raw)
	if err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}

	v.mu.Lock()
	v.schemas[name] = schema
	v.mu.Unlock()

	return nil
}

func (v *SchemaValidator) IsValid(obj any) bool {
	err := v.Validate(obj)

	if setter, ok := obj.(domain.ValidationErrorSetter); ok {
		setter.SetValidationError(err)
	}

	return err == nil
}

func (v *SchemaValidator) Validate(obj any) error {
	name := schemaName(obj)
	if name == "" {
		return errUnnamedObject
	}

	schema, err := v.schemaFor(name, obj)
	if err != nil {
		return &domain.ValidationError{Schema: name, Cause: err}
	}

	value, err := jsonValue(obj)
	if err != nil {
		return &domain.ValidationError{Schema: name, Cause: err}
	}

	if err := schema.VisitJSON(value); err != nil {
		return &domain.ValidationError{Schema: name, Cause: err}
	}

	return nil
}

// schemaFor returns the cached schema, registering the object's own schema
// or an accept-all schema on first sight.
func (v *SchemaValidator) schemaFor(name string, obj any) (*openapi3.Schema, error) {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()

	if ok {
		return schema, nil
	}

	schema = openapi3.NewSchema()

	if provider, ok := obj.(domain.SchemaProvider); ok {
		if raw := provider.ValidationSchema(); len(raw) > 0 {
			parsed, err := parseSchema(raw)
			if err != nil {
				return nil, err
			}

			schema = parsed
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.schemas[name]; ok {
		return existing, nil
	}

	v.schemas[name] = schema

	return schema, nil
}

func parseSchema(raw json.RawMessage) (*openapi3.Schema, error) {
	schema := openapi3.NewSchema()
	if err := schema.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("invalid schema document: %w", err)
	}

	if err := schema.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	return schema, nil
}

func schemaName(obj any) string {
	if namer, ok := obj.(domain.SchemaNamer); ok {
		if name := namer.SchemaName(); name != "" {
			return name
		}
	}

	return domain.TypeName(obj)
}

// jsonValue converts obj into the generic form the schema visitor expects.
func jsonValue(obj any) (any, error) {
	if provider, ok := obj.(domain.PayloadProvider); ok {
		obj = provider.ValidationPayload()
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode object: %w", err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}

	return value, nil
}
