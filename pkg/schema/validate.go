package schema

import (
	"maps"
	"slices"
)

// Schema is a map of field names to their expected types.
// Example: {"decision": enum, "confidence": Float(), "ideas": Slice(String())}
type Schema map[string]Type

// Fields returns the field names in sorted order.
func (s Schema) Fields() []string {
	return slices.Sorted(maps.Keys(s))
}

// Describe returns a JSON-schema object descriptor. Every field is required
// and no additional properties are allowed.
func (s Schema) Describe() map[string]any {
	props := make(map[string]any, len(s))
	for name, typ := range s {
		props[name] = typ.Describe()
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             s.Fields(),
		"additionalProperties": false,
	}
}

// Validate checks if data conforms to the schema.
// Returns an AggregateError with all validation failures found, in field order.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	return ValidateFields(schema, data, schema.Fields()...)
}

// ValidateFields validates only specific fields from data against the schema.
// Missing fields are treated as an error.
func ValidateFields(schema Schema, data map[string]any, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	var errs []error
	for _, fieldName := range fields {
		fieldType, exists := schema[fieldName]
		if !exists {
			errs = append(errs, &ValidationError{Key: fieldName, Reason: "not defined in schema"})
			continue
		}

		value, fieldExists := data[fieldName]
		if !fieldExists {
			errs = append(errs, &ValidationError{Key: fieldName, Reason: "required"})
			continue
		}

		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
