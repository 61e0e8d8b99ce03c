package schema

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Type defines the contract for field validation.
// Implementations determine how values are validated against a type and how
// the type is described to a Processor that supports structured output.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
	// Describe returns a JSON-schema fragment for this type.
	Describe() map[string]any
}

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

func (t *StringType) Describe() map[string]any { return map[string]any{"type": "string"} }

// IntType validates integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// JSON numbers decode as float64; accept whole numbers.
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

func (t *IntType) Describe() map[string]any { return map[string]any{"type": "integer"} }

// FloatType validates floating-point values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

func (t *FloatType) Describe() map[string]any { return map[string]any{"type": "number"} }

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

func (t *BoolType) Describe() map[string]any { return map[string]any{"type": "boolean"} }

// SliceType validates slices of a specific element type.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (t *SliceType) Describe() map[string]any {
	return map[string]any{"type": "array", "items": t.elemType.Describe()}
}

// EnumType accepts exactly one string out of a fixed, ordered set of labels.
type EnumType struct {
	choices []string
}

func (t *EnumType) Name() string {
	return fmt.Sprintf("enum(%s)", strings.Join(t.choices, "|"))
}

func (t *EnumType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected one of %v, got %T", t.choices, value)
	}
	if !slices.Contains(t.choices, s) {
		return fmt.Errorf("label %q is not one of %v", s, t.choices)
	}
	return nil
}

func (t *EnumType) Describe() map[string]any {
	return map[string]any{"type": "string", "enum": slices.Clone(t.choices)}
}

// Choices returns a copy of the allowed labels, in declaration order.
func (t *EnumType) Choices() []string {
	return slices.Clone(t.choices)
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// Enum creates a validator for a non-empty set of distinct labels.
func Enum(choices ...string) (*EnumType, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("enum requires at least one choice")
	}
	seen := make(map[string]bool, len(choices))
	for _, c := range choices {
		if c == "" {
			return nil, fmt.Errorf("enum choices cannot be empty")
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate enum choice %q", c)
		}
		seen[c] = true
	}
	return &EnumType{choices: slices.Clone(choices)}, nil
}
