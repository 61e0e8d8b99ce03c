package schema

import (
	"testing"
)

func TestPrimitiveTypes(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		value   any
		wantErr bool
	}{
		{"string ok", String(), "hi", false},
		{"string rejects int", String(), 1, true},
		{"int ok", Int(), 42, false},
		{"int accepts whole float64", Int(), 42.0, false},
		{"int rejects fraction", Int(), 4.2, true},
		{"int rejects string", Int(), "42", true},
		{"float ok", Float(), 0.5, false},
		{"float accepts int", Float(), 3, false},
		{"float rejects bool", Float(), true, true},
		{"bool ok", Bool(), false, false},
		{"bool rejects string", Bool(), "true", true},
		{"slice ok", Slice(String()), []string{"a", "b"}, false},
		{"slice of any ok", Slice(String()), []any{"a", "b"}, false},
		{"slice rejects element", Slice(String()), []any{"a", 2}, true},
		{"slice rejects scalar", Slice(String()), "a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.typ.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestEnumType(t *testing.T) {
	enum, err := Enum("learning", "teaching")
	if err != nil {
		t.Fatalf("Enum() error = %v", err)
	}

	if err := enum.Validate("teaching"); err != nil {
		t.Errorf("Validate(teaching) error = %v", err)
	}
	if err := enum.Validate("dancing"); err == nil {
		t.Error("Validate(dancing) should fail")
	}
	if err := enum.Validate(1); err == nil {
		t.Error("Validate(1) should fail")
	}
	if got := enum.Name(); got != "enum(learning|teaching)" {
		t.Errorf("Name() = %q", got)
	}

	choices := enum.Choices()
	choices[0] = "tampered"
	if enum.Choices()[0] != "learning" {
		t.Error("Choices() must return a copy")
	}
}

func TestEnumConstructorErrors(t *testing.T) {
	cases := map[string][]string{
		"empty set":   nil,
		"empty label": {"a", ""},
		"duplicate":   {"a", "b", "a"},
	}
	for name, choices := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Enum(choices...); err == nil {
				t.Errorf("Enum(%v) should fail", choices)
			}
		})
	}
}
