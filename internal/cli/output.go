package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by the inspection commands.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Print encodes v in the requested format. YAML and TOML are produced from
// v's JSON form so both follow the json tags and custom marshalers. TOML
// documents need a table at the top level, so v should be a map or a struct.
func Print(w io.Writer, format string, v any) error {
	if format == FormatJSON || format == "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}

	generic, err := toGeneric(v)
	if err != nil {
		return err
	}
	var data []byte
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(generic)
	case FormatTOML:
		data, err = toml.Marshal(generic)
	default:
		return fmt.Errorf("unknown output format '%s' (json, yaml, toml)", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	_, err = w.Write(data)
	return err
}

func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return generic, nil
}

// ParseValue reads a fact value given on the command line. Valid JSON is
// decoded; anything else is taken as a plain string.
func ParseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
