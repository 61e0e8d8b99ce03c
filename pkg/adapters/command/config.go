package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/anima/pkg/domain"
	"gopkg.in/yaml.v3"
)

// CommandConfig is one allow-listed command.
type CommandConfig struct {
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
}

// ConfigFile is the structure of a processor file:
//
//	default: {command: llm, args: [-m, gpt-4o-mini]}
//	models:
//	  speed: {command: llm, args: [-m, gpt-4o-mini]}
//	  quality: {command: llm, args: [-m, gpt-4o]}
type ConfigFile struct {
	Default CommandConfig            `yaml:"default" json:"default"`
	Models  map[string]CommandConfig `yaml:"models" json:"models"`
}

// LoadConfig reads a YAML or JSON processor file.
func LoadConfig(path string) (ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigFile{}, fmt.Errorf("failed to read processor config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return ConfigFile{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Default.Command == "" {
		return ConfigFile{}, fmt.Errorf("%s: default command is required", path)
	}
	return cfg, nil
}

// Options turns the file into Processor options.
func (c ConfigFile) Options() []Option {
	opts := make([]Option, 0, len(c.Models))
	for class, cmd := range c.Models {
		opts = append(opts, WithModel(domain.ModelClass(class), cmd))
	}
	return opts
}
