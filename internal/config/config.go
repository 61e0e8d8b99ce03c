// Package config loads the anima.yaml project file.
//
// Values are resolved in viper's usual order: explicit flag bindings, then
// ANIMA_* environment variables, then the config file, then defaults.
// Nested keys map to environment variables by replacing dots with
// underscores, so store.kind is read from ANIMA_STORE_KIND.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "anima.yaml"

// Processor kinds.
const (
	ProcessorOllama   = "ollama"
	ProcessorCommand  = "command"
	ProcessorScripted = "scripted"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config is the resolved configuration of an anima project.
type Config struct {
	Soul      SoulConfig      `mapstructure:"soul" yaml:"soul"`
	Processor ProcessorConfig `mapstructure:"processor" yaml:"processor"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	MCP       MCPConfig       `mapstructure:"mcp" yaml:"mcp"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// SoulConfig selects the blueprint the soul is created from.
type SoulConfig struct {
	// Dir is the loam repository holding blueprint documents.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Blueprint is the document id inside Dir.
	Blueprint string `mapstructure:"blueprint" yaml:"blueprint"`
	// Mind names the mental process, see cli.Minds.
	Mind string `mapstructure:"mind" yaml:"mind"`
	// ID scopes facts and locks. Defaults to the blueprint name.
	ID string `mapstructure:"id" yaml:"id,omitempty"`
	// Fallback is committed when the mind fails. Empty disables it.
	Fallback string `mapstructure:"fallback" yaml:"fallback,omitempty"`
}

// ProcessorConfig selects the language-model collaborator.
type ProcessorConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	// URL is the Ollama base URL.
	URL string `mapstructure:"url" yaml:"url,omitempty"`
	// Model is the default model; Speed and Quality override it per class.
	Model   string `mapstructure:"model" yaml:"model,omitempty"`
	Speed   string `mapstructure:"speed" yaml:"speed,omitempty"`
	Quality string `mapstructure:"quality" yaml:"quality,omitempty"`
	// Commands is the command processor definition file.
	Commands string `mapstructure:"commands" yaml:"commands,omitempty"`
	// Script is the scripted processor reply file.
	Script string `mapstructure:"script" yaml:"script,omitempty"`
}

// StoreConfig selects the fact and transcript backend.
type StoreConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Path is the data directory of the file and sqlite stores.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
	// Addr, Password and DB configure the redis client.
	Addr     string `mapstructure:"addr" yaml:"addr,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db,omitempty"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	// Key is a base64 AES-256 key. When set, facts and transcripts are encrypted at rest.
	Key string `mapstructure:"key" yaml:"key,omitempty"`
	// Redact lists fact key patterns whose values are masked before storage.
	Redact []string `mapstructure:"redact" yaml:"redact,omitempty"`
}

// SessionConfig controls transcript persistence.
type SessionConfig struct {
	// ID names the transcript. Empty keeps the conversation in memory only.
	ID string `mapstructure:"id" yaml:"id,omitempty"`
}

type HTTPConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Metrics bool   `mapstructure:"metrics" yaml:"metrics"`
}

type MCPConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	Addr      string `mapstructure:"addr" yaml:"addr,omitempty"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Soul: SoulConfig{Dir: "souls", Blueprint: "soul", Mind: "tutor"},
		Processor: ProcessorConfig{
			Kind:  ProcessorOllama,
			URL:   "http://localhost:11434",
			Model: "llama3.2",
		},
		Store: StoreConfig{Kind: StoreMemory, Path: ".anima", Addr: "localhost:6379", Prefix: "anima:"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		MCP:   MCPConfig{Transport: "stdio", Addr: ":8081"},
		Log:   LogConfig{Level: "warn", Format: "text"},
	}
}

// New returns a viper instance with defaults and environment binding set up.
// Callers bind their flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ANIMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("soul.dir", d.Soul.Dir)
	v.SetDefault("soul.blueprint", d.Soul.Blueprint)
	v.SetDefault("soul.mind", d.Soul.Mind)
	v.SetDefault("soul.id", "")
	v.SetDefault("soul.fallback", "")
	v.SetDefault("processor.kind", d.Processor.Kind)
	v.SetDefault("processor.url", d.Processor.URL)
	v.SetDefault("processor.model", d.Processor.Model)
	v.SetDefault("processor.speed", "")
	v.SetDefault("processor.quality", "")
	v.SetDefault("processor.commands", "")
	v.SetDefault("processor.script", "")
	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.addr", d.Store.Addr)
	v.SetDefault("store.password", "")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.prefix", d.Store.Prefix)
	v.SetDefault("store.key", "")
	v.SetDefault("store.redact", []string{})
	v.SetDefault("session.id", "")
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.metrics", false)
	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.addr", d.MCP.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	return v
}

// Load reads path, or anima.yaml from the working directory when path is
// empty, and returns the validated configuration. A missing default file
// is not an error; a missing explicit path is.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the enumerated fields and the encryption key.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{ProcessorOllama, ProcessorCommand, ProcessorScripted}, c.Processor.Kind) {
		errs = append(errs, fmt.Errorf("unknown processor kind '%s'", c.Processor.Kind))
	}
	if c.Processor.Kind == ProcessorCommand && c.Processor.Commands == "" {
		errs = append(errs, errors.New("processor.commands is required for the command processor"))
	}
	if c.Processor.Kind == ProcessorScripted && c.Processor.Script == "" {
		errs = append(errs, errors.New("processor.script is required for the scripted processor"))
	}
	if !slices.Contains([]string{StoreMemory, StoreFile, StoreSQLite, StoreRedis}, c.Store.Kind) {
		errs = append(errs, fmt.Errorf("unknown store kind '%s'", c.Store.Kind))
	}
	if c.Store.Key != "" {
		if _, err := c.Store.DecodeKey(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, pattern := range c.Store.Redact {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid redact pattern '%s': %w", pattern, err))
		}
	}
	if c.MCP.Transport != "stdio" && c.MCP.Transport != "sse" {
		errs = append(errs, fmt.Errorf("unknown mcp transport '%s'", c.MCP.Transport))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format '%s'", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DecodeKey returns the raw encryption key, or nil when none is configured.
func (s StoreConfig) DecodeKey() ([]byte, error) {
	if s.Key == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.Key)
	if err != nil {
		return nil, fmt.Errorf("store.key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("store.key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level '%s'", name)
	}
	return level, nil
}

// Write saves cfg as YAML. An existing file is never overwritten.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}
