package config_test

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/anima/internal/config"
	"github.com/aretw0/anima/pkg/adapters/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)
	assert.Empty(t, cfg.Store.Redact)
	cfg.Store.Redact = nil
	assert.Equal(t, config.Default(), cfg)
}

func TestDefault_MatchesOllamaClient(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, ollama.DefaultModel, cfg.Processor.Model)
	assert.Equal(t, ollama.DefaultBaseURL, cfg.Processor.URL)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"soul:",
		"  blueprint: samantha",
		"  fallback: Sorry, I lost my train of thought.",
		"processor:",
		"  kind: scripted",
		"  script: replies.yaml",
		"store:",
		"  kind: sqlite",
		"  path: soul.db",
		"  redact: [email, phone]",
		"http:",
		"  metrics: true",
	}, "\n")), 0o644))

	t.Setenv("ANIMA_STORE_KIND", "file")
	t.Setenv("ANIMA_LOG_LEVEL", "debug")

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "samantha", cfg.Soul.Blueprint)
	assert.Equal(t, "Sorry, I lost my train of thought.", cfg.Soul.Fallback)
	assert.Equal(t, config.ProcessorScripted, cfg.Processor.Kind)
	assert.Equal(t, "replies.yaml", cfg.Processor.Script)
	assert.Equal(t, config.StoreFile, cfg.Store.Kind, "environment wins over the file")
	assert.Equal(t, "soul.db", cfg.Store.Path)
	assert.Equal(t, []string{"email", "phone"}, cfg.Store.Redact)
	assert.True(t, cfg.HTTP.Metrics)
	assert.Equal(t, "debug", cfg.Log.Level)

	level, err := config.ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := config.Load(config.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	cfg.Processor.Kind = "gpt"
	cfg.Store.Kind = "postgres"
	cfg.MCP.Transport = "websocket"
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Store.Redact = []string{"("}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"processor kind 'gpt'", "store kind 'postgres'", "mcp transport", "log level", "log format", "redact pattern"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = config.Default()
	cfg.Processor.Kind = config.ProcessorCommand
	assert.ErrorContains(t, cfg.Validate(), "processor.commands")
}

func TestStoreKey(t *testing.T) {
	var s config.StoreConfig
	key, err := s.DecodeKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	s.Key = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	key, err = s.DecodeKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	s.Key = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = s.DecodeKey()
	assert.ErrorContains(t, err, "32 bytes")

	s.Key = "%%%"
	_, err = s.DecodeKey()
	assert.ErrorContains(t, err, "base64")
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	cfg := config.Default()
	cfg.Soul.Blueprint = "samantha"

	require.NoError(t, config.Write(path, cfg))
	assert.Error(t, config.Write(path, cfg), "existing files are kept")

	loaded, err := config.Load(config.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "samantha", loaded.Soul.Blueprint)
	assert.Equal(t, cfg.Processor, loaded.Processor)
}
