package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/aretw0/anima/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestSignalContext_Stop(t *testing.T) {
	ctx := NewSignalContext(context.Background())
	ctx.Stop()
	ctx.Stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Nil(t, ctx.Signal())
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(config.LogConfig{Level: "error", Format: "text"}, false)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))

	logger = NewLogger(config.LogConfig{Level: "error", Format: "json"}, true)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = NewLogger(config.LogConfig{Level: "nonsense"}, false)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestPrintSystemMessage(t *testing.T) {
	var buf bytes.Buffer
	printSystemMessage(&buf, "Resuming session '%s'.", "ada")
	assert.Equal(t, ">>> Resuming session 'ada'.\n", buf.String())
}
