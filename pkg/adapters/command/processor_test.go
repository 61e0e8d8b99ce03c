package command_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/anima/pkg/adapters/command"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T, script string) command.CommandConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	return command.CommandConfig{Command: "sh", Args: []string{"-c", script}}
}

func TestProcessor_Text(t *testing.T) {
	p := command.New(shell(t, `cat >/dev/null; echo "step=$ANIMA_STEP model=$ANIMA_MODEL"`))

	resp, err := p.Process(context.Background(), ports.Request{Step: "reply", Model: domain.ModelSpeed})
	require.NoError(t, err)
	assert.Equal(t, "step=reply model=speed", resp.Text)
	assert.False(t, resp.IsStream())
}

func TestProcessor_ReceivesRequestOnStdin(t *testing.T) {
	p := command.New(shell(t, `grep -o '"content":"Hello"' | head -n 1`))

	resp, err := p.Process(context.Background(), ports.Request{
		Step:     "reply",
		Messages: []domain.MemoryEntry{domain.User("Hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, `"content":"Hello"`, resp.Text)
}

func TestProcessor_StructuredDecision(t *testing.T) {
	p := command.New(shell(t, `cat >/dev/null; [ "$ANIMA_STRUCTURED" = true ] && echo '{"decision":"teaching"}'`))
	exec := cognitive.NewExecutor(p)

	wm := domain.NewWorkingMemory("Samantha", domain.System("persona"))
	step := cognitive.MustDecision("How to help?", []string{"learning", "teaching"})
	_, choice, err := cognitive.Run(context.Background(), exec, wm, step)
	require.NoError(t, err)
	assert.Equal(t, "teaching", choice)
}

func TestProcessor_ModelRouting(t *testing.T) {
	p := command.New(shell(t, `echo default`),
		command.WithModel(domain.ModelQuality, shell(t, `echo quality`)),
	)

	resp, err := p.Process(context.Background(), ports.Request{Model: domain.ModelQuality})
	require.NoError(t, err)
	assert.Equal(t, "quality", resp.Text)

	resp, err = p.Process(context.Background(), ports.Request{Model: domain.ModelSpeed})
	require.NoError(t, err)
	assert.Equal(t, "default", resp.Text)
}

func TestProcessor_Failures(t *testing.T) {
	p := command.New(shell(t, `echo "model not loaded" >&2; exit 3`))
	_, err := p.Process(context.Background(), ports.Request{Step: "reply"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")

	slow := command.New(shell(t, `sleep 5`))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = slow.Process(ctx, ports.Request{Step: "reply"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)

	_, err = command.New(command.CommandConfig{}).Process(context.Background(), ports.Request{})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default:
  command: llm
  args: [-m, small]
models:
  quality:
    command: llm
    args: [-m, large]
    env: {LLM_TEMPERATURE: "0.2"}
`), 0o644))

	cfg, err := command.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "llm", cfg.Default.Command)
	assert.Equal(t, []string{"-m", "large"}, cfg.Models["quality"].Args)
	assert.Equal(t, "0.2", cfg.Models["quality"].Environment["LLM_TEMPERATURE"])
	assert.Len(t, cfg.Options(), 1)

	jsonPath := filepath.Join(dir, "processor.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"models":{}}`), 0o644))
	_, err = command.LoadConfig(jsonPath)
	assert.Error(t, err, "default command is required")

	_, err = command.LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
