// Package command provides a Processor that delegates every request to an
// allow-listed external command, so any CLI model runner can back a soul.
//
// The request is written to the command's stdin as JSON. Its stdout is the
// answer: free text, or a JSON object for structured requests. Request
// fields are never turned into command-line arguments.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
)

// waitDelay bounds how long a cancelled command may keep its output open.
const waitDelay = 500 * time.Millisecond

// Processor runs a command per request.
type Processor struct {
	fallback CommandConfig
	models   map[domain.ModelClass]CommandConfig
	baseDir  string
	logger   *slog.Logger
}

// Option configures the Processor.
type Option func(*Processor)

// WithModel routes requests of a model class to their own command.
func WithModel(class domain.ModelClass, cmd CommandConfig) Option {
	return func(p *Processor) {
		p.models[class] = cmd
	}
}

// WithBaseDir sets the working directory for executed commands.
func WithBaseDir(dir string) Option {
	return func(p *Processor) {
		p.baseDir = dir
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// New creates a Processor running cmd unless a model class has its own.
func New(cmd CommandConfig, opts ...Option) *Processor {
	p := &Processor{
		fallback: cmd,
		models:   make(map[domain.ModelClass]CommandConfig),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the command and returns a resolved response. Streaming is
// not supported; the executor speaks the resolved answer instead.
func (p *Processor) Process(ctx context.Context, req ports.Request) (ports.Response, error) {
	spec := p.resolve(req.Model)
	if spec.Command == "" {
		return ports.Response{}, fmt.Errorf("no command configured for model class %q", req.Model)
	}

	input, err := json.Marshal(req)
	if err != nil {
		return ports.Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = p.baseDir
	cmd.WaitDelay = waitDelay
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(cmd.Environ(),
		"ANIMA_STEP="+req.Step,
		"ANIMA_MODEL="+string(req.Model),
		fmt.Sprintf("ANIMA_STRUCTURED=%t", req.Schema != nil),
	)
	for k, v := range spec.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger.DebugContext(ctx, "running processor command", "step", req.Step, "command", spec.Command)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ports.Response{}, ctx.Err()
		}
		return ports.Response{}, fmt.Errorf("command %s failed: %w: %s", spec.Command, err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if req.Schema != nil && strings.HasPrefix(out, "{") {
		var value map[string]any
		if err := json.Unmarshal([]byte(out), &value); err == nil {
			return ports.Response{Text: out, Value: value}, nil
		}
	}
	return ports.Response{Text: out}, nil
}

func (p *Processor) resolve(class domain.ModelClass) CommandConfig {
	if cmd, ok := p.models[class]; ok {
		return cmd
	}
	return p.fallback
}
