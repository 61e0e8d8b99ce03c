package process

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/soulmemory"
)

// Runtime is the capability set handed to a running process.
// It records every effect and forwards it to an optional ActionSink.
type Runtime struct {
	executor *cognitive.Executor
	facts    *soulmemory.Store
	sink     domain.ActionSink
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	mu      sync.Mutex
	effects []domain.Action
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithFacts gives processes access to the soul's durable facts.
func WithFacts(store *soulmemory.Store) RuntimeOption {
	return func(rt *Runtime) {
		rt.facts = store
	}
}

// WithActionSink forwards effects to sink as they happen.
func WithActionSink(sink domain.ActionSink) RuntimeOption {
	return func(rt *Runtime) {
		rt.sink = sink
	}
}

// WithLifecycleHooks registers decision and branch hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) RuntimeOption {
	return func(rt *Runtime) {
		rt.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// NewRuntime creates a runtime for one perception. Streamed step output of
// executor is routed through the runtime so it is recorded as well.
func NewRuntime(executor *cognitive.Executor, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(rt)
	}
	rt.executor = executor.WithSink(rt)
	return rt
}

// Executor returns the executor bound to this runtime.
func (rt *Runtime) Executor() *cognitive.Executor { return rt.executor }

// Facts returns the soul's fact store, or nil when none was configured.
func (rt *Runtime) Facts() *soulmemory.Store { return rt.facts }

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// Emit implements domain.ActionSink.
func (rt *Runtime) Emit(ctx context.Context, action domain.Action) error {
	rt.mu.Lock()
	rt.effects = append(rt.effects, action)
	rt.mu.Unlock()
	if rt.sink == nil {
		return nil
	}
	return rt.sink.Emit(ctx, action)
}

// Speak emits a complete utterance for the user.
func (rt *Runtime) Speak(ctx context.Context, text string) error {
	return rt.Emit(ctx, domain.Action{Type: domain.ActionSpeak, Text: text})
}

// Log emits a diagnostic string.
func (rt *Runtime) Log(ctx context.Context, text string) error {
	return rt.Emit(ctx, domain.Action{Type: domain.ActionLog, Text: text})
}

// Effects returns the recorded effects in emission order.
func (rt *Runtime) Effects() []domain.Action {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return slices.Clone(rt.effects)
}

func (rt *Runtime) emitDecision(ctx context.Context, soul, process string, choices []string, choice string) {
	if rt.hooks.OnDecision == nil {
		return
	}
	rt.hooks.OnDecision(ctx, &domain.DecisionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventDecision, Soul: soul},
		Process:   process,
		Choices:   slices.Clone(choices),
		Choice:    choice,
	})
}

func (rt *Runtime) emitBranch(ctx context.Context, soul, from, to, label string) {
	if rt.hooks.OnBranch == nil {
		return
	}
	rt.hooks.OnBranch(ctx, &domain.BranchEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventBranch, Soul: soul},
		From:      from,
		To:        to,
		Label:     label,
	})
}

// Do runs a cognitive step with the runtime's executor.
func Do[T any](ctx context.Context, rt *Runtime, memory domain.WorkingMemory, step cognitive.Step[T]) (domain.WorkingMemory, T, error) {
	return cognitive.Run(ctx, rt.executor, memory, step)
}
