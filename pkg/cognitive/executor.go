package cognitive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/aretw0/anima/pkg/schema"
)

// Executor runs cognitive steps against a Processor.
// It never mutates a WorkingMemory: every result is derived from the memory
// passed in, and a failed step leaves the caller's memory authoritative.
type Executor struct {
	processor ports.Processor
	sink      domain.ActionSink
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithActionSink sets where streamed output is forwarded.
func WithActionSink(sink domain.ActionSink) Option {
	return func(e *Executor) {
		e.sink = sink
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor dispatching to processor.
func NewExecutor(processor ports.Processor, opts ...Option) *Executor {
	e := &Executor{processor: processor}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	return e
}

// WithSink returns a copy of the executor forwarding to sink instead.
func (e *Executor) WithSink(sink domain.ActionSink) *Executor {
	clone := *e
	clone.sink = sink
	return &clone
}

// Run executes step against memory and returns the derived memory and value.
// On error the returned memory is the input memory, unchanged.
func Run[T any](ctx context.Context, e *Executor, memory domain.WorkingMemory, step Step[T]) (domain.WorkingMemory, T, error) {
	var zero T
	name := step.name()

	post := step.PostProcess
	if post == nil {
		var ok bool
		if post, ok = any(verbatim).(PostProcessFunc[T]); !ok {
			return memory, zero, fmt.Errorf("step '%s': a post-processing function is required for %T results", name, zero)
		}
	}
	if step.Command == nil {
		return memory, zero, fmt.Errorf("step '%s': command builder is required", name)
	}

	start := time.Now()
	e.emitStepStart(ctx, memory, step.Kind, name, step.Model, step.StreamAdapter != nil)
	e.logger.DebugContext(ctx, "cognitive step started", "soul", memory.SoulName(), "step", name, "kind", step.Kind.String())

	resp, err := e.execute(ctx, memory, name, step.Command, step.Schema, step.StreamAdapter, step.Model)
	var (
		next  domain.WorkingMemory
		value T
	)
	if err == nil {
		next, value, err = post(memory, resp)
		if err != nil {
			var valErr *domain.ValidationError
			if !errors.As(err, &valErr) {
				err = fmt.Errorf("step '%s': post-processing failed: %w", name, err)
			}
		}
	}

	e.emitStepFinish(ctx, memory, step.Kind, name, step.Model, resp.Streamed, time.Since(start), err)
	if err != nil {
		e.logger.DebugContext(ctx, "cognitive step failed", "soul", memory.SoulName(), "step", name, "error", err)
		return memory, zero, err
	}
	e.logger.DebugContext(ctx, "cognitive step finished", "soul", memory.SoulName(), "step", name, "appended", next.Len()-memory.Len())
	return next, value, nil
}

// verbatim is the default post-processing rule.
var verbatim PostProcessFunc[string] = func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, string, error) {
	return memory.WithMemory(domain.Assistant(resp.Text)), resp.Text, nil
}

// execute performs steps 1-3 of a cognitive step: build, dispatch, resolve.
func (e *Executor) execute(ctx context.Context, memory domain.WorkingMemory, name string, command CommandFunc, s schema.Schema, adapter StreamAdapter, model domain.ModelClass) (Response, error) {
	messages, err := command(memory)
	if err != nil {
		return Response{}, fmt.Errorf("step '%s': failed to build command: %w", name, err)
	}

	req := ports.Request{
		Step:     name,
		Messages: messages,
		Model:    model,
		Stream:   adapter != nil,
	}
	if len(s) > 0 {
		req.Schema = s.Describe()
	}

	raw, err := e.processor.Process(ctx, req)
	if err != nil {
		return Response{}, &domain.ProcessorError{Step: name, Cause: err}
	}

	var resp Response
	if raw.IsStream() {
		text, err := e.consume(ctx, name, raw.Stream, adapter)
		if err != nil {
			return Response{Streamed: true}, err
		}
		resp = Response{Text: text, Streamed: true}
	} else {
		resp = Response{Text: raw.Text, Value: raw.Value}
		if adapter != nil && len(s) == 0 {
			if err := e.forwardResolved(ctx, name, raw.Text, adapter); err != nil {
				return resp, err
			}
		}
	}

	if len(s) > 0 {
		value, err := resolveStructured(name, s, resp)
		if err != nil {
			return resp, err
		}
		resp.Value = value
	}
	return resp, nil
}

// consume pulls every fragment in order, accumulating the raw one and
// forwarding the adapted one when the step asked for a stream. Anything short
// of io.EOF fails the step.
func (e *Executor) consume(ctx context.Context, name string, stream ports.Stream, adapter StreamAdapter) (string, error) {
	defer func() { _ = stream.Close() }()
	var buf strings.Builder
	for {
		frag, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return buf.String(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				err = errors.Join(domain.ErrStreamAbandoned, err)
			}
			return "", &domain.ProcessorError{Step: name, Cause: err}
		}

		if adapter != nil {
			if err := e.forwardFragment(ctx, name, frag, adapter); err != nil {
				return "", err
			}
		}
		buf.WriteString(frag)
	}
}

// forwardFragment speaks one adapted fragment of a streaming step.
func (e *Executor) forwardFragment(ctx context.Context, name, frag string, adapter StreamAdapter) error {
	adapted, err := adapter(frag)
	if err != nil {
		return &domain.ProcessorError{Step: name, Cause: errors.Join(domain.ErrStreamAbandoned, fmt.Errorf("stream adapter failed: %w", err))}
	}
	if adapted == "" {
		return nil
	}
	if err := e.emit(ctx, domain.Action{Type: domain.ActionSpeak, Text: adapted, Fragment: true, Step: name}); err != nil {
		return &domain.ProcessorError{Step: name, Cause: errors.Join(domain.ErrStreamAbandoned, err)}
	}
	return nil
}

// forwardResolved speaks a resolved answer of a step that asked for a stream
// the Processor did not provide.
func (e *Executor) forwardResolved(ctx context.Context, name, text string, adapter StreamAdapter) error {
	adapted, err := adapter(text)
	if err != nil {
		return &domain.ProcessorError{Step: name, Cause: fmt.Errorf("stream adapter failed: %w", err)}
	}
	if adapted == "" {
		return nil
	}
	if err := e.emit(ctx, domain.Action{Type: domain.ActionSpeak, Text: adapted, Step: name}); err != nil {
		return &domain.ProcessorError{Step: name, Cause: err}
	}
	return nil
}

func resolveStructured(name string, s schema.Schema, resp Response) (map[string]any, error) {
	value := resp.Value
	if value == nil {
		text := strings.TrimSpace(resp.Text)
		if err := json.Unmarshal([]byte(text), &value); err != nil || value == nil {
			if err == nil {
				err = errors.New("null document")
			}
			wrapped, ok := wrapLabel(s, text)
			if !ok {
				return nil, &domain.ValidationError{Step: name, Reason: "response is not a JSON object", Value: resp.Text, Cause: err}
			}
			value = wrapped
		}
	}
	if err := schema.Validate(s, value); err != nil {
		return nil, &domain.ValidationError{Step: name, Reason: "schema mismatch", Value: value, Cause: err}
	}
	return value, nil
}

// wrapLabel lifts a bare or quoted label into the object form of a schema
// holding a single enum field. Membership is left to schema.Validate.
func wrapLabel(s schema.Schema, text string) (map[string]any, bool) {
	if len(s) != 1 || text == "" {
		return nil, false
	}
	var label string
	if err := json.Unmarshal([]byte(text), &label); err != nil {
		if strings.ContainsAny(text, "{}[]\"\n") {
			return nil, false
		}
		label = text
	}
	for field, t := range s {
		if _, ok := t.(*schema.EnumType); ok {
			return map[string]any{field: strings.TrimSpace(label)}, true
		}
	}
	return nil, false
}

func (e *Executor) emit(ctx context.Context, action domain.Action) error {
	if e.sink == nil {
		return nil
	}
	return e.sink.Emit(ctx, action)
}

func (e *Executor) emitStepStart(ctx context.Context, memory domain.WorkingMemory, kind Kind, name string, model domain.ModelClass, streamed bool) {
	if e.hooks.OnStepStart == nil {
		return
	}
	e.hooks.OnStepStart(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStepStart, Soul: memory.SoulName()},
		Step:      name,
		Kind:      kind.String(),
		Model:     model,
		Streamed:  streamed,
	})
}

func (e *Executor) emitStepFinish(ctx context.Context, memory domain.WorkingMemory, kind Kind, name string, model domain.ModelClass, streamed bool, d time.Duration, err error) {
	if e.hooks.OnStepFinish == nil {
		return
	}
	e.hooks.OnStepFinish(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStepFinish, Soul: memory.SoulName()},
		Step:      name,
		Kind:      kind.String(),
		Model:     model,
		Streamed:  streamed,
		Duration:  d,
		Err:       err,
	})
}
