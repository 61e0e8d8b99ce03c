package cognitive

import (
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/schema"
)

// CommandFunc derives the role-tagged prompt entries from the current memory.
// It must only read the memory it is given.
type CommandFunc func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error)

// StreamAdapter transforms one streamed fragment before it is forwarded to the
// Action Bus. The accumulated text handed to post-processing is never adapted.
type StreamAdapter func(fragment string) (string, error)

// Passthrough forwards fragments unchanged.
func Passthrough(fragment string) (string, error) { return fragment, nil }

// Response is the fully resolved Processor answer seen by post-processing.
type Response struct {
	// Text is the full text: the resolved text or the concatenated stream.
	Text string
	// Value is the schema-validated structured object (nil for free text).
	Value map[string]any
	// Streamed reports whether Text was accumulated from a stream.
	Streamed bool
}

// PostProcessFunc derives the new memory and the exposed value from the
// pre-step memory and the resolved response.
type PostProcessFunc[T any] func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, T, error)

// Step configures one cognitive step producing a value of type T.
type Step[T any] struct {
	// Name identifies the step in logs, events and errors. Defaults to Kind.DefaultName.
	Name string
	Kind Kind
	// Command builds the prompt. Required.
	Command CommandFunc
	// Schema declares a structured response. Nil means free text.
	Schema schema.Schema
	// StreamAdapter requests streaming. When set, the executor forwards the
	// step output to the Action Bus as speak actions.
	StreamAdapter StreamAdapter
	// PostProcess derives the result. Nil appends the response text as one
	// assistant entry verbatim, which is only valid when T is string.
	PostProcess PostProcessFunc[T]
	// Model is forwarded opaquely to the Processor.
	Model domain.ModelClass
}

func (s Step[T]) name() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind.DefaultName()
}

// StepOption tunes a built-in step.
type StepOption func(*stepConfig)

type stepConfig struct {
	name    string
	model   domain.ModelClass
	adapter StreamAdapter
	stream  *bool
}

// WithName overrides the step name.
func WithName(name string) StepOption {
	return func(c *stepConfig) { c.name = name }
}

// WithModel sets the model-class hint.
func WithModel(model domain.ModelClass) StepOption {
	return func(c *stepConfig) { c.model = model }
}

// WithStream requests streaming through the given adapter.
func WithStream(adapter StreamAdapter) StepOption {
	return func(c *stepConfig) {
		on := true
		c.adapter = adapter
		c.stream = &on
	}
}

// WithoutStream disables streaming on steps that stream by default.
func WithoutStream() StepOption {
	return func(c *stepConfig) {
		off := false
		c.stream = &off
	}
}

func applyOptions[T any](step Step[T], opts []StepOption) Step[T] {
	var cfg stepConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name != "" {
		step.Name = cfg.name
	}
	if cfg.model != "" {
		step.Model = cfg.model
	}
	if cfg.stream != nil {
		if *cfg.stream {
			step.StreamAdapter = cfg.adapter
			if step.StreamAdapter == nil {
				step.StreamAdapter = Passthrough
			}
		} else {
			step.StreamAdapter = nil
		}
	}
	return step
}
