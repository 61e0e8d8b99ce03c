package domain

import "context"

// ActionType identifies an observable effect produced by a mental process.
type ActionType string

const (
	// ActionSpeak carries text intended for the end user. Streaming steps
	// emit one ActionSpeak per forwarded fragment with Fragment set.
	ActionSpeak ActionType = "speak"

	// ActionLog carries a diagnostic string for observability.
	ActionLog ActionType = "log"
)

// Action is a single effect delivered to the Action Bus.
type Action struct {
	Type     ActionType `json:"type"`
	Text     string     `json:"text"`
	Fragment bool       `json:"fragment,omitempty"`
	Step     string     `json:"step,omitempty"`
}

// ActionSink is the Action Bus capability injected into the orchestrator.
// The core only produces actions; rendering is the sink's concern.
type ActionSink interface {
	Emit(ctx context.Context, action Action) error
}

// ActionSinkFunc adapts a function to ActionSink.
type ActionSinkFunc func(ctx context.Context, action Action) error

func (f ActionSinkFunc) Emit(ctx context.Context, action Action) error {
	return f(ctx, action)
}

// ModelClass is an opaque hint forwarded to the Processor.
type ModelClass string

const (
	ModelDefault ModelClass = ""
	ModelQuality ModelClass = "quality"
	ModelSpeed   ModelClass = "speed"
)

// Blueprint is the persona document of a soul. Content is opaque to the core
// and is seeded as the first system entry of the working memory.
type Blueprint struct {
	Name    string `json:"name" mapstructure:"name"`
	Entity  string `json:"entity,omitempty" mapstructure:"entity"`
	Context string `json:"context,omitempty" mapstructure:"context"`
	Content string `json:"content"`
}

// Seed returns the system entry representing the blueprint.
func (b Blueprint) Seed() MemoryEntry {
	return System(b.Content, WithRegion("core"), WithName(b.Name))
}
