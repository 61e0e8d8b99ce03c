package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepStart  EventType = "step_start"
	EventStepFinish EventType = "step_finish"
	EventDecision   EventType = "decision"
	EventBranch     EventType = "branch"
	EventPerception EventType = "perception"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Soul      string    `json:"soul"`
}

// StepEvent describes the start or the end of a cognitive step.
type StepEvent struct {
	EventBase
	Step     string        `json:"step"`
	Kind     string        `json:"kind"`
	Model    ModelClass    `json:"model,omitempty"`
	Streamed bool          `json:"streamed,omitempty"`
	Duration time.Duration `json:"duration,omitempty"` // only on finish
	Err      error         `json:"-"`                  // only on finish
}

// DecisionEvent records the label chosen by a decision step.
type DecisionEvent struct {
	EventBase
	Process string   `json:"process"`
	Choices []string `json:"choices"`
	Choice  string   `json:"choice"`
}

// BranchEvent records a tail call into a subprocess.
type BranchEvent struct {
	EventBase
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// PerceptionEvent describes a completed top-level perception.
type PerceptionEvent struct {
	EventBase
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Fallback bool          `json:"fallback,omitempty"`
}

// LifecycleHooks defines callbacks for soul observability. Nil hooks are skipped.
type LifecycleHooks struct {
	OnStepStart  func(context.Context, *StepEvent)
	OnStepFinish func(context.Context, *StepEvent)
	OnDecision   func(context.Context, *DecisionEvent)
	OnBranch     func(context.Context, *BranchEvent)
	OnPerception func(context.Context, *PerceptionEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepStart:  chain(h.OnStepStart, other.OnStepStart),
		OnStepFinish: chain(h.OnStepFinish, other.OnStepFinish),
		OnDecision:   chain(h.OnDecision, other.OnDecision),
		OnBranch:     chain(h.OnBranch, other.OnBranch),
		OnPerception: chain(h.OnPerception, other.OnPerception),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
