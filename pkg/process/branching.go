package process

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
)

// Stage is one linear step before the decision.
type Stage func(ctx context.Context, rt *Runtime, memory domain.WorkingMemory, params Params) (domain.WorkingMemory, error)

// StepStage runs a cognitive step as a stage, discarding its value.
func StepStage[T any](step cognitive.Step[T]) Stage {
	return func(ctx context.Context, rt *Runtime, memory domain.WorkingMemory, _ Params) (domain.WorkingMemory, error) {
		next, _, err := Do(ctx, rt, memory, step)
		return next, err
	}
}

// Decision configures the decision node of a Branching.
type Decision struct {
	Description string
	Choices     []string
	Model       domain.ModelClass
}

// Branching is start -> pre-steps -> decision -> exactly one branch.
type Branching struct {
	// ID names the process on a chain.
	ID       string
	PreSteps []Stage
	Decision Decision
	// Branches maps every choice label to the process it tail-calls.
	Branches map[string]Process
	// Params, when set, builds the parameter bag passed to the chosen branch.
	// By default the incoming params are passed through.
	Params func(label string, params Params) Params
}

// Validate checks that every choice has exactly one branch and that no branch
// exists without a choice.
func (b *Branching) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("branching process requires a name")
	}
	if _, err := cognitive.Decision(b.Decision.Description, b.Decision.Choices); err != nil {
		return fmt.Errorf("branching '%s': %w", b.ID, err)
	}
	for _, label := range b.Decision.Choices {
		if b.Branches[label] == nil {
			return fmt.Errorf("branching '%s': choice '%s' has no branch: %w", b.ID, label, ErrUnknownBranch)
		}
	}
	for label := range b.Branches {
		if !slices.Contains(b.Decision.Choices, label) {
			return fmt.Errorf("branching '%s': branch '%s' is not a choice: %w", b.ID, label, ErrUnknownBranch)
		}
	}
	return nil
}

// Name implements Process.
func (b *Branching) Name() string { return b.ID }

// Run implements Process. A failing pre-step skips the decision and the branches.
func (b *Branching) Run(ctx context.Context, rt *Runtime, memory domain.WorkingMemory, params Params) (Outcome, error) {
	if err := b.Validate(); err != nil {
		return Outcome{}, err
	}

	for i, stage := range b.PreSteps {
		next, err := stage(ctx, rt, memory, params)
		if err != nil {
			return Outcome{}, fmt.Errorf("pre-step %d: %w", i, err)
		}
		memory = next
	}

	step, err := cognitive.Decision(b.Decision.Description, b.Decision.Choices,
		cognitive.WithName(b.ID+".decision"),
		cognitive.WithModel(b.Decision.Model),
	)
	if err != nil {
		return Outcome{}, err
	}
	memory, label, err := Do(ctx, rt, memory, step)
	if err != nil {
		return Outcome{}, err
	}
	rt.emitDecision(ctx, memory.SoulName(), b.ID, b.Decision.Choices, label)

	child, ok := b.Branches[label]
	if !ok {
		return Outcome{}, fmt.Errorf("label '%s': %w", label, ErrUnknownBranch)
	}

	childParams := params
	if b.Params != nil {
		childParams = b.Params(label, params)
	}
	return TailCall(label, child, childParams, memory), nil
}
