package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/anima/pkg/domain"
)

// Result is the outcome of a whole chain.
type Result struct {
	// Memory is the final memory of the last process on the chain.
	Memory domain.WorkingMemory
	// Branch is the label of the last tail call, empty when none happened.
	Branch string
	// Path lists the names of the processes that ran, in order.
	Path []string
	// Effects are the speak and log actions emitted during the run.
	Effects []domain.Action
}

// Execute runs p and follows its tail calls until a process is done.
// On error the returned Result carries the input memory, the path so far and
// the effects emitted before the failure.
func Execute(ctx context.Context, rt *Runtime, p Process, memory domain.WorkingMemory, params Params) (Result, error) {
	if p == nil {
		return Result{Memory: memory}, errors.New("process is required")
	}

	initial := memory
	seen := make(map[string]bool)
	var (
		path   []string
		branch string
	)
	fail := func(err error) (Result, error) {
		return Result{Memory: initial, Branch: branch, Path: path, Effects: rt.Effects()}, err
	}

	current := p
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		name := current.Name()
		if seen[name] {
			return fail(fmt.Errorf("process '%s' is already on the chain %v: %w", name, path, ErrRecursiveBranch))
		}
		seen[name] = true
		path = append(path, name)

		outcome, err := current.Run(ctx, rt, memory, params)
		if err != nil {
			return fail(fmt.Errorf("process '%s' failed: %w", name, err))
		}
		if !outcome.tail {
			return Result{Memory: outcome.memory, Branch: branch, Path: path, Effects: rt.Effects()}, nil
		}
		if outcome.next == nil {
			return fail(fmt.Errorf("process '%s' tail-called branch '%s' without a process: %w", name, outcome.label, ErrUnknownBranch))
		}

		rt.logger.DebugContext(ctx, "tail call", "soul", memory.SoulName(), "from", name, "to", outcome.next.Name(), "label", outcome.label)
		rt.emitBranch(ctx, memory.SoulName(), name, outcome.next.Name(), outcome.label)

		branch = outcome.label
		memory = outcome.memory
		params = outcome.params
		current = outcome.next
	}
}
