package process

import (
	"context"
	"errors"

	"github.com/aretw0/anima/pkg/domain"
)

var (
	// ErrRecursiveBranch is returned when a tail call targets a process that
	// is already on the current chain.
	ErrRecursiveBranch = errors.New("recursive branch")
	// ErrUnknownBranch is returned when a decision label has no branch, or a
	// branch has no matching label.
	ErrUnknownBranch = errors.New("unknown branch")
)

// Params is the parameter bag handed to a process.
type Params map[string]any

// String returns the string value under key, or def.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Process is a mental process. Processes are identified by name on a chain.
type Process interface {
	Name() string
	Run(ctx context.Context, rt *Runtime, memory domain.WorkingMemory, params Params) (Outcome, error)
}

// RunFunc is the body of a process built with Func.
type RunFunc func(ctx context.Context, rt *Runtime, memory domain.WorkingMemory, params Params) (Outcome, error)

type funcProcess struct {
	name string
	fn   RunFunc
}

func (f *funcProcess) Name() string { return f.name }

func (f *funcProcess) Run(ctx context.Context, rt *Runtime, memory domain.WorkingMemory, params Params) (Outcome, error) {
	return f.fn(ctx, rt, memory, params)
}

// Func adapts a function to a Process.
func Func(name string, fn RunFunc) Process {
	return &funcProcess{name: name, fn: fn}
}

// Outcome is the tagged result of one process run: done, or a tail call.
type Outcome struct {
	memory domain.WorkingMemory
	tail   bool
	label  string
	next   Process
	params Params
}

// Done ends the chain with memory as the final state.
func Done(memory domain.WorkingMemory) Outcome {
	return Outcome{memory: memory}
}

// TailCall hands memory to child. The caller's own state is discarded; the
// child's result becomes the caller's result.
func TailCall(label string, child Process, params Params, memory domain.WorkingMemory) Outcome {
	return Outcome{memory: memory, tail: true, label: label, next: child, params: params}
}

// Memory returns the memory carried by the outcome.
func (o Outcome) Memory() domain.WorkingMemory { return o.memory }

// IsTailCall reports whether the outcome continues into a child process.
func (o Outcome) IsTailCall() bool { return o.tail }

// Label returns the branch label of a tail call.
func (o Outcome) Label() string { return o.label }
