package process_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/anima/pkg/adapters/memory"
	"github.com/aretw0/anima/pkg/adapters/scripted"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/soulmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed() domain.WorkingMemory {
	return domain.NewWorkingMemory("Samantha", domain.System("You are Samantha."), domain.User("hi"))
}

// reply builds a branch process that speaks a fixed line and ends.
func reply(name, line string) process.Process {
	return process.Func(name, func(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
		memory, _, err := process.Do(ctx, rt, memory, cognitive.ExternalDialog(line, cognitive.WithName(name)))
		if err != nil {
			return process.Outcome{}, err
		}
		return process.Done(memory), nil
	})
}

func branching() *process.Branching {
	return &process.Branching{
		ID: "tutor",
		PreSteps: []process.Stage{
			process.StepStage(cognitive.InternalMonologue("what does the user need?")),
		},
		Decision: process.Decision{
			Description: "how to continue",
			Choices:     []string{"learning", "teaching"},
		},
		Branches: map[string]process.Process{
			"learning": reply("learning", "ask what they want to learn"),
			"teaching": reply("teaching", "explain the topic"),
		},
	}
}

func TestExecute_TailCallReturnsOnlyChosenBranch(t *testing.T) {
	proc := scripted.New(
		scripted.Text("they want to be taught"),
		scripted.Value(map[string]any{"decision": "teaching"}),
		scripted.Stream("Let me ", "explain."),
	)
	rt := process.NewRuntime(cognitive.NewExecutor(proc))
	initial := seed()

	res, err := process.Execute(context.Background(), rt, branching(), initial, nil)
	require.NoError(t, err)

	assert.Equal(t, "teaching", res.Branch)
	assert.Equal(t, []string{"tutor", "teaching"}, res.Path)
	assert.Equal(t, initial.Len()+3, res.Memory.Len(), "thought, decision and reply")

	last, _ := res.Memory.Last()
	assert.Equal(t, "Samantha said: Let me explain.", last.Text())

	for _, e := range res.Memory.Entries() {
		assert.NotContains(t, e.Text(), "learn", "no trace of the sibling branch")
	}

	require.Len(t, res.Effects, 2)
	assert.Equal(t, domain.ActionSpeak, res.Effects[0].Type)
	assert.True(t, res.Effects[0].Fragment)
	assert.Equal(t, "Let me ", res.Effects[0].Text)

	assert.Equal(t, 2, initial.Len(), "caller memory is untouched")
	assert.Equal(t, 0, proc.Remaining())
}

func TestExecute_PreStepFailureSkipsDecision(t *testing.T) {
	proc := scripted.New(scripted.Fail("model offline"))
	rt := process.NewRuntime(cognitive.NewExecutor(proc))
	initial := seed()

	res, err := process.Execute(context.Background(), rt, branching(), initial, nil)
	var procErr *domain.ProcessorError
	require.ErrorAs(t, err, &procErr)

	assert.Len(t, proc.Requests(), 1, "decision must not be dispatched")
	assert.Equal(t, initial.Entries(), res.Memory.Entries())
	assert.Empty(t, res.Branch)
}

func TestExecute_DecisionOutsideChoices(t *testing.T) {
	proc := scripted.New(
		scripted.Text("hmm"),
		scripted.Value(map[string]any{"decision": "gossip"}),
	)
	rt := process.NewRuntime(cognitive.NewExecutor(proc))

	_, err := process.Execute(context.Background(), rt, branching(), seed(), nil)
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "tutor.decision", valErr.Step)
}

func TestExecute_RejectsRecursion(t *testing.T) {
	var self process.Process
	self = process.Func("loop", func(_ context.Context, _ *process.Runtime, memory domain.WorkingMemory, params process.Params) (process.Outcome, error) {
		return process.TailCall("again", self, params, memory), nil
	})

	rt := process.NewRuntime(cognitive.NewExecutor(scripted.New()))
	res, err := process.Execute(context.Background(), rt, self, seed(), nil)
	assert.ErrorIs(t, err, process.ErrRecursiveBranch)
	assert.Equal(t, []string{"loop"}, res.Path)
}

func TestExecute_BranchCannotReturnToParent(t *testing.T) {
	var parent process.Process
	child := process.Func("child", func(_ context.Context, _ *process.Runtime, memory domain.WorkingMemory, params process.Params) (process.Outcome, error) {
		return process.TailCall("back", parent, params, memory), nil
	})
	parent = process.Func("parent", func(_ context.Context, _ *process.Runtime, memory domain.WorkingMemory, params process.Params) (process.Outcome, error) {
		return process.TailCall("down", child, params, memory), nil
	})

	rt := process.NewRuntime(cognitive.NewExecutor(scripted.New()))
	_, err := process.Execute(context.Background(), rt, parent, seed(), nil)
	assert.ErrorIs(t, err, process.ErrRecursiveBranch)
}

func TestBranching_Validate(t *testing.T) {
	noop := process.Func("noop", func(_ context.Context, _ *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
		return process.Done(memory), nil
	})

	tests := []struct {
		name     string
		choices  []string
		branches map[string]process.Process
		wantErr  error
	}{
		{"complete", []string{"a", "b"}, map[string]process.Process{"a": noop, "b": noop}, nil},
		{"missing branch", []string{"a", "b"}, map[string]process.Process{"a": noop}, process.ErrUnknownBranch},
		{"extra branch", []string{"a"}, map[string]process.Process{"a": noop, "z": noop}, process.ErrUnknownBranch},
		{"nil branch", []string{"a"}, map[string]process.Process{"a": nil}, process.ErrUnknownBranch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &process.Branching{ID: "p", Decision: process.Decision{Choices: tt.choices}, Branches: tt.branches}
			err := b.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	dup := &process.Branching{ID: "p", Decision: process.Decision{Choices: []string{"a", "a"}}, Branches: map[string]process.Process{"a": noop}}
	assert.Error(t, dup.Validate())
}

func TestRuntime_EffectsAndHooks(t *testing.T) {
	var (
		decisions []string
		branches  []string
	)
	hooks := domain.LifecycleHooks{
		OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
			decisions = append(decisions, e.Process+"="+e.Choice)
		},
		OnBranch: func(_ context.Context, e *domain.BranchEvent) { branches = append(branches, e.From+"->"+e.To) },
	}

	var forwarded []domain.Action
	sink := domain.ActionSinkFunc(func(_ context.Context, a domain.Action) error {
		forwarded = append(forwarded, a)
		return nil
	})

	proc := scripted.New(
		scripted.Text("noted"),
		scripted.Value(map[string]any{"decision": "learning"}),
		scripted.Text("What would you like to learn?"),
	)
	rt := process.NewRuntime(cognitive.NewExecutor(proc),
		process.WithLifecycleHooks(hooks),
		process.WithActionSink(sink),
	)
	require.NoError(t, rt.Log(context.Background(), "perception started"))

	res, err := process.Execute(context.Background(), rt, branching(), seed(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"tutor=learning"}, decisions)
	assert.Equal(t, []string{"tutor->learning"}, branches)
	assert.Equal(t, res.Effects, forwarded)
	require.Len(t, res.Effects, 2)
	assert.Equal(t, domain.ActionLog, res.Effects[0].Type)
	assert.Equal(t, "What would you like to learn?", res.Effects[1].Text, "resolved text is spoken in one piece")
}

func TestRuntime_FactsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewFactStore()

	counter := process.Func("count", func(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
		n, _ := rt.Facts().GetInt("conversationCount")
		if err := rt.Facts().Set(ctx, "conversationCount", n+1); err != nil {
			return process.Outcome{}, err
		}
		return process.Done(memory), nil
	})

	for i := 0; i < 3; i++ {
		facts, err := soulmemory.Open(ctx, "samantha", backend)
		require.NoError(t, err)
		rt := process.NewRuntime(cognitive.NewExecutor(scripted.New()), process.WithFacts(facts))
		_, err = process.Execute(ctx, rt, counter, seed(), nil)
		require.NoError(t, err)
	}

	facts, err := soulmemory.Open(ctx, "samantha", backend)
	require.NoError(t, err)
	n, _ := facts.GetInt("conversationCount")
	assert.Equal(t, 3, n)
}

func TestExecute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rt := process.NewRuntime(cognitive.NewExecutor(scripted.New()))
	_, err := process.Execute(ctx, rt, branching(), seed(), nil)
	assert.True(t, errors.Is(err, context.Canceled))
}
