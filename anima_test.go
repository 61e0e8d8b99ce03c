package anima_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/pkg/adapters/memory"
	"github.com/aretw0/anima/pkg/adapters/scripted"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/tutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blueprint = domain.Blueprint{Name: "Samantha", Content: "You are Samantha, a patient tutor."}

// echo replies with one external dialog step.
var echo = process.Func("echo", func(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
	memory, _, err := process.Do(ctx, rt, memory, cognitive.ExternalDialog("answer", cognitive.WithoutStream()))
	if err != nil {
		return process.Outcome{}, err
	}
	return process.Done(memory), nil
})

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	proc := scripted.New()

	_, err := anima.New(ctx, domain.Blueprint{}, echo, anima.WithProcessor(proc))
	assert.Error(t, err, "blueprint name is required")

	_, err = anima.New(ctx, blueprint, nil, anima.WithProcessor(proc))
	assert.Error(t, err)

	_, err = anima.New(ctx, blueprint, echo)
	assert.Error(t, err, "processor is required")

	soul, err := anima.New(ctx, blueprint, echo, anima.WithProcessor(proc))
	require.NoError(t, err)
	assert.Equal(t, "Samantha", soul.Name())
	assert.Equal(t, 1, soul.Memory().Len())
	seed, _ := soul.Memory().At(0)
	assert.Equal(t, domain.RoleSystem, seed.Role())
}

func TestPerceive_CommitsTurn(t *testing.T) {
	var spoken []string
	sink := domain.ActionSinkFunc(func(_ context.Context, a domain.Action) error {
		spoken = append(spoken, a.Text)
		return nil
	})
	proc := scripted.New(scripted.Text("Hello Ada!"))
	soul, err := anima.New(context.Background(), blueprint, echo,
		anima.WithProcessor(proc),
		anima.WithActionSink(sink),
	)
	require.NoError(t, err)

	turn, err := soul.Perceive(context.Background(), anima.Perception{Text: "Hi", Speaker: "Ada"})
	require.NoError(t, err)
	assert.False(t, turn.Fallback)
	assert.Equal(t, 3, soul.Memory().Len())

	user, _ := soul.Memory().At(1)
	assert.Equal(t, "Ada", user.Name())
	last, _ := soul.Memory().Last()
	assert.Equal(t, "Samantha said: Hello Ada!", last.Text())
	assert.Empty(t, spoken, "non-streaming steps do not speak")
}

func TestPerceive_FailureLeavesMemory(t *testing.T) {
	proc := scripted.New(scripted.Fail("model offline"))
	soul, err := anima.New(context.Background(), blueprint, echo, anima.WithProcessor(proc))
	require.NoError(t, err)
	before := soul.Memory()

	_, err = soul.Perceive(context.Background(), anima.Perception{Text: "Hi"})
	var procErr *domain.ProcessorError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, before.Entries(), soul.Memory().Entries())
}

func TestPerceive_Fallback(t *testing.T) {
	var events []*domain.PerceptionEvent
	hooks := domain.LifecycleHooks{
		OnPerception: func(_ context.Context, e *domain.PerceptionEvent) { events = append(events, e) },
	}
	proc := scripted.New(scripted.Value(map[string]any{"decision": "gossip"}))
	mind := &process.Branching{
		ID:       "mind",
		Decision: process.Decision{Description: "what now", Choices: []string{"a"}},
		Branches: map[string]process.Process{"a": echo},
	}
	soul, err := anima.New(context.Background(), blueprint, mind,
		anima.WithProcessor(proc),
		anima.WithFallbackReply("Sorry, I lost my train of thought."),
		anima.WithLifecycleHooks(hooks),
	)
	require.NoError(t, err)

	turn, err := soul.Perceive(context.Background(), anima.Perception{Text: "Hi"})
	require.NoError(t, err)
	assert.True(t, turn.Fallback)
	var valErr *domain.ValidationError
	assert.ErrorAs(t, turn.Cause, &valErr)

	assert.Equal(t, 3, soul.Memory().Len(), "seed, user entry, fallback")
	last, _ := soul.Memory().Last()
	assert.Equal(t, domain.RoleAssistant, last.Role())
	assert.Equal(t, "Sorry, I lost my train of thought.", last.Text())
	require.Len(t, turn.Effects, 1)
	assert.Equal(t, domain.ActionSpeak, turn.Effects[0].Type)

	require.Len(t, events, 1)
	assert.True(t, events[0].Fallback)
}

func TestPerceive_RejectsReentrancy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := process.Func("slow", func(_ context.Context, _ *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
		close(entered)
		<-release
		return process.Done(memory), nil
	})
	soul, err := anima.New(context.Background(), blueprint, slow,
		anima.WithProcessor(scripted.New()),
		anima.WithFallbackReply("never used for busy souls"),
	)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = soul.Perceive(context.Background(), anima.Perception{Text: "first"})
	}()
	<-entered
	assert.True(t, soul.Busy())

	_, err = soul.Perceive(context.Background(), anima.Perception{Text: "second"})
	var reErr *domain.ReentrancyError
	require.ErrorAs(t, err, &reErr)
	assert.True(t, errors.Is(err, domain.ErrBusy))

	err = soul.SetFact(context.Background(), "userName", "Ada")
	assert.ErrorIs(t, err, domain.ErrBusy, "host fact writes wait for the mind")
	_, ok := soul.Facts().Get("userName")
	assert.False(t, ok)

	close(release)
	wg.Wait()
	assert.False(t, soul.Busy())
	assert.Equal(t, 2, soul.Memory().Len(), "only the first perception is committed")

	require.NoError(t, soul.SetFact(context.Background(), "userName", "Ada"))
	name, _ := soul.Facts().GetString("userName")
	assert.Equal(t, "Ada", name)
}

func TestPerceive_CancelledIsNotReplacedByFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mind := process.Func("cancel", func(_ context.Context, _ *process.Runtime, _ domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
		cancel()
		return process.Outcome{}, context.Canceled
	})
	soul, err := anima.New(context.Background(), blueprint, mind,
		anima.WithProcessor(scripted.New()),
		anima.WithFallbackReply("fallback"),
	)
	require.NoError(t, err)

	_, err = soul.Perceive(ctx, anima.Perception{Text: "Hi"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, soul.Memory().Len())
}

func TestSoul_TranscriptAndFactsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewFactStore()
	transcripts := memory.NewTranscriptStore()

	newSoul := func(replies ...scripted.Reply) *anima.Soul {
		soul, err := anima.New(ctx, blueprint, tutor.New(),
			anima.WithProcessor(scripted.New(replies...)),
			anima.WithFactStore(facts),
			anima.WithTranscriptStore(transcripts, "session-1"),
			anima.WithLocker(memory.NewLocker()),
		)
		require.NoError(t, err)
		return soul
	}

	first := newSoul(
		scripted.Value(map[string]any{"userName": "Ada"}).For(tutor.StepExtractName),
		scripted.Text("Wants support.").For(tutor.StepReflect),
		scripted.Value(map[string]any{"decision": "emotional-support"}).For(tutor.StepDecide),
		scripted.Text("I'm here for you, Ada.").For(tutor.StepSupportReply),
	)
	_, err := first.Perceive(ctx, anima.Perception{Text: "I'm Ada and I'm tired"})
	require.NoError(t, err)
	committed := first.Memory()

	restarted := newSoul()
	assert.Equal(t, committed.Len(), restarted.Memory().Len())
	name, ok := restarted.Facts().GetString(tutor.FactUserName)
	require.True(t, ok)
	assert.Equal(t, "Ada", name)

	require.NoError(t, restarted.Reset(ctx))
	assert.Equal(t, 1, restarted.Memory().Len())
	assert.Equal(t, 1, newSoul().Memory().Len(), "reset is persisted")
}

func TestSoul_ConcurrentPerceptionsAcrossSouls(t *testing.T) {
	ctx := context.Background()
	makeSoul := func(name string) *anima.Soul {
		soul, err := anima.New(ctx, domain.Blueprint{Name: name, Content: "persona"}, echo,
			anima.WithProcessor(scripted.New(scripted.Text("ok"))))
		require.NoError(t, err)
		return soul
	}
	a, b := makeSoul("A"), makeSoul("B")

	var wg sync.WaitGroup
	for _, s := range []*anima.Soul{a, b} {
		wg.Add(1)
		go func(s *anima.Soul) {
			defer wg.Done()
			_, err := s.Perceive(ctx, anima.Perception{Text: "hi"})
			assert.NoError(t, err)
		}(s)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("independent souls must not block each other")
	}
	assert.Equal(t, 3, a.Memory().Len())
	assert.Equal(t, 3, b.Memory().Len())
}
