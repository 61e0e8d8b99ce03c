package tutor_test

import (
	"context"
	"testing"

	"github.com/aretw0/anima/pkg/adapters/memory"
	"github.com/aretw0/anima/pkg/adapters/scripted"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/soulmemory"
	"github.com/aretw0/anima/pkg/tutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	proc  *scripted.Processor
	facts *soulmemory.Store
	rt    *process.Runtime
}

func setup(t *testing.T, replies ...scripted.Reply) fixture {
	t.Helper()
	proc := scripted.New(replies...)
	facts, err := soulmemory.Open(context.Background(), "samantha", memory.NewFactStore())
	require.NoError(t, err)
	rt := process.NewRuntime(cognitive.NewExecutor(proc), process.WithFacts(facts))
	return fixture{proc: proc, facts: facts, rt: rt}
}

func firstMessage(text string) domain.WorkingMemory {
	return domain.NewWorkingMemory("Samantha", domain.System("You are Samantha, a patient tutor.")).
		WithMemory(domain.User(text))
}

func request(t *testing.T, reqs []ports.Request, step string) ports.Request {
	t.Helper()
	for _, r := range reqs {
		if r.Step == step {
			return r
		}
	}
	t.Fatalf("no request for step %s", step)
	return ports.Request{}
}

func lastText(r ports.Request) string {
	return r.Messages[len(r.Messages)-1].Text()
}

func TestTutor_Validates(t *testing.T) {
	require.NoError(t, tutor.New().Validate())
	assert.Equal(t, []string{"learning", "teaching", "emotional-support", "exploration"}, tutor.Choices())
}

func TestTutor_LearningRemembersNameAndTopic(t *testing.T) {
	f := setup(t,
		scripted.Value(map[string]any{"userName": "Ada"}).For(tutor.StepExtractName),
		scripted.Text("She wants to learn fractions.").For(tutor.StepReflect),
		scripted.Value(map[string]any{"decision": "learning"}).For(tutor.StepDecide),
		scripted.Stream("What do you ", "know about fractions?").For(tutor.StepLearningReply),
		scripted.Value(map[string]any{"topic": "fractions"}).For(tutor.StepLearningTopic),
	)
	initial := firstMessage("Hi, I'm Ada. I'd like to learn about fractions.")

	res, err := process.Execute(context.Background(), f.rt, tutor.New(), initial, nil)
	require.NoError(t, err)

	assert.Equal(t, tutor.Learning, res.Branch)
	assert.Equal(t, []string{"tutor", "learning"}, res.Path)
	assert.Equal(t, initial.Len()+3, res.Memory.Len(), "thought, decision and reply")

	last, _ := res.Memory.Last()
	assert.Equal(t, "Samantha said: What do you know about fractions?", last.Text())

	name, _ := f.facts.GetString(tutor.FactUserName)
	assert.Equal(t, "Ada", name)
	count, _ := f.facts.GetInt(tutor.FactConversationCount)
	assert.Equal(t, 1, count)
	var topics []string
	require.NoError(t, f.facts.Decode(tutor.FactTopics, &topics))
	assert.Equal(t, []string{"fractions"}, topics)

	assert.Contains(t, lastText(request(t, f.proc.Requests(), tutor.StepLearningReply)), "The user's name is Ada.")
	assert.Equal(t, domain.ModelQuality, request(t, f.proc.Requests(), tutor.StepDecide).Model)

	require.Len(t, res.Effects, 3)
	assert.Equal(t, domain.ActionLog, res.Effects[0].Type)
	assert.Equal(t, "What do you ", res.Effects[1].Text)
	assert.Equal(t, 0, f.proc.Remaining())
}

func TestTutor_EmotionalSupport(t *testing.T) {
	f := setup(t,
		scripted.Value(map[string]any{"userName": ""}).For(tutor.StepExtractName),
		scripted.Text("They sound discouraged.").For(tutor.StepReflect),
		scripted.Value(map[string]any{"decision": "emotional-support"}).For(tutor.StepDecide),
		scripted.Text("That sounds frustrating. You are doing better than you think.").For(tutor.StepSupportReply),
	)

	res, err := process.Execute(context.Background(), f.rt, tutor.New(), firstMessage("I failed my test again."), nil)
	require.NoError(t, err)

	assert.Equal(t, tutor.EmotionalSupport, res.Branch)
	_, known := f.facts.GetString(tutor.FactUserName)
	assert.False(t, known)
	assert.NotContains(t, lastText(request(t, f.proc.Requests(), tutor.StepSupportReply)), "The user's name")

	require.Len(t, res.Effects, 1)
	assert.Equal(t, "That sounds frustrating. You are doing better than you think.", res.Effects[0].Text)
}

func TestTutor_ExplorationUsesIdeas(t *testing.T) {
	f := setup(t,
		scripted.Value(map[string]any{"userName": ""}).For(tutor.StepExtractName),
		scripted.Text("Curious mood.").For(tutor.StepReflect),
		scripted.Value(map[string]any{"decision": "exploration"}).For(tutor.StepDecide),
		scripted.Value(map[string]any{"newIdeas": []any{"geometry", "music theory"}}).For(tutor.StepExploreIdeas),
		scripted.Text("Shall we look at geometry or music theory?").For(tutor.StepExploreReply),
	)

	res, err := process.Execute(context.Background(), f.rt, tutor.New(), firstMessage("What else is fun?"), nil)
	require.NoError(t, err)

	assert.Equal(t, tutor.Exploration, res.Branch)
	assert.Contains(t, lastText(request(t, f.proc.Requests(), tutor.StepExploreReply)), "geometry, music theory")
}

func TestTutor_KnownNameAndOngoingConversation(t *testing.T) {
	f := setup(t,
		scripted.Text("Still on fractions.").For(tutor.StepReflect),
		scripted.Value(map[string]any{"decision": "teaching"}).For(tutor.StepDecide),
		scripted.Text("Start from halves.").For(tutor.StepTeachingPlan),
		scripted.Text("A half is one of two equal parts.").For(tutor.StepTeachingReply),
	)
	ctx := context.Background()
	require.NoError(t, f.facts.Set(ctx, tutor.FactUserName, "Ada"))
	require.NoError(t, f.facts.Set(ctx, tutor.FactConversationCount, 4))

	ongoing := firstMessage("hi").
		WithMemory(domain.Assistant("Samantha said: hello Ada")).
		WithMemory(domain.User("teach me halves"))

	res, err := process.Execute(ctx, f.rt, tutor.New(), ongoing, nil)
	require.NoError(t, err)
	assert.Equal(t, tutor.Teaching, res.Branch)

	count, _ := f.facts.GetInt(tutor.FactConversationCount)
	assert.Equal(t, 4, count, "only the first message of a conversation is counted")
	for _, r := range f.proc.Requests() {
		assert.NotEqual(t, tutor.StepExtractName, r.Step, "name is already known")
	}
	assert.Equal(t, domain.ModelQuality, request(t, f.proc.Requests(), tutor.StepTeachingReply).Model)
}
