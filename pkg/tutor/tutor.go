// Package tutor is the reference soul: a tutor that reflects on every
// message, decides how to continue and hands the conversation to exactly one
// branch. It remembers the user's name, counts conversations and keeps a
// list of topics the user wanted to learn.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/schema"
)

// Branch labels.
const (
	Learning         = "learning"
	Teaching         = "teaching"
	EmotionalSupport = "emotional-support"
	Exploration      = "exploration"
)

// Fact keys.
const (
	FactUserName          = "userName"
	FactConversationCount = "conversationCount"
	FactTopics            = "topics"
)

// Step names, usable to bind scripted replies.
const (
	StepExtractName   = "extractName"
	StepReflect       = "reflect"
	StepDecide        = "tutor.decision"
	StepLearningReply = "learning.reply"
	StepLearningTopic = "learning.topic"
	StepTeachingPlan  = "teaching.plan"
	StepTeachingReply = "teaching.reply"
	StepSupportReply  = "support.reply"
	StepExploreIdeas  = "exploration.ideas"
	StepExploreReply  = "exploration.reply"
)

// Choices returns the decision labels in declaration order.
func Choices() []string {
	return []string{Learning, Teaching, EmotionalSupport, Exploration}
}

// New builds the tutor's mental process.
func New() *process.Branching {
	return &process.Branching{
		ID: "tutor",
		PreSteps: []process.Stage{
			countConversation,
			rememberName,
			process.StepStage(cognitive.InternalMonologue(
				"Consider how the user feels and what they need from this conversation right now.",
				cognitive.WithName(StepReflect),
				cognitive.WithModel(domain.ModelSpeed),
			)),
		},
		Decision: process.Decision{
			Description: "how to continue the conversation with the user",
			Choices:     Choices(),
			Model:       domain.ModelQuality,
		},
		Branches: map[string]process.Process{
			Learning:         process.Func(Learning, learning),
			Teaching:         process.Func(Teaching, teaching),
			EmotionalSupport: process.Func(EmotionalSupport, support),
			Exploration:      process.Func(Exploration, exploration),
		},
	}
}

// countConversation increments the conversation counter on the first
// perception of a conversation, recognised by a memory holding only the seed
// and the new user entry.
func countConversation(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (domain.WorkingMemory, error) {
	facts := rt.Facts()
	if facts == nil || memory.Len() > 2 {
		return memory, nil
	}
	n, _ := facts.GetInt(FactConversationCount)
	if err := facts.Set(ctx, FactConversationCount, n+1); err != nil {
		return memory, err
	}
	return memory, nil
}

// rememberName asks the model for the user's name until one is known.
func rememberName(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (domain.WorkingMemory, error) {
	facts := rt.Facts()
	if facts == nil {
		return memory, nil
	}
	if _, ok := facts.GetString(FactUserName); ok {
		return memory, nil
	}

	step := cognitive.Step[string]{
		Name:    StepExtractName,
		Kind:    cognitive.KindInstruction,
		Schema:  schema.Schema{FactUserName: schema.String()},
		Model:   domain.ModelSpeed,
		Command: instruct(`If the user has told you their name, answer {"userName": "<name>"}. Otherwise answer {"userName": ""}.`),
		// Extraction leaves no trace in the conversation.
		PostProcess: func(memory domain.WorkingMemory, resp cognitive.Response) (domain.WorkingMemory, string, error) {
			name, _ := resp.Value[FactUserName].(string)
			return memory, strings.TrimSpace(name), nil
		},
	}
	_, name, err := process.Do(ctx, rt, memory, step)
	if err != nil {
		return memory, err
	}
	if name == "" {
		return memory, nil
	}
	if err := facts.Set(ctx, FactUserName, name); err != nil {
		return memory, err
	}
	_ = rt.Log(ctx, "remembered user name "+name)
	return memory, nil
}

func learning(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
	memory, _, err := process.Do(ctx, rt, memory, cognitive.ExternalDialog(
		personalize(rt, "Help the user learn by asking what they already know, then guide them with one question."),
		cognitive.WithName(StepLearningReply),
	))
	if err != nil {
		return process.Outcome{}, err
	}

	step := cognitive.Step[string]{
		Name:    StepLearningTopic,
		Kind:    cognitive.KindInstruction,
		Schema:  schema.Schema{"topic": schema.String()},
		Model:   domain.ModelSpeed,
		Command: instruct(`Name the topic the user wants to learn in a few words: {"topic": "<topic>"}. Use "" when unclear.`),
		PostProcess: func(memory domain.WorkingMemory, resp cognitive.Response) (domain.WorkingMemory, string, error) {
			topic, _ := resp.Value["topic"].(string)
			return memory, strings.TrimSpace(topic), nil
		},
	}
	_, topic, err := process.Do(ctx, rt, memory, step)
	if err != nil {
		return process.Outcome{}, err
	}
	if err := addTopic(ctx, rt, topic); err != nil {
		return process.Outcome{}, err
	}
	return process.Done(memory), nil
}

func teaching(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
	memory, _, err := process.Do(ctx, rt, memory, cognitive.InternalMonologue(
		"Plan a short explanation in three steps, starting from what the user already knows.",
		cognitive.WithName(StepTeachingPlan),
	))
	if err != nil {
		return process.Outcome{}, err
	}
	memory, _, err = process.Do(ctx, rt, memory, cognitive.ExternalDialog(
		personalize(rt, "Explain the topic following your plan. Keep it short and check for understanding."),
		cognitive.WithName(StepTeachingReply),
		cognitive.WithModel(domain.ModelQuality),
	))
	if err != nil {
		return process.Outcome{}, err
	}
	return process.Done(memory), nil
}

func support(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
	memory, _, err := process.Do(ctx, rt, memory, cognitive.ExternalDialog(
		personalize(rt, "Acknowledge how the user feels, be warm and encouraging. Do not teach anything yet."),
		cognitive.WithName(StepSupportReply),
	))
	if err != nil {
		return process.Outcome{}, err
	}
	return process.Done(memory), nil
}

func exploration(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
	memory, ideas, err := process.Do(ctx, rt, memory, cognitive.Brainstorm(
		"related topics the user might enjoy exploring next",
		cognitive.WithName(StepExploreIdeas),
	))
	if err != nil {
		return process.Outcome{}, err
	}
	memory, _, err = process.Do(ctx, rt, memory, cognitive.ExternalDialog(
		personalize(rt, fmt.Sprintf("Suggest exploring one of these ideas and ask which one sounds fun: %s.", strings.Join(ideas, ", "))),
		cognitive.WithName(StepExploreReply),
	))
	if err != nil {
		return process.Outcome{}, err
	}
	return process.Done(memory), nil
}

// personalize mentions the remembered name in a dialog instruction.
func personalize(rt *process.Runtime, instruction string) string {
	if rt.Facts() == nil {
		return instruction
	}
	if name, ok := rt.Facts().GetString(FactUserName); ok {
		return fmt.Sprintf("%s The user's name is %s.", instruction, name)
	}
	return instruction
}

func addTopic(ctx context.Context, rt *process.Runtime, topic string) error {
	facts := rt.Facts()
	if facts == nil || topic == "" {
		return nil
	}
	var topics []string
	if err := facts.Decode(FactTopics, &topics); err != nil && !errors.Is(err, domain.ErrFactNotFound) {
		return err
	}
	if slices.Contains(topics, topic) {
		return nil
	}
	return facts.Set(ctx, FactTopics, append(topics, topic))
}

// instruct builds a command appending one instruction to the conversation.
func instruct(text string) cognitive.CommandFunc {
	return func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
		return append(memory.Entries(), domain.User(text, domain.WithRegion(cognitive.RegionInstruction))), nil
	}
}
