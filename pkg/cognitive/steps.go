package cognitive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/schema"
	"github.com/mitchellh/mapstructure"
)

// RegionInstruction holds the transient instruction entry appended to prompts.
const RegionInstruction = "instruction"

// withInstruction returns the memory entries followed by one user-role instruction.
func withInstruction(memory domain.WorkingMemory, text string) []domain.MemoryEntry {
	return append(memory.Entries(), domain.User(strings.TrimSpace(text), domain.WithRegion(RegionInstruction)))
}

// narrate builds "<soul> <verb>: <text>" entries.
func narrate(memory domain.WorkingMemory, kind Kind, text string, opts ...domain.EntryOption) domain.MemoryEntry {
	if region := kind.Region(); region != "" {
		opts = append(opts, domain.WithRegion(region))
	}
	if verb := kind.Verb(); verb != "" {
		text = fmt.Sprintf("%s %s: %s", memory.SoulName(), verb, text)
	}
	return domain.Assistant(text, opts...)
}

// stripNarration removes a "<soul> <verb>:" prefix a model may echo back.
func stripNarration(memory domain.WorkingMemory, kind Kind, text string) string {
	text = strings.TrimSpace(text)
	if verb := kind.Verb(); verb != "" {
		text = strings.TrimPrefix(text, fmt.Sprintf("%s %s:", memory.SoulName(), verb))
	}
	return strings.Trim(strings.TrimSpace(text), `"`)
}

// ExternalDialog produces the next utterance of the soul to the user.
// It streams through Passthrough unless WithoutStream is given.
func ExternalDialog(instructions string, opts ...StepOption) Step[string] {
	kind := KindExternalDialog
	step := Step[string]{
		Kind:          kind,
		StreamAdapter: Passthrough,
		Command: func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
			return withInstruction(memory, fmt.Sprintf(
				"Model the mind of %[1]s.\n\n## Instructions\n* %[2]s\n\nReply with the next thing %[1]s says to the user. Respond with the words only, without quotes or narration.",
				memory.SoulName(), instructions)), nil
		},
		PostProcess: func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, string, error) {
			said := stripNarration(memory, kind, resp.Text)
			return memory.WithMemory(narrate(memory, kind, said)), said, nil
		},
	}
	return applyOptions(step, opts)
}

// InternalMonologue produces a private thought. Nothing is spoken.
func InternalMonologue(instructions string, opts ...StepOption) Step[string] {
	kind := KindInternalMonologue
	step := Step[string]{
		Kind: kind,
		Command: func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
			return withInstruction(memory, fmt.Sprintf(
				"Model the mind of %[1]s.\n\n## Instructions\n* %[2]s\n\nReply with the next thought %[1]s has. Respond with the thought only.",
				memory.SoulName(), instructions)), nil
		},
		PostProcess: func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, string, error) {
			thought := stripNarration(memory, kind, resp.Text)
			return memory.WithMemory(narrate(memory, kind, thought)), thought, nil
		},
	}
	return applyOptions(step, opts)
}

// MetaDecision is the metadata key holding the label chosen by a Decision step.
const MetaDecision = "decision"

// Decision narrows the conversation to exactly one label out of choices.
// It fails on an empty or duplicated choice set.
func Decision(description string, choices []string, opts ...StepOption) (Step[string], error) {
	enum, err := schema.Enum(choices...)
	if err != nil {
		return Step[string]{}, fmt.Errorf("invalid decision choices: %w", err)
	}
	kind := KindDecision
	step := Step[string]{
		Kind:   kind,
		Schema: schema.Schema{"decision": enum},
		Command: func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
			return withInstruction(memory, fmt.Sprintf(
				"%[1]s is deciding: %[2]s\n\nChoose exactly one of: %[3]s.\nAnswer with a JSON object {\"decision\": <choice>}.",
				memory.SoulName(), description, strings.Join(enum.Choices(), ", "))), nil
		},
		PostProcess: func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, string, error) {
			label, _ := resp.Value["decision"].(string)
			entry := narrate(memory, kind, label, domain.WithMetadata(map[string]any{MetaDecision: label}))
			return memory.WithMemory(entry), label, nil
		},
	}
	return applyOptions(step, opts), nil
}

// MustDecision is like Decision but panics on invalid choices.
// It is meant for statically declared processes.
func MustDecision(description string, choices []string, opts ...StepOption) Step[string] {
	step, err := Decision(description, choices, opts...)
	if err != nil {
		panic(err)
	}
	return step
}

// MentalQuery asks whether statement is true in the current conversation.
func MentalQuery(statement string, opts ...StepOption) Step[bool] {
	kind := KindMentalQuery
	step := Step[bool]{
		Kind:   kind,
		Schema: schema.Schema{"isStatementTrue": schema.Bool()},
		Command: func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
			return withInstruction(memory, fmt.Sprintf(
				"%[1]s evaluates the following statement against the conversation so far:\n> %[2]s\n\nAnswer with a JSON object {\"isStatementTrue\": <bool>}.",
				memory.SoulName(), statement)), nil
		},
		PostProcess: func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, bool, error) {
			verdict, _ := resp.Value["isStatementTrue"].(bool)
			entry := narrate(memory, kind, fmt.Sprintf("%q is %t", statement, verdict))
			return memory.WithMemory(entry), verdict, nil
		},
	}
	return applyOptions(step, opts)
}

// Brainstorm produces a list of new ideas about description.
func Brainstorm(description string, opts ...StepOption) Step[[]string] {
	kind := KindBrainstorm
	step := Step[[]string]{
		Kind:   kind,
		Schema: schema.Schema{"newIdeas": schema.Slice(schema.String())},
		Command: func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
			return withInstruction(memory, fmt.Sprintf(
				"%[1]s brainstorms new ideas about: %[2]s\n\nAnswer with a JSON object {\"newIdeas\": [<idea>, ...]}.",
				memory.SoulName(), description)), nil
		},
		PostProcess: func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, []string, error) {
			var ideas []string
			if err := mapstructure.Decode(resp.Value["newIdeas"], &ideas); err != nil {
				return memory, nil, err
			}
			entry := narrate(memory, kind, strings.Join(ideas, "; "))
			return memory.WithMemory(entry), ideas, nil
		},
	}
	return applyOptions(step, opts)
}

// Instruction sends a raw command and appends the completion verbatim.
func Instruction(command string, opts ...StepOption) Step[string] {
	step := Step[string]{
		Kind: KindInstruction,
		Command: func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
			return withInstruction(memory, command), nil
		},
	}
	return applyOptions(step, opts)
}

// Summarize condenses the conversation into the "summary" region.
func Summarize(extra string, opts ...StepOption) Step[string] {
	kind := KindSummarize
	step := Step[string]{
		Kind: kind,
		Command: func(memory domain.WorkingMemory) ([]domain.MemoryEntry, error) {
			text := fmt.Sprintf("Summarize the conversation so far from the point of view of %s. Keep names, facts and open questions.", memory.SoulName())
			if extra != "" {
				text += "\n\n" + extra
			}
			return withInstruction(memory, text), nil
		},
		PostProcess: func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, string, error) {
			summary := stripNarration(memory, kind, resp.Text)
			return memory.WithMemory(narrate(memory, kind, summary)), summary, nil
		},
	}
	return applyOptions(step, opts)
}

// Structured requests an object matching s and decodes it into T using the
// json field tags of T. The decoded object is appended as one assistant entry
// holding its JSON form.
func Structured[T any](name string, s schema.Schema, command CommandFunc, opts ...StepOption) Step[T] {
	step := Step[T]{
		Name:    name,
		Kind:    KindInstruction,
		Schema:  s,
		Command: command,
		PostProcess: func(memory domain.WorkingMemory, resp Response) (domain.WorkingMemory, T, error) {
			var out T
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				TagName:          "json",
				Result:           &out,
				WeaklyTypedInput: true,
			})
			if err != nil {
				return memory, out, err
			}
			if err := dec.Decode(resp.Value); err != nil {
				return memory, out, &domain.ValidationError{Step: name, Reason: "cannot decode structured response", Value: resp.Value, Cause: err}
			}
			doc, err := json.Marshal(resp.Value)
			if err != nil {
				return memory, out, err
			}
			return memory.WithMemory(domain.Assistant(string(doc), domain.WithMetadata(map[string]any{"step": name}))), out, nil
		},
	}
	return applyOptions(step, opts)
}
