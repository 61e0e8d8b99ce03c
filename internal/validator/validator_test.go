package validator

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/tutor"
)

func leaf(name string) process.Process {
	return process.Func(name, func(_ context.Context, _ *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
		return process.Done(memory), nil
	})
}

func TestValidateMind(t *testing.T) {
	// 1. Scenario A: the tutor is valid
	if err := ValidateMind(tutor.New()); err != nil {
		t.Errorf("Scenario A (Valid) failed: %v", err)
	}

	// 2. Scenario B: a nested process has a choice without a branch
	broken := &process.Branching{
		ID:       "root",
		Decision: process.Decision{Description: "route", Choices: []string{"inner", "done"}},
		Branches: map[string]process.Process{
			"inner": &process.Branching{
				ID:       "inner",
				Decision: process.Decision{Description: "pick", Choices: []string{"a", "b"}},
				Branches: map[string]process.Process{"a": leaf("a")},
			},
			"done": leaf("done"),
		},
	}
	err := ValidateMind(broken)
	if err == nil {
		t.Fatal("Scenario B (Broken) should have failed, but got nil")
	}
	if !strings.Contains(err.Error(), "choice 'b' has no branch") {
		t.Errorf("Expected missing branch error, got: %v", err)
	}

	// 3. Scenario C: two different processes share a name
	dup := &process.Branching{
		ID:       "root",
		Decision: process.Decision{Description: "route", Choices: []string{"x", "y"}},
		Branches: map[string]process.Process{"x": leaf("reply"), "y": leaf("reply")},
	}
	err = ValidateMind(dup)
	if err == nil || !strings.Contains(err.Error(), "name 'reply' is used by more than one process") {
		t.Errorf("Expected duplicate name error, got: %v", err)
	}

	// 4. Scenario D: nil mind
	if err := ValidateMind(nil); err == nil {
		t.Error("Scenario D (Nil) should have failed")
	}
}
