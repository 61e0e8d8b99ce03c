package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/anima/pkg/process"
)

// ValidateMind crawls a mental process and every nested branching process,
// reporting invalid decisions, missing branches and names reused by
// different processes.
func ValidateMind(mind process.Process) error {
	if mind == nil {
		return fmt.Errorf("mind is nil")
	}

	seen := make(map[string]process.Process)
	queue := []process.Process{mind}

	var errors []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		name := current.Name()
		if name == "" {
			errors = append(errors, "process without a name")
			continue
		}
		if prev, ok := seen[name]; ok {
			if prev != current {
				errors = append(errors, fmt.Sprintf("name '%s' is used by more than one process", name))
			}
			continue
		}
		seen[name] = current

		b, ok := current.(*process.Branching)
		if !ok {
			continue // Leaf process
		}
		if err := b.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
		for _, label := range b.Decision.Choices {
			if child := b.Branches[label]; child != nil {
				queue = append(queue, child)
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}

	return nil
}
