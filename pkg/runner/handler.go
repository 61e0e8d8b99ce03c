package runner

import (
	"context"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/pkg/domain"
)

// IOHandler defines the strategy for reading perceptions and rendering actions.
type IOHandler interface {
	// Output renders actions in order. Fragments of a streamed reply arrive
	// one action at a time.
	Output(ctx context.Context, actions []domain.Action) error

	// Input blocks until the next perception is available.
	// Returns io.EOF when the source is exhausted.
	Input(ctx context.Context) (anima.Perception, error)

	// SystemOutput renders a message from the host itself (errors, notices),
	// kept apart from what the soul says.
	SystemOutput(ctx context.Context, msg string) error
}
