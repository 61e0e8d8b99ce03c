package runner

import (
	"context"
	"strings"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/pkg/domain"
)

// RichResponse is the view of a committed turn handed to rich clients
// (HTTP, MCP).
type RichResponse struct {
	Soul     string             `json:"soul"`
	Reply    string             `json:"reply"`
	Branch   string             `json:"branch,omitempty"`
	Path     []string           `json:"path,omitempty"`
	Actions  []domain.Action    `json:"actions,omitempty"`
	Diff     *domain.MemoryDiff `json:"diff,omitempty"`
	Fallback bool               `json:"fallback,omitempty"`
	Cause    string             `json:"cause,omitempty"`
}

// Perceiver is the part of a soul rich clients drive.
type Perceiver interface {
	Name() string
	Memory() domain.WorkingMemory
	Perceive(ctx context.Context, p anima.Perception) (anima.Turn, error)
}

// PerceiveAndRender runs a perception and describes what it committed.
// Diff is nil when another perception committed between the snapshot and
// this one.
func PerceiveAndRender(ctx context.Context, soul Perceiver, p anima.Perception) (*RichResponse, error) {
	before := soul.Memory()
	turn, err := soul.Perceive(ctx, p)
	if err != nil {
		return nil, err
	}

	resp := &RichResponse{
		Soul:     soul.Name(),
		Reply:    Reply(turn.Effects),
		Branch:   turn.Branch,
		Path:     turn.Path,
		Actions:  turn.Effects,
		Fallback: turn.Fallback,
	}
	if turn.Cause != nil {
		resp.Cause = turn.Cause.Error()
	}
	if diff, err := domain.Diff(before, turn.Memory); err == nil {
		resp.Diff = diff
	}
	return resp, nil
}

// Reply reassembles what the soul said. Fragments of one step are joined;
// separate utterances are separated by a newline.
func Reply(actions []domain.Action) string {
	var (
		parts   []string
		current strings.Builder
		step    string
		open    bool
	)
	flush := func() {
		if open {
			parts = append(parts, current.String())
			current.Reset()
			open = false
		}
	}
	for _, act := range actions {
		if act.Type != domain.ActionSpeak {
			continue
		}
		if !act.Fragment {
			flush()
			parts = append(parts, act.Text)
			continue
		}
		if open && act.Step != step {
			flush()
		}
		current.WriteString(act.Text)
		step = act.Step
		open = true
	}
	flush()
	return strings.Join(parts, "\n")
}
