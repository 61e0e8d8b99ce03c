package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
)

// ContentRenderer transforms complete speech before it is printed, e.g.
// markdown to ANSI.
type ContentRenderer func(string) (string, error)

// Runner handles the perception loop of a soul using the provided IO.
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Interceptor filters perceptions before they reach the soul.
	Interceptor Interceptor

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// TurnTimeout bounds every perception when positive.
	TurnTimeout time.Duration

	handlerOnce sync.Once
	live        atomic.Bool
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	if r.Interceptor == nil {
		r.Interceptor = PassThrough()
	}
	return r
}

// Sink returns an ActionSink that renders actions as they happen. Once a
// soul is created with it, Run stops replaying the effects of each turn.
func (r *Runner) Sink() domain.ActionSink {
	r.live.Store(true)
	return domain.ActionSinkFunc(func(ctx context.Context, action domain.Action) error {
		return r.resolveHandler().Output(ctx, []domain.Action{action})
	})
}

// Run reads and perceives until the input ends, the user types /exit, an
// interrupt arrives at the prompt, or ctx is cancelled. An interrupt while
// the soul is thinking abandons only that perception.
func (r *Runner) Run(ctx context.Context, soul *anima.Soul) error {
	handler := r.resolveHandler()
	signals := NewSignalManager(ctx)
	defer signals.Stop()

	for {
		p, err := handler.Input(signals.Context())
		if err != nil {
			signals.CheckRace()
			switch {
			case ctx.Err() != nil, signals.Interrupted():
				r.Logger.Debug("runner input interrupted", "err", err)
				return nil
			case errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, ErrInputTooLarge), errors.Is(err, ErrInvalidUTF8):
				if err := handler.SystemOutput(ctx, err.Error()); err != nil {
					return fmt.Errorf("output error: %w", err)
				}
				continue
			default:
				return fmt.Errorf("input error: %w", err)
			}
		}

		handled, done, err := r.command(ctx, handler, soul, p.Text)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if handled {
			continue
		}

		p, allowed, err := r.Interceptor(ctx, p)
		if err != nil {
			return fmt.Errorf("interceptor error: %w", err)
		}
		if !allowed {
			continue
		}

		if err := r.perceive(ctx, handler, signals, soul, p); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *Runner) perceive(ctx context.Context, handler IOHandler, signals *SignalManager, soul *anima.Soul, p anima.Perception) error {
	turnCtx, cancel := r.turnContext(signals.Context())
	defer cancel()

	turn, err := soul.Perceive(turnCtx, p)
	if err != nil {
		var msg string
		switch {
		case ctx.Err() != nil:
			return nil
		case signals.Interrupted():
			msg = "interrupted"
			signals.Reset()
		case errors.Is(err, context.DeadlineExceeded):
			msg = "turn timed out"
		case errors.Is(err, domain.ErrBusy):
			msg = "still thinking about the previous message"
		default:
			msg = err.Error()
		}
		r.Logger.Warn("perception failed", "soul", soul.Name(), "err", err)
		if err := handler.SystemOutput(ctx, msg); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		return nil
	}

	if !r.live.Load() {
		if err := handler.Output(ctx, turn.Effects); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
	if turn.Fallback {
		r.Logger.Warn("fallback reply committed", "soul", soul.Name(), "cause", turn.Cause)
	}
	r.Logger.Debug("turn committed", "soul", soul.Name(), "branch", turn.Branch, "entries", turn.Memory.Len())
	return nil
}

// command handles the host commands. handled reports that text was a
// command; done that the loop should end.
func (r *Runner) command(ctx context.Context, handler IOHandler, soul *anima.Soul, text string) (handled, done bool, err error) {
	var msg string
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/exit", "/quit", "exit", "quit":
		return true, true, nil
	case "/reset":
		msg = "conversation reset"
		if err := soul.Reset(ctx); err != nil {
			msg = fmt.Sprintf("reset failed: %v", err)
		}
	case "/memory":
		msg = fmt.Sprintf("%d entries in working memory", soul.Memory().Len())
	default:
		return false, false, nil
	}
	if err := handler.SystemOutput(ctx, msg); err != nil {
		return true, false, fmt.Errorf("output error: %w", err)
	}
	return true, false, nil
}

func (r *Runner) resolveHandler() IOHandler {
	r.handlerOnce.Do(func() {
		if r.Handler == nil {
			r.Handler = NewTextHandler(os.Stdin, os.Stdout)
		}
	})
	return r.Handler
}

func (r *Runner) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	if r.TurnTimeout > 0 {
		return context.WithTimeout(parent, r.TurnTimeout)
	}
	return context.WithCancel(parent)
}
