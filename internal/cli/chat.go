package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/anima/internal/config"
	"github.com/aretw0/anima/internal/presentation/tui"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/aretw0/anima/pkg/runner"
)

// ChatOptions contains the configuration for the chat command.
type ChatOptions struct {
	In  io.Reader
	Out io.Writer
	// JSON switches to one JSON document per line.
	JSON bool
	// Interactive enables the banner, markdown rendering and styling.
	Interactive bool
	Speaker     string
	Blocklist   []string
	ShowLogs    bool
	TurnTimeout time.Duration
	Logger      *slog.Logger
	// Processor overrides the configured processor.
	Processor ports.Processor
}

// Chat runs an interactive conversation with the configured soul until the
// input ends or the user leaves. Interrupts are handled by the runner.
func Chat(ctx context.Context, cfg config.Config, opts ChatOptions) error {
	handler, err := newHandler(opts)
	if err != nil {
		return err
	}

	var interceptors []runner.Interceptor
	if opts.Speaker != "" {
		interceptors = append(interceptors, runner.SpeakerMiddleware(opts.Speaker))
	}
	if len(opts.Blocklist) > 0 {
		interceptors = append(interceptors, runner.BlocklistMiddleware(handler, opts.Blocklist...))
	}

	r := runner.New(
		runner.WithHandler(handler),
		runner.WithInterceptor(runner.MultiInterceptor(interceptors...)),
		runner.WithTurnTimeout(opts.TurnTimeout),
		runner.WithLogger(opts.Logger),
	)

	app, err := Build(ctx, cfg, BuildOptions{
		Sink:      r.Sink(),
		Logger:    opts.Logger,
		Processor: opts.Processor,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.Interactive && !opts.JSON {
		tui.PrintBanner(opts.Out, app.Soul.Name())
		if cfg.Session.ID != "" && app.Soul.Memory().Len() > 1 {
			printSystemMessage(opts.Out, "Resuming session '%s' (%d entries).", cfg.Session.ID, app.Soul.Memory().Len())
		}
	}

	if err := r.Run(ctx, app.Soul); err != nil {
		return fmt.Errorf("chat ended: %w", err)
	}
	return nil
}

func newHandler(opts ChatOptions) (runner.IOHandler, error) {
	if opts.JSON {
		return runner.NewJSONHandler(opts.In, opts.Out), nil
	}

	handlerOpts := []runner.TextHandlerOption{runner.WithTextHandlerLogs(opts.ShowLogs)}
	if opts.Speaker != "" {
		handlerOpts = append(handlerOpts, runner.WithTextHandlerSpeaker(opts.Speaker))
	}
	if opts.Interactive {
		render, err := tui.NewRenderer(tui.Width(80))
		if err != nil {
			return nil, err
		}
		handlerOpts = append(handlerOpts,
			runner.WithTextHandlerRenderer(render),
			runner.WithTextHandlerStyler(tui.SystemStyler()),
		)
	}
	return runner.NewTextHandler(opts.In, opts.Out, handlerOpts...), nil
}
