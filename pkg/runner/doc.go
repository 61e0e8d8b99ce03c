/*
Package runner implements the interactive host loop of a soul.

It is the bridge between a Soul and the outside world: it reads perceptions
through a pluggable IOHandler, runs them one at a time, and renders the speak
and log actions they produce. Interrupts cancel the perception in flight; a
second interrupt at the prompt ends the loop.

# Key Components

  - Runner: reads, perceives and renders until EOF, /exit or cancellation.
  - IOHandler: decouples the interaction mode (text, JSON lines).
  - TextHandler: interactive CLI usage with optional markdown rendering.
  - JSONHandler: one JSON document per line, for scripting and pipes.

# Usage

	r := runner.New(runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)))
	soul, err := anima.New(ctx, blueprint, tutor.New(),
		anima.WithProcessor(processor),
		anima.WithActionSink(r.Sink()),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := r.Run(ctx, soul); err != nil {
		log.Fatal(err)
	}
*/
package runner
