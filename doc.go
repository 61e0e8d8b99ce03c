/*
Package anima drives a conversational agent, a "soul", whose behavior is a
chain of typed cognitive steps over an append-only conversation log.

# Concept

A Soul owns three things:

  - a WorkingMemory: the immutable conversation log, seeded with the
    soul's blueprint (persona) as its first system entry;
  - a SoulMemoryStore: durable facts that survive between conversations;
  - a mind: a process.Process that turns the memory plus a new perception
    into the next memory, usually by running pre-steps, deciding among
    named branches and tail-calling exactly one of them.

The language model itself is an injected ports.Processor. Everything a soul
says goes to an injected domain.ActionSink and is also returned in the Turn.

# Usage

	bp := domain.Blueprint{Name: "Samantha", Content: "You are Samantha, a patient tutor."}
	soul, err := anima.New(ctx, bp, tutor.New(),
		anima.WithProcessor(ollama.New("")),
		anima.WithFactStore(sqliteStore),
		anima.WithFallbackReply("Sorry, I lost my train of thought."),
	)
	if err != nil {
		log.Fatal(err)
	}

	turn, err := soul.Perceive(ctx, anima.Perception{Text: "Hi, I'm Ada"})

# Concurrency

A soul processes one perception at a time. A perception that arrives while
another is in flight fails immediately with a *domain.ReentrancyError
(errors.Is(err, domain.ErrBusy)); queueing is the host's job. With
WithLocker the same rule holds across replicas sharing a Redis instance.
*/
package anima
