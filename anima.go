package anima

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/adapters/memory"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/session"
	"github.com/aretw0/anima/pkg/soulmemory"
)

// Soul is the high-level entry point of the library.
// It owns one WorkingMemory chain and one SoulMemoryStore, and runs its mind
// once per perception.
type Soul struct {
	blueprint domain.Blueprint
	mind      process.Process
	soulID    string

	processor   ports.Processor
	factStore   ports.FactStore
	facts       *soulmemory.Store
	executor    *cognitive.Executor
	guard       *session.Guard
	locker      ports.Locker
	transcripts *session.Manager
	sessionID   string
	sessions    ports.TranscriptStore
	sink        domain.ActionSink
	fallback    string
	hooks       domain.LifecycleHooks
	logger      *slog.Logger

	mu     sync.RWMutex
	memory domain.WorkingMemory
}

// Option defines a functional option for configuring the Soul.
type Option func(*Soul)

// WithProcessor sets the language-model collaborator. Required.
func WithProcessor(p ports.Processor) Option {
	return func(s *Soul) {
		s.processor = p
	}
}

// WithFactStore sets the durable backend of the SoulMemoryStore.
// Defaults to an in-memory store.
func WithFactStore(store ports.FactStore) Option {
	return func(s *Soul) {
		s.factStore = store
	}
}

// WithSoulID scopes facts, locks and metrics. Defaults to the blueprint name.
func WithSoulID(id string) Option {
	return func(s *Soul) {
		s.soulID = id
	}
}

// WithTranscriptStore persists the WorkingMemory under sessionID. The
// transcript is restored on New and saved after every perception.
func WithTranscriptStore(store ports.TranscriptStore, sessionID string) Option {
	return func(s *Soul) {
		s.sessions = store
		s.sessionID = sessionID
	}
}

// WithLocker extends the reentrancy guard and transcript saves across replicas.
func WithLocker(locker ports.Locker) Option {
	return func(s *Soul) {
		s.locker = locker
	}
}

// WithActionSink receives speak and log actions as they happen.
func WithActionSink(sink domain.ActionSink) Option {
	return func(s *Soul) {
		s.sink = sink
	}
}

// WithFallbackReply makes a failed perception commit text as a plain
// assistant entry instead of returning the error. Cancellation and
// reentrancy are never replaced by the fallback.
func WithFallbackReply(text string) Option {
	return func(s *Soul) {
		s.fallback = text
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Soul) {
		s.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Soul) {
		s.logger = logger
	}
}

// New creates a soul from its blueprint and its mind. Facts are loaded once
// here; a stored transcript, when configured, replaces the blueprint seed.
func New(ctx context.Context, blueprint domain.Blueprint, mind process.Process, opts ...Option) (*Soul, error) {
	if blueprint.Name == "" {
		return nil, errors.New("blueprint name is required")
	}
	if mind == nil {
		return nil, errors.New("mental process is required")
	}

	s := &Soul{blueprint: blueprint, mind: mind}
	for _, opt := range opts {
		opt(s)
	}

	if s.processor == nil {
		return nil, errors.New("processor is required")
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.soulID == "" {
		s.soulID = blueprint.Name
	}
	if s.factStore == nil {
		s.factStore = memory.NewFactStore()
	}

	facts, err := soulmemory.Open(ctx, s.soulID, s.factStore)
	if err != nil {
		return nil, err
	}
	s.facts = facts

	s.executor = cognitive.NewExecutor(s.processor,
		cognitive.WithLifecycleHooks(s.hooks),
		cognitive.WithLogger(s.logger),
	)

	guardOpts := []session.GuardOption{session.WithGuardLogger(s.logger)}
	managerOpts := []session.Option{session.WithLogger(s.logger)}
	if s.locker != nil {
		guardOpts = append(guardOpts, session.WithGuardLocker(s.locker))
		managerOpts = append(managerOpts, session.WithLocker(s.locker))
	}
	s.guard = session.NewGuard(guardOpts...)

	s.memory = domain.NewWorkingMemory(blueprint.Name, blueprint.Seed())
	if s.sessions != nil {
		if s.sessionID == "" {
			return nil, errors.New("session id is required with a transcript store")
		}
		s.transcripts = session.NewManager(s.sessions, managerOpts...)
		restored, err := s.transcripts.LoadOrStart(ctx, s.sessionID, blueprint)
		if err != nil {
			return nil, fmt.Errorf("failed to restore transcript: %w", err)
		}
		if restored.SoulName() != blueprint.Name {
			return nil, fmt.Errorf("transcript '%s' belongs to soul '%s'", s.sessionID, restored.SoulName())
		}
		s.memory = restored
	}

	s.logger.Debug("soul created", "soul", s.soulID, "entries", s.memory.Len(), "facts", len(s.facts.Keys()))
	return s, nil
}

// Name returns the soul's display name.
func (s *Soul) Name() string { return s.blueprint.Name }

// Blueprint returns the persona document the soul was created with.
func (s *Soul) Blueprint() domain.Blueprint { return s.blueprint }

// Facts returns the soul's SoulMemoryStore.
func (s *Soul) Facts() *soulmemory.Store { return s.facts }

// Memory returns the current WorkingMemory.
func (s *Soul) Memory() domain.WorkingMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory
}

// Busy reports whether a perception is in flight.
func (s *Soul) Busy() bool { return s.guard.Busy(s.soulID) }

// SetFact writes a fact from outside the mind. It enters the same guard as
// Perceive, so it fails with *domain.ReentrancyError while a perception is
// in flight instead of interleaving with the mind's own writes.
func (s *Soul) SetFact(ctx context.Context, key string, value any) error {
	return s.guard.Do(ctx, s.soulID, func(ctx context.Context) error {
		return s.facts.Set(ctx, key, value)
	})
}

// Perception is one top-level input.
type Perception struct {
	// Text is what the user said.
	Text string
	// Speaker is the optional user name recorded on the entry.
	Speaker string
	// Params is handed to the mind unchanged.
	Params process.Params
}

// Turn is the committed outcome of a perception.
type Turn struct {
	process.Result
	// Fallback reports that the mind failed and the fallback reply was committed.
	Fallback bool
	// Cause is the mind's error when Fallback is set.
	Cause error
}

// Perceive runs the mind on a new user entry. A perception arriving while
// another is in flight fails with *domain.ReentrancyError; the host queues.
// On failure the current memory is left untouched.
func (s *Soul) Perceive(ctx context.Context, p Perception) (Turn, error) {
	release, err := s.guard.Enter(ctx, s.soulID)
	if err != nil {
		s.emitPerception(ctx, 0, err, false)
		return Turn{}, err
	}
	defer release()

	start := time.Now()
	var entryOpts []domain.EntryOption
	if p.Speaker != "" {
		entryOpts = append(entryOpts, domain.WithName(p.Speaker))
	}
	input := s.Memory().WithMemory(domain.User(p.Text, entryOpts...))

	rt := process.NewRuntime(s.executor,
		process.WithFacts(s.facts),
		process.WithActionSink(s.sink),
		process.WithLifecycleHooks(s.hooks),
		process.WithLogger(s.logger),
	)

	res, err := process.Execute(ctx, rt, s.mind, input, p.Params)
	turn := Turn{Result: res}
	if err != nil {
		if s.fallback == "" || ctx.Err() != nil {
			s.emitPerception(ctx, time.Since(start), err, false)
			return Turn{}, err
		}
		s.logger.WarnContext(ctx, "mental process failed, committing fallback reply", "err", err)
		if speakErr := rt.Speak(ctx, s.fallback); speakErr != nil {
			s.logger.WarnContext(ctx, "failed to speak fallback reply", "err", speakErr)
		}
		turn = Turn{
			Result: process.Result{
				Memory:  input.WithMemory(domain.Assistant(s.fallback)),
				Path:    res.Path,
				Effects: rt.Effects(),
			},
			Fallback: true,
			Cause:    err,
		}
	}

	if s.transcripts != nil {
		if err := s.transcripts.Save(ctx, s.sessionID, turn.Memory); err != nil {
			s.emitPerception(ctx, time.Since(start), err, turn.Fallback)
			return Turn{}, fmt.Errorf("failed to save transcript: %w", err)
		}
	}

	s.mu.Lock()
	s.memory = turn.Memory
	s.mu.Unlock()

	s.emitPerception(ctx, time.Since(start), turn.Cause, turn.Fallback)
	return turn, nil
}

// Reset discards the conversation and starts again from the blueprint seed.
// Facts are kept.
func (s *Soul) Reset(ctx context.Context) error {
	release, err := s.guard.Enter(ctx, s.soulID)
	if err != nil {
		return err
	}
	defer release()

	fresh := domain.NewWorkingMemory(s.blueprint.Name, s.blueprint.Seed())
	if s.transcripts != nil {
		if err := s.transcripts.Save(ctx, s.sessionID, fresh); err != nil {
			return fmt.Errorf("failed to save transcript: %w", err)
		}
	}
	s.mu.Lock()
	s.memory = fresh
	s.mu.Unlock()
	return nil
}

func (s *Soul) emitPerception(ctx context.Context, d time.Duration, err error, fallback bool) {
	if s.hooks.OnPerception == nil {
		return
	}
	s.hooks.OnPerception(ctx, &domain.PerceptionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventPerception, Soul: s.soulID},
		Duration:  d,
		Err:       err,
		Fallback:  fallback,
	})
}
