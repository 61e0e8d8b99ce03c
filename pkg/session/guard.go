package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can keep a soul busy.
const DefaultLockTTL = 2 * time.Minute

// Guard rejects reentrant perceptions.
type Guard struct {
	mu   sync.Mutex
	busy map[string]struct{}

	locker ports.Locker
	ttl    time.Duration
	logger *slog.Logger
}

// GuardOption configures the Guard.
type GuardOption func(*Guard)

// WithGuardLocker extends the guard across replicas.
func WithGuardLocker(locker ports.Locker) GuardOption {
	return func(g *Guard) {
		g.locker = locker
	}
}

// WithGuardTTL sets the distributed lock TTL.
func WithGuardTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		g.ttl = ttl
	}
}

// WithGuardLogger configures a logger for the Guard.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// NewGuard creates a guard.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		busy:   make(map[string]struct{}),
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enter marks soul as busy. It never waits: if the soul is busy here or on
// another replica it returns a *domain.ReentrancyError. The returned release
// function must be called exactly once.
func (g *Guard) Enter(ctx context.Context, soul string) (release func(), err error) {
	g.mu.Lock()
	if _, ok := g.busy[soul]; ok {
		g.mu.Unlock()
		return nil, &domain.ReentrancyError{Soul: soul}
	}
	g.busy[soul] = struct{}{}
	g.mu.Unlock()

	leave := func() {
		g.mu.Lock()
		delete(g.busy, soul)
		g.mu.Unlock()
	}

	if g.locker == nil {
		return leave, nil
	}

	unlock, err := g.locker.TryLock(ctx, soul, g.ttl)
	if err != nil {
		leave()
		if errors.Is(err, domain.ErrBusy) {
			return nil, &domain.ReentrancyError{Soul: soul}
		}
		return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
	}

	return func() {
		// The perception context may already be cancelled; release regardless.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			g.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"soul", soul,
				"err", err,
			)
		}
		leave()
	}, nil
}

// Do runs fn while soul is marked busy.
func (g *Guard) Do(ctx context.Context, soul string, fn func(context.Context) error) error {
	release, err := g.Enter(ctx, soul)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Busy reports whether soul is being processed by this guard.
func (g *Guard) Busy(soul string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.busy[soul]
	return ok
}
