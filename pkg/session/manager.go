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

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates transcript access, serializing operations per ID.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.TranscriptStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker       ports.Locker
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking. Acquisition polls TryLock until it
// succeeds or the context ends.
func WithLocker(locker ports.Locker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new transcript Manager over store.
func NewManager(store ports.TranscriptStore, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		locks:        make(map[string]*lockEntry),
		pollInterval: 50 * time.Millisecond,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// activeLocks reports how many lock entries are alive.
func (m *Manager) activeLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Load retrieves an existing transcript.
func (m *Manager) Load(ctx context.Context, id string) (domain.WorkingMemory, error) {
	var memory domain.WorkingMemory
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		memory, err = m.store.Load(ctx, id)
		return err
	})
	return memory, err
}

// LoadOrStart loads a transcript or, if none exists, persists and returns a
// fresh memory seeded with the blueprint.
func (m *Manager) LoadOrStart(ctx context.Context, id string, blueprint domain.Blueprint) (domain.WorkingMemory, error) {
	var memory domain.WorkingMemory
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		memory, err = m.store.Load(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTranscriptNotFound) {
			return fmt.Errorf("failed to check transcript existence: %w", err)
		}

		memory = domain.NewWorkingMemory(blueprint.Name, blueprint.Seed())
		if err := m.store.Save(ctx, id, memory); err != nil {
			return fmt.Errorf("failed to initialize transcript: %w", err)
		}
		return nil
	})
	return memory, err
}

// Save persists the transcript.
func (m *Manager) Save(ctx context.Context, id string, memory domain.WorkingMemory) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Save(ctx, id, memory)
	})
}

// Delete removes the transcript.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying transcript store.
func (m *Manager) Store() ports.TranscriptStore {
	return m.store
}

// WithLock executes fn while holding the lock for the transcript.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.lockDistributed(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"transcript", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) lockDistributed(ctx context.Context, id string) (ports.UnlockFunc, error) {
	key := "transcript:" + id
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		unlock, err := m.locker.TryLock(ctx, key, 30*time.Second)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrBusy) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
