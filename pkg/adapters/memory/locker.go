package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
)

// Locker implements ports.Locker within a single process.
// Expired locks are reclaimed lazily on the next TryLock.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	now   func() time.Time
	token uint64
}

type lease struct {
	token   uint64
	expires time.Time
}

// NewLocker creates a new in-memory locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]lease), now: time.Now}
}

// TryLock acquires key or fails with domain.ErrBusy.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && (cur.expires.IsZero() || now.Before(cur.expires)) {
		return nil, domain.ErrBusy
	}

	l.token++
	mine := lease{token: l.token}
	if ttl > 0 {
		mine.expires = now.Add(ttl)
	}
	l.held[key] = mine

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Only release our own lease; it may have expired and been re-acquired.
		if cur, ok := l.held[key]; ok && cur.token == mine.token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
