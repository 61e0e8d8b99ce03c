package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// Locker defines the interface for distributed busy guards.
// It lets the session guard reject a perception that another replica is
// already processing for the same soul.
type Locker interface {
	// TryLock acquires the lock for key without waiting.
	// It returns domain.ErrBusy if the lock is held elsewhere. The lock expires
	// after ttl even if never released, so a crashed replica cannot wedge a soul.
	// Returns an UnlockFunc that MUST be called to release the lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
