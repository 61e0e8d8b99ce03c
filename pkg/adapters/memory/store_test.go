package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/anima/pkg/adapters/memory"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactStore_Contract(t *testing.T) {
	ports.RunFactStoreContract(t, memory.NewFactStore())
}

func TestTranscriptStore_Contract(t *testing.T) {
	ports.RunTranscriptStoreContract(t, memory.NewTranscriptStore())
}

func TestLocker_Contract(t *testing.T) {
	ports.RunLockerContract(t, memory.NewLocker())
}

func TestLocker_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	locker := memory.NewLocker()

	staleUnlock, err := locker.TryLock(ctx, "soul", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	unlock, err := locker.TryLock(ctx, "soul", time.Minute)
	require.NoError(t, err, "expired lease must not block")

	// The stale holder must not release the new lease.
	require.NoError(t, staleUnlock(ctx))
	_, err = locker.TryLock(ctx, "soul", time.Minute)
	assert.ErrorIs(t, err, domain.ErrBusy)

	require.NoError(t, unlock(ctx))
}
