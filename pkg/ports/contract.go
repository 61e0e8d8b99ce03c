package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/anima/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFactStoreContract runs a suite of tests to verify that a FactStore
// implementation adheres to the defined interface contract.
func RunFactStoreContract(t *testing.T, store FactStore) {
	ctx := context.Background()
	soulID := "contract-soul-" + time.Now().Format("20060102150405.000")

	t.Run("Load Empty", func(t *testing.T) {
		facts, err := store.Load(ctx, soulID+"-empty")
		require.NoError(t, err)
		assert.NotNil(t, facts)
		assert.Empty(t, facts)
	})

	t.Run("Put and Load", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, soulID, "userName", json.RawMessage(`"Ada"`)))
		require.NoError(t, store.Put(ctx, soulID, "conversationCount", json.RawMessage(`3`)))

		facts, err := store.Load(ctx, soulID)
		require.NoError(t, err)
		assert.JSONEq(t, `"Ada"`, string(facts["userName"]))
		assert.JSONEq(t, `3`, string(facts["conversationCount"]))
	})

	t.Run("Last Write Wins", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, soulID, "topics", json.RawMessage(`["go"]`)))
		require.NoError(t, store.Put(ctx, soulID, "topics", json.RawMessage(`["go","rust"]`)))

		facts, err := store.Load(ctx, soulID)
		require.NoError(t, err)
		assert.JSONEq(t, `["go","rust"]`, string(facts["topics"]))
	})

	t.Run("Souls Are Isolated", func(t *testing.T) {
		other := soulID + "-other"
		require.NoError(t, store.Put(ctx, other, "userName", json.RawMessage(`"Grace"`)))

		facts, err := store.Load(ctx, soulID)
		require.NoError(t, err)
		assert.JSONEq(t, `"Ada"`, string(facts["userName"]))
	})
}

// RunTranscriptStoreContract runs a suite of tests to verify that a
// TranscriptStore implementation adheres to the defined interface contract.
func RunTranscriptStoreContract(t *testing.T, store TranscriptStore) {
	ctx := context.Background()
	id := "contract-transcript-" + time.Now().Format("20060102150405.000")

	memory := domain.NewWorkingMemory("Samantha",
		domain.System("You are Samantha.", domain.WithRegion("core")),
		domain.User("hi", domain.WithName("Ada")),
		domain.Assistant("Samantha said: hello", domain.WithMetadata(map[string]any{"step": "reply"})),
	)

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, id, memory), "Save should not return error")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, memory.SoulName(), loaded.SoulName())
		require.Equal(t, memory.Len(), loaded.Len())
		for i, want := range memory.Entries() {
			got := loaded.Entries()[i]
			assert.Equal(t, want.ID(), got.ID())
			assert.Equal(t, want.Role(), got.Role())
			assert.Equal(t, want.Text(), got.Text())
			assert.Equal(t, want.Region(), got.Region())
		}
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+id)
		assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := id+"-1", id+"-2"
		require.NoError(t, store.Save(ctx, id1, memory))
		require.NoError(t, store.Save(ctx, id2, memory))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, id, memory))
		require.NoError(t, store.Delete(ctx, id))

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrTranscriptNotFound, "Load after Delete should return ErrTranscriptNotFound")

		assert.NoError(t, store.Delete(ctx, id), "deleting twice is not an error")
	})
}

// RunLockerContract runs a suite of tests to verify that a Locker
// implementation adheres to the defined interface contract.
func RunLockerContract(t *testing.T, locker Locker) {
	ctx := context.Background()
	key := "contract-lock-" + time.Now().Format("20060102150405.000")

	t.Run("Exclusive", func(t *testing.T) {
		unlock, err := locker.TryLock(ctx, key, time.Minute)
		require.NoError(t, err)

		_, err = locker.TryLock(ctx, key, time.Minute)
		assert.ErrorIs(t, err, domain.ErrBusy, "second TryLock must be rejected while held")

		require.NoError(t, unlock(ctx))

		unlock2, err := locker.TryLock(ctx, key, time.Minute)
		require.NoError(t, err, "lock must be available after unlock")
		require.NoError(t, unlock2(ctx))
	})

	t.Run("Independent Keys", func(t *testing.T) {
		u1, err := locker.TryLock(ctx, key+"-a", time.Minute)
		require.NoError(t, err)
		defer func() { _ = u1(ctx) }()

		u2, err := locker.TryLock(ctx, key+"-b", time.Minute)
		require.NoError(t, err)
		_ = u2(ctx)
	})
}
