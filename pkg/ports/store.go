package ports

import (
	"context"
	"encoding/json"

	"github.com/aretw0/anima/pkg/domain"
)

// FactStore is the durable backend of a SoulMemoryStore.
// Put must not return before the value is persisted.
type FactStore interface {
	// Load returns every fact stored for the soul. A soul without facts yields
	// an empty, non-nil map.
	Load(ctx context.Context, soulID string) (map[string]json.RawMessage, error)

	// Put persists a single fact, overwriting any previous value.
	Put(ctx context.Context, soulID, key string, value json.RawMessage) error
}

// TranscriptStore persists WorkingMemory between host sessions.
type TranscriptStore interface {
	// Save persists the memory under the given transcript ID.
	Save(ctx context.Context, id string, memory domain.WorkingMemory) error

	// Load retrieves a memory.
	// Returns domain.ErrTranscriptNotFound if the transcript does not exist.
	Load(ctx context.Context, id string) (domain.WorkingMemory, error)

	// Delete removes a transcript. Deleting a missing transcript is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored transcripts.
	List(ctx context.Context) ([]string, error)
}
