package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/anima/pkg/domain"
)

// TranscriptStore implements ports.TranscriptStore in memory.
// WorkingMemory values are immutable, so they are stored as-is.
type TranscriptStore struct {
	data map[string]domain.WorkingMemory
	mu   sync.RWMutex
}

// NewTranscriptStore creates a new in-memory transcript store.
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{
		data: make(map[string]domain.WorkingMemory),
	}
}

// Save persists the memory.
func (s *TranscriptStore) Save(ctx context.Context, id string, memory domain.WorkingMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = memory
	return nil
}

// Load retrieves the memory.
func (s *TranscriptStore) Load(ctx context.Context, id string) (domain.WorkingMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memory, ok := s.data[id]
	if !ok {
		return domain.WorkingMemory{}, domain.ErrTranscriptNotFound
	}
	return memory, nil
}

// Delete removes the memory.
func (s *TranscriptStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns stored transcript IDs in sorted order.
func (s *TranscriptStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
