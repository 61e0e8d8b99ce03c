package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

// FactStore implements ports.FactStore in memory.
// Safe for concurrent use. Facts do not survive the process.
type FactStore struct {
	data map[string]map[string]json.RawMessage
	mu   sync.RWMutex
}

// NewFactStore creates a new in-memory fact store.
func NewFactStore() *FactStore {
	return &FactStore{
		data: make(map[string]map[string]json.RawMessage),
	}
}

// Load returns a copy of the soul's facts.
func (s *FactStore) Load(ctx context.Context, soulID string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make(map[string]json.RawMessage, len(s.data[soulID]))
	for k, v := range s.data[soulID] {
		facts[k] = slices.Clone(v)
	}
	return facts, nil
}

// Put stores a copy of value.
func (s *FactStore) Put(ctx context.Context, soulID, key string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[soulID] == nil {
		s.data[soulID] = make(map[string]json.RawMessage)
	}
	s.data[soulID][key] = slices.Clone(value)
	return nil
}
