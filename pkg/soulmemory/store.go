// Package soulmemory implements the SoulMemoryStore: durable key/value facts
// scoped to one soul, independent of any WorkingMemory.
//
// Facts are loaded once when the store is opened. Set is write-through: it
// returns only after the backend persisted the value, and the in-memory view
// changes only when persistence succeeded.
package soulmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// Store is the fact view of one soul.
type Store struct {
	soulID  string
	backend ports.FactStore

	mu    sync.RWMutex
	facts map[string]any
}

// Open loads every fact of soulID from backend.
func Open(ctx context.Context, soulID string, backend ports.FactStore) (*Store, error) {
	raw, err := backend.Load(ctx, soulID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts for soul '%s': %w", soulID, err)
	}

	facts := make(map[string]any, len(raw))
	for key, value := range raw {
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("failed to decode fact '%s': %w", key, err)
		}
		facts[key] = v
	}
	return &Store{soulID: soulID, backend: backend, facts: facts}, nil
}

// SoulID returns the identity the facts are scoped to.
func (s *Store) SoulID() string { return s.soulID }

// Get returns the value stored under key. Values come back in their JSON
// shape: numbers are float64, lists are []any and objects are map[string]any.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.facts[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (s *Store) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// GetInt returns the value under key when it is a whole number.
func (s *Store) GetInt(key string) (int, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// Decode copies the value under key into out, which must be a pointer.
// Struct fields are matched by their json tags.
// Returns domain.ErrFactNotFound if the key is absent.
func (s *Store) Decode(key string, out any) error {
	v, ok := s.Get(key)
	if !ok {
		return fmt.Errorf("fact '%s': %w", key, domain.ErrFactNotFound)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode fact '%s': %w", key, err)
	}
	return nil
}

// Set persists value under key before returning. Last write wins.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("fact '%s' is not JSON-compatible: %w", key, err)
	}
	// Normalize through JSON so Get returns the same shape after a restart.
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("failed to normalize fact '%s': %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Put(ctx, s.soulID, key, raw); err != nil {
		return fmt.Errorf("failed to persist fact '%s': %w", key, err)
	}
	s.facts[key] = normalized
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.facts))
}

// Snapshot returns a copy of every fact.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.facts)
}
