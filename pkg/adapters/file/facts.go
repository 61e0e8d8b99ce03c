package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FactStore implements ports.FactStore with one JSON document per soul.
type FactStore struct {
	BasePath string
	mu       sync.Mutex
}

// NewFactStore creates a fact store rooted at basePath.
// If basePath is empty, it defaults to ".anima/facts".
func NewFactStore(basePath string) *FactStore {
	if basePath == "" {
		basePath = filepath.Join(".anima", "facts")
	}
	return &FactStore{BasePath: basePath}
}

func (s *FactStore) path(soulID string) string {
	return filepath.Join(s.BasePath, soulID+".json")
}

// Load reads the soul's facts.
func (s *FactStore) Load(ctx context.Context, soulID string) (map[string]json.RawMessage, error) {
	if err := validID("soulID", soulID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(soulID)
}

func (s *FactStore) read(soulID string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path(soulID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}

	facts := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal facts: %w", err)
	}
	return facts, nil
}

// Put rewrites the soul's document with key set to value. The file is synced
// to disk before Put returns.
func (s *FactStore) Put(ctx context.Context, soulID, key string, value json.RawMessage) error {
	if err := validID("soulID", soulID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	facts, err := s.read(soulID)
	if err != nil {
		return err
	}
	facts[key] = value

	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal facts: %w", err)
	}
	return writeAtomic(s.path(soulID), data)
}
