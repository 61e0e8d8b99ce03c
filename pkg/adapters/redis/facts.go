package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// FactStore implements ports.FactStore using one Redis hash per soul.
type FactStore struct {
	client *backend.Client
	cfg    config
}

// NewFactStore creates a fact store on an existing client.
func NewFactStore(client *backend.Client, opts ...Option) *FactStore {
	return &FactStore{client: client, cfg: newConfig(opts)}
}

func (s *FactStore) key(soulID string) string {
	return s.cfg.prefix + "facts:" + soulID
}

// Load returns every fact of the soul.
func (s *FactStore) Load(ctx context.Context, soulID string) (map[string]json.RawMessage, error) {
	vals, err := s.client.HGetAll(ctx, s.key(soulID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load facts from redis: %w", err)
	}
	facts := make(map[string]json.RawMessage, len(vals))
	for k, v := range vals {
		facts[k] = json.RawMessage(v)
	}
	return facts, nil
}

// Put writes one fact. Redis acknowledges the write before Put returns.
func (s *FactStore) Put(ctx context.Context, soulID, key string, value json.RawMessage) error {
	if err := s.client.HSet(ctx, s.key(soulID), key, []byte(value)).Err(); err != nil {
		return fmt.Errorf("failed to save fact to redis: %w", err)
	}
	return nil
}
