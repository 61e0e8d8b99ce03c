package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/anima/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// TranscriptStore implements ports.TranscriptStore using Redis.
// Transcripts are JSON strings indexed by a sorted set scored by expiry.
type TranscriptStore struct {
	client *backend.Client
	cfg    config
}

// NewTranscriptStore creates a transcript store on an existing client.
func NewTranscriptStore(client *backend.Client, opts ...Option) *TranscriptStore {
	return &TranscriptStore{client: client, cfg: newConfig(opts)}
}

func (s *TranscriptStore) key(id string) string {
	return s.cfg.prefix + "transcript:" + id
}

func (s *TranscriptStore) indexKey() string {
	return s.cfg.prefix + "transcript:index"
}

// Save persists the transcript.
func (s *TranscriptStore) Save(ctx context.Context, id string, memory domain.WorkingMemory) error {
	data, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(id), data, s.cfg.ttl)

	score := float64(time.Now().Add(s.cfg.ttl).Unix())
	if s.cfg.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: id})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save transcript to redis: %w", err)
	}
	return nil
}

// Load retrieves the transcript.
func (s *TranscriptStore) Load(ctx context.Context, id string) (domain.WorkingMemory, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.WorkingMemory{}, domain.ErrTranscriptNotFound
		}
		return domain.WorkingMemory{}, fmt.Errorf("failed to get transcript from redis: %w", err)
	}

	var memory domain.WorkingMemory
	if err := json.Unmarshal(val, &memory); err != nil {
		return domain.WorkingMemory{}, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return memory, nil
}

// Delete removes the transcript.
func (s *TranscriptStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live transcript IDs, pruning expired ones from the index.
func (s *TranscriptStore) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired transcripts: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	return ids, nil
}
