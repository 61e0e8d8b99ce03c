package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/anima/pkg/domain"
)

// TranscriptStore implements ports.TranscriptStore with one JSON file per transcript.
type TranscriptStore struct {
	BasePath string
}

// NewTranscriptStore creates a transcript store rooted at basePath.
// If basePath is empty, it defaults to ".anima/transcripts".
func NewTranscriptStore(basePath string) *TranscriptStore {
	if basePath == "" {
		basePath = filepath.Join(".anima", "transcripts")
	}
	return &TranscriptStore{BasePath: basePath}
}

func (s *TranscriptStore) path(id string) string {
	return filepath.Join(s.BasePath, id+".json")
}

// Save persists the memory atomically.
func (s *TranscriptStore) Save(ctx context.Context, id string, memory domain.WorkingMemory) error {
	if err := validID("transcript id", id); err != nil {
		return err
	}
	data, err := json.MarshalIndent(memory, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return writeAtomic(s.path(id), data)
}

// Load reads the memory.
func (s *TranscriptStore) Load(ctx context.Context, id string) (domain.WorkingMemory, error) {
	if err := validID("transcript id", id); err != nil {
		return domain.WorkingMemory{}, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.WorkingMemory{}, domain.ErrTranscriptNotFound
		}
		return domain.WorkingMemory{}, fmt.Errorf("failed to read transcript file: %w", err)
	}

	var memory domain.WorkingMemory
	if err := json.Unmarshal(data, &memory); err != nil {
		return domain.WorkingMemory{}, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return memory, nil
}

// Delete removes the transcript file.
func (s *TranscriptStore) Delete(ctx context.Context, id string) error {
	if err := validID("transcript id", id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete transcript file: %w", err)
	}
	return nil
}

// List returns all transcript IDs.
func (s *TranscriptStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "tmp-") {
			continue
		}
		if id, ok := strings.CutSuffix(name, ".json"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
