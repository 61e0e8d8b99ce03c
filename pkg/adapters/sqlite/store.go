// Package sqlite implements the fact and transcript ports on SQLite through
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/anima/pkg/domain"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for facts and transcripts.
// It satisfies ports.FactStore; Transcripts returns the transcript view.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer keeps Put strictly serialized.
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// New returns a Store bound to an existing, migrated database handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns every fact of the soul.
func (s *Store) Load(ctx context.Context, soulID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM soul_facts WHERE soul_id = ?`, soulID)
	if err != nil {
		return nil, fmt.Errorf("load facts: query: %w", err)
	}
	defer rows.Close()

	facts := map[string]json.RawMessage{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("load facts: scan: %w", err)
		}
		facts[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load facts: rows: %w", err)
	}
	return facts, nil
}

// Put upserts one fact. The statement is committed before Put returns.
func (s *Store) Put(ctx context.Context, soulID, key string, value json.RawMessage) error {
	if soulID == "" {
		return fmt.Errorf("put fact: soul id is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO soul_facts (soul_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(soul_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		soulID, key, string(value), now)
	if err != nil {
		return fmt.Errorf("put fact: upsert: %w", err)
	}
	return nil
}

// Transcripts returns a ports.TranscriptStore over the same database.
func (s *Store) Transcripts() *TranscriptStore {
	return &TranscriptStore{db: s.db}
}

// TranscriptStore implements ports.TranscriptStore on the transcripts table.
type TranscriptStore struct {
	db *sql.DB
}

// Save upserts the transcript.
func (t *TranscriptStore) Save(ctx context.Context, id string, memory domain.WorkingMemory) error {
	body, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("save transcript: marshal: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, soul_name, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET soul_name = excluded.soul_name, body = excluded.body, updated_at = excluded.updated_at`,
		id, memory.SoulName(), string(body), now)
	if err != nil {
		return fmt.Errorf("save transcript: upsert: %w", err)
	}
	return nil
}

// Load reads the transcript.
func (t *TranscriptStore) Load(ctx context.Context, id string) (domain.WorkingMemory, error) {
	var body string
	err := t.db.QueryRowContext(ctx, `SELECT body FROM transcripts WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkingMemory{}, domain.ErrTranscriptNotFound
	}
	if err != nil {
		return domain.WorkingMemory{}, fmt.Errorf("load transcript: query: %w", err)
	}

	var memory domain.WorkingMemory
	if err := json.Unmarshal([]byte(body), &memory); err != nil {
		return domain.WorkingMemory{}, fmt.Errorf("load transcript: unmarshal: %w", err)
	}
	return memory, nil
}

// Delete removes the transcript.
func (t *TranscriptStore) Delete(ctx context.Context, id string) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

// List returns transcript IDs, most recently updated first.
func (t *TranscriptStore) List(ctx context.Context) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT id FROM transcripts ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: query: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list transcripts: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
