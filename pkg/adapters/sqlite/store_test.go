package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/aretw0/anima/pkg/adapters/sqlite"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/aretw0/anima/pkg/soulmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteFactStore_Contract(t *testing.T) {
	store := open(t, filepath.Join(t.TempDir(), "anima.db"))
	ports.RunFactStoreContract(t, store)
}

func TestSQLiteTranscriptStore_Contract(t *testing.T) {
	store := open(t, filepath.Join(t.TempDir(), "anima.db"))
	ports.RunTranscriptStoreContract(t, store.Transcripts())
}

func TestSQLiteFactStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "anima.db")

	first := open(t, path)
	facts, err := soulmemory.Open(ctx, "Samantha", first)
	require.NoError(t, err)
	require.NoError(t, facts.Set(ctx, "userName", "Ada"))
	require.NoError(t, facts.Set(ctx, "topics", []string{"go", "sqlite"}))
	require.NoError(t, first.Close())

	second := open(t, path)
	facts, err = soulmemory.Open(ctx, "Samantha", second)
	require.NoError(t, err)

	name, ok := facts.GetString("userName")
	require.True(t, ok)
	assert.Equal(t, "Ada", name)

	var topics []string
	require.NoError(t, facts.Decode("topics", &topics))
	assert.Equal(t, []string{"go", "sqlite"}, topics)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, sqlite.Migrate(ctx, db))
	require.NoError(t, sqlite.Migrate(ctx, db))

	var version int
	require.NoError(t, db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, sqlite.SchemaVersion, version)
}
