package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/anima/pkg/adapters/file"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/aretw0/anima/pkg/soulmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactStore_Contract(t *testing.T) {
	ports.RunFactStoreContract(t, file.NewFactStore(t.TempDir()))
}

func TestTranscriptStore_Contract(t *testing.T) {
	ports.RunTranscriptStoreContract(t, file.NewTranscriptStore(t.TempDir()))
}

func TestFactStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := soulmemory.Open(ctx, "Samantha", file.NewFactStore(dir))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "userName", "Ada"))
	require.NoError(t, first.Set(ctx, "conversationCount", 2))

	// A new store instance over the same directory simulates a restart.
	second, err := soulmemory.Open(ctx, "Samantha", file.NewFactStore(dir))
	require.NoError(t, err)

	name, ok := second.GetString("userName")
	require.True(t, ok)
	assert.Equal(t, "Ada", name)

	count, ok := second.GetInt("conversationCount")
	require.True(t, ok)
	assert.Equal(t, 2, count)

	// Nothing but the document is left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Samantha.json", entries[0].Name())
}

func TestFactStore_RejectsPathTraversal(t *testing.T) {
	store := file.NewFactStore(t.TempDir())
	err := store.Put(context.Background(), "../escape", "k", json.RawMessage(`1`))
	assert.Error(t, err)

	_, err = store.Load(context.Background(), "")
	assert.Error(t, err)
}

func TestTranscriptStore_IgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.NewTranscriptStore(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", domain.NewWorkingMemory("Samantha", domain.System("persona"))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-s2.json-123"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}
