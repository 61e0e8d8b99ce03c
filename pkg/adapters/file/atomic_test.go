package file

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_DestinationNeverMissing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows replaces by remove and rename")
	}
	dir := t.TempDir()
	dest := filepath.Join(dir, "Samantha.json")
	require.NoError(t, writeAtomic(dest, []byte(`{"userName":"Ada"}`)))

	var seen []byte
	t.Cleanup(func() { rename = os.Rename })
	rename = func(oldpath, newpath string) error {
		data, err := os.ReadFile(newpath)
		require.NoError(t, err, "old document must still be in place when the new one replaces it")
		seen = data
		return os.Rename(oldpath, newpath)
	}

	require.NoError(t, writeAtomic(dest, []byte(`{"userName":"Grace"}`)))
	assert.JSONEq(t, `{"userName":"Ada"}`, string(seen))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userName":"Grace"}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteAtomic_FailedRenameKeepsOldDocument(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows replaces by remove and rename")
	}
	dir := t.TempDir()
	dest := filepath.Join(dir, "Samantha.json")
	require.NoError(t, writeAtomic(dest, []byte(`{"n":1}`)))

	t.Cleanup(func() { rename = os.Rename })
	rename = func(string, string) error { return os.ErrPermission }

	err := writeAtomic(dest, []byte(`{"n":2}`))
	require.ErrorIs(t, err, os.ErrPermission)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
