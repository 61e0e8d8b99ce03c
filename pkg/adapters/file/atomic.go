// Package file implements the storage ports on the local filesystem.
// Every write goes through a synced temp file renamed over the document, and
// the directory is synced after the rename. On POSIX systems a crash leaves
// either the old or the new document on disk, never a partial or missing one.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// validID rejects IDs that would escape the store directory.
func validID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%s %q contains path separators", kind, id)
	}
	return nil
}

// writeAtomic writes data to destPath via a synced temp file in the same directory.
func writeAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-"+filepath.Base(destPath)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := replaceFile(tmpPath, destPath); err != nil {
		return err
	}
	return syncDir(dir)
}

// rename is swapped in tests to observe the destination at replace time.
var rename = os.Rename

// replaceFile moves tmpPath over destPath. POSIX rename replaces the target
// atomically; Windows refuses an existing target, so it is removed first there.
func replaceFile(tmpPath, destPath string) error {
	if runtime.GOOS == "windows" {
		if err := os.Remove(destPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove existing file for overwrite: %w", err)
		}
	}
	if err := rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// syncDir persists the directory entry written by the rename.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to fsync directory: %w", err)
	}
	return nil
}
