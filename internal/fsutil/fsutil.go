// Package fsutil provides crash-safe file writes for run artifacts.
//
// Feedback files, review reports, and metrics are read by the next
// iteration (or by humans mid-run), so a partially written file is worse
// than a missing one. Every write here goes through a same-directory
// temp file and a rename.
package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic writes data to path so that readers see either the old
// content or the new content, never a torn write. Parent directories are
// created as needed.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsutil: mkdir %s: %w", dir, err)
	}

	// Same directory as the target, so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.partial")
	if err != nil {
		return fmt.Errorf("fsutil: stage %s: %w", path, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: stage %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsutil: stage %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("fsutil: commit %s: %w", path, err)
	}
	tmpName = "" // committed, nothing to clean up
	return nil
}

// WriteJSON writes v as two-space-indented JSON to path atomically.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsutil: encode %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteAtomic(path, data)
}

// ReadJSON reads the JSON file at path into v. Missing files surface the
// raw os error so callers can test with os.IsNotExist.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("fsutil: decode %s: %w", path, err)
	}
	return nil
}
