// Package memory provides mutex-guarded in-process stores. When a data
// directory is configured each store persists its full state as a JSON file
// after every mutation, replacing the file atomically.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// snapshotFile is one JSON document on disk. The zero value (empty path)
// keeps state in memory only.
type snapshotFile struct {
	path string
}

func newSnapshotFile(dir, name string) snapshotFile {
	if dir == "" {
		return snapshotFile{}
	}
	return snapshotFile{path: filepath.Join(dir, name)}
}

func (f snapshotFile) enabled() bool {
	return f.path != ""
}

// load decodes the file into v. It reports false when the file does not exist.
func (f snapshotFile) load(v any) (bool, error) {
	if !f.enabled() {
		return false, nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return true, nil
}

// save writes v to a temporary file in the same directory and renames it over
// the target, so readers see either the old or the new document.
func (f snapshotFile) save(v any) error {
	if !f.enabled() {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", f.path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
