package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the checkpoint as a JSON file with write-then-replace
// semantics: the record is written to a temp file in the same directory and
// renamed over the target, so a crashed save leaves either the old or the
// new record, never a torn one.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed checkpoint store at path, creating the
// parent directory when needed.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted checkpoint. Absent or corrupt files yield the
// zero checkpoint.
func (s *FileStore) Load() (Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Checkpoint{}, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, nil
	}
	if cp.NextIndex < 0 {
		return Checkpoint{}, nil
	}
	return cp, nil
}

// Save fully rewrites the record atomically.
func (s *FileStore) Save(cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace checkpoint file: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}
