package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"stockbars/internal/model"
)

// LocalStore writes artifacts to a directory on the local filesystem.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the output directory when needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Exists reports whether a non-empty artifact is already present.
func (s *LocalStore) Exists(ctx context.Context, code string) (bool, error) {
	info, err := os.Stat(s.path(code))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Size() > 0, nil
}

// Save writes the artifact with write-then-replace semantics so a crash
// mid-write never leaves a half artifact that a later run would skip over.
func (s *LocalStore) Save(ctx context.Context, code string, bars model.Bars) error {
	data, err := EncodeCSV(bars)
	if err != nil {
		return err
	}

	target := s.path(code)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

func (s *LocalStore) path(code string) string {
	return filepath.Join(s.dir, ArtifactName(code))
}
