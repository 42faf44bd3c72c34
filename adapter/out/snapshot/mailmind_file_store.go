package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"
)

// FileStore keeps the snapshot in a single file on disk.
type FileStore struct {
	path   string
	format Format
}

// NewFileStore returns a store for path; the extension selects JSON or YAML.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, format: FormatFor(path)}
}

func (s *FileStore) Path() string { return s.path }

// Save replaces the file atomically: readers see the old or the new document,
// never a partial one.
func (s *FileStore) Save(ctx context.Context, snap *domain.SkillSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(snap, s.format)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads the file. A missing file is out.ErrNoSnapshot.
func (s *FileStore) Load(ctx context.Context) (*domain.SkillSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, out.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return Decode(data, s.format)
}

var _ out.SnapshotStore = (*FileStore)(nil)
