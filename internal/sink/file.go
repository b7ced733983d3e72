package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ ObjectStore = (*FileStore)(nil)

// FileStore writes objects below a local directory. Objects are written to
// a temporary file and renamed into place, so readers never see a partial
// object.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Put writes body to basePath/key.
func (s *FileStore) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.basePath, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return os.Rename(tmp.Name(), target)
}

// Location returns a file:// URI.
func (s *FileStore) Location(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.basePath, key))
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
