package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileStore = (*LocalStore)(nil)

// LocalStore implements FileStore on the local filesystem. Uploaded files
// are written under a single base directory; names are sanitised so a
// crafted filename cannot escape it.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Save writes the reader's contents under name and returns the stored path.
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	path := filepath.Join(s.baseDir, sanitizeName(name))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close file: %w", err)
	}
	return path, nil
}

// Read returns the full contents of a previously saved file.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes a stored file. A missing file is not an error; cleanup
// after a failed ingestion may race with an explicit delete.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// sanitizeName strips directory components and path traversal from an
// uploaded filename.
func sanitizeName(name string) string {
	name = filepath.Base(filepath.Clean(name))
	name = strings.ReplaceAll(name, "..", "")
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	return name
}
