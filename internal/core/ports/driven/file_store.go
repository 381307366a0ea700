package driven

import (
	"context"
	"io"
)

// FileStore persists raw uploads in a location addressable by both the
// request-accepting process and the ingestion worker.
type FileStore interface {
	// Save writes the upload and returns its storage path.
	Save(ctx context.Context, name string, r io.Reader) (string, error)

	// Read returns the raw bytes at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete removes the stored file. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error
}
