package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// UploadRequest carries an accepted multipart upload.
type UploadRequest struct {
	Filename string
	MimeType string
	Content  io.Reader
}

// UploadResponse is returned once the document is persisted and queued.
type UploadResponse struct {
	DocumentID string `json:"documentId"`
	Status     string `json:"status"` // always "QUEUED"
}

// DocumentService manages uploaded documents and their ingestion lifecycle.
type DocumentService interface {
	// Upload validates the MIME type, persists the raw bytes and enqueues an
	// ingestion job. The only synchronous work is saving and enqueueing, so
	// request latency stays bounded regardless of document size.
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)

	// Status reports the ingestion job state for a document.
	// Safe to call redundantly; reads have no side effects.
	Status(ctx context.Context, documentID string) (*domain.JobState, error)

	// List returns the documents currently present in the vector index.
	List(ctx context.Context) ([]domain.DocumentInfo, error)

	// Delete removes a document's job record, raw file and every
	// vector-index entry tagged with its ID.
	Delete(ctx context.Context, documentID string) error
}
