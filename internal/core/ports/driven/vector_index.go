package driven

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// Match is one similarity-search hit, ordered best first.
type Match struct {
	ID       string
	Content  string
	Metadata domain.ChunkMetadata
	Score    float64
}

// VectorIndex handles chunk storage and similarity search against an
// external store (Chroma, or an in-memory index for single-node setups).
type VectorIndex interface {
	// EnsureReady creates the collection if absent (idempotent) and verifies
	// its dimensionality matches the embedder. A mismatch surfaces as
	// domain.ErrDimensionMismatch, never a silent truncation.
	EnsureReady(ctx context.Context) error

	// Upsert stores chunks with their embeddings and metadata.
	// All four slices share the same length and order.
	Upsert(ctx context.Context, ids []string, embeddings [][]float32, texts []string, metadatas []domain.ChunkMetadata) error

	// Query returns the topK most similar chunks, best match first.
	// Fewer than topK results is not an error.
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)

	// DeleteByDocument removes every chunk tagged with the document ID.
	DeleteByDocument(ctx context.Context, documentID string) error

	// ListDocuments returns the distinct documents present in the index,
	// derived from chunk metadata.
	ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error)

	// HealthCheck verifies the index is available
	HealthCheck(ctx context.Context) error
}
