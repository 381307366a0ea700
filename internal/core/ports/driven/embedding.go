package driven

import (
	"context"
)

// EmbeddingService generates fixed-dimension text embeddings
type EmbeddingService interface {
	// Embed generates passage embeddings for multiple texts, one vector per
	// input in the same order. A failure anywhere discards partial results.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query.
	// Asymmetric models frame queries differently from stored passages.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedding service
	Close() error
}
