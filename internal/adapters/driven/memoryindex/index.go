package memoryindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*Index)(nil)

type record struct {
	id        string
	embedding []float32
	content   string
	metadata  domain.ChunkMetadata
}

// Index is an in-memory VectorIndex using cosine similarity. It is the
// zero-infrastructure fallback for development and tests; contents are lost
// on restart.
type Index struct {
	dimensions int

	mu      sync.RWMutex
	records map[string]record
}

// NewIndex creates an in-memory vector index.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}
	return &Index{
		dimensions: dimensions,
		records:    make(map[string]record),
	}, nil
}

// EnsureReady is a no-op beyond validating construction already did.
func (i *Index) EnsureReady(ctx context.Context) error {
	return nil
}

// Upsert stores chunk embeddings, replacing any existing entries by ID.
func (i *Index) Upsert(ctx context.Context, ids []string, embeddings [][]float32, contents []string, metadatas []domain.ChunkMetadata) error {
	if len(embeddings) != len(ids) || len(contents) != len(ids) || len(metadatas) != len(ids) {
		return fmt.Errorf("%w: ids, embeddings, contents and metadatas must have equal length", domain.ErrInvalidInput)
	}
	for _, e := range embeddings {
		if len(e) != i.dimensions {
			return fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, i.dimensions, len(e))
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for n, id := range ids {
		i.records[id] = record{
			id:        id,
			embedding: embeddings[n],
			content:   contents[n],
			metadata:  metadatas[n],
		}
	}
	return nil
}

// Query returns the topK most similar chunks by cosine similarity.
// Score is reported as cosine distance to match the Chroma adapter.
func (i *Index) Query(ctx context.Context, embedding []float32, topK int) ([]driven.Match, error) {
	if len(embedding) != i.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, i.dimensions, len(embedding))
	}
	if topK <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	matches := make([]driven.Match, 0, len(i.records))
	for _, rec := range i.records {
		matches = append(matches, driven.Match{
			ID:       rec.id,
			Content:  rec.content,
			Metadata: rec.metadata,
			Score:    1 - cosineSimilarity(embedding, rec.embedding),
		})
	}
	i.mu.RUnlock()

	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Score < matches[b].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByDocument removes every chunk belonging to the document.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, rec := range i.records {
		if rec.metadata.DocumentID == documentID {
			delete(i.records, id)
		}
	}
	return nil
}

// ListDocuments returns the distinct documents present in the index.
func (i *Index) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	seen := make(map[string]bool)
	docs := make([]domain.DocumentInfo, 0)
	for _, rec := range i.records {
		if rec.metadata.DocumentID == "" || seen[rec.metadata.DocumentID] {
			continue
		}
		seen[rec.metadata.DocumentID] = true
		docs = append(docs, domain.DocumentInfo{
			DocumentID: rec.metadata.DocumentID,
			Source:     rec.metadata.Source,
		})
	}

	sort.Slice(docs, func(a, b int) bool {
		return docs[a].DocumentID < docs[b].DocumentID
	})
	return docs, nil
}

// HealthCheck always succeeds for the in-memory index.
func (i *Index) HealthCheck(ctx context.Context) error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for n := range a {
		dot += float64(a[n]) * float64(b[n])
		normA += float64(a[n]) * float64(a[n])
		normB += float64(b[n]) * float64(b[n])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
