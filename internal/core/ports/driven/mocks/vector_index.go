package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

type indexedChunk struct {
	id        string
	embedding []float32
	content   string
	metadata  domain.ChunkMetadata
}

// MockVectorIndex is a mock implementation of VectorIndex for testing.
// Query returns chunks in insertion order rather than by similarity; tests
// that care about ranking preload Matches instead.
type MockVectorIndex struct {
	mu     sync.RWMutex
	chunks []indexedChunk

	// Matches, when set, is returned verbatim from Query
	Matches []driven.Match

	QueryErr  error
	UpsertErr error
}

// NewMockVectorIndex creates a new MockVectorIndex
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{}
}

func (m *MockVectorIndex) EnsureReady(ctx context.Context) error {
	return nil
}

func (m *MockVectorIndex) Upsert(ctx context.Context, ids []string, embeddings [][]float32, contents []string, metadatas []domain.ChunkMetadata) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for n, id := range ids {
		m.chunks = append(m.chunks, indexedChunk{
			id:        id,
			embedding: embeddings[n],
			content:   contents[n],
			metadata:  metadatas[n],
		})
	}
	return nil
}

func (m *MockVectorIndex) Query(ctx context.Context, embedding []float32, topK int) ([]driven.Match, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Matches != nil {
		if len(m.Matches) > topK {
			return m.Matches[:topK], nil
		}
		return m.Matches, nil
	}

	matches := make([]driven.Match, 0, topK)
	for _, c := range m.chunks {
		if len(matches) >= topK {
			break
		}
		matches = append(matches, driven.Match{
			ID:       c.id,
			Content:  c.content,
			Metadata: c.metadata,
		})
	}
	return matches, nil
}

func (m *MockVectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.metadata.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *MockVectorIndex) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	docs := make([]domain.DocumentInfo, 0)
	for _, c := range m.chunks {
		if c.metadata.DocumentID == "" || seen[c.metadata.DocumentID] {
			continue
		}
		seen[c.metadata.DocumentID] = true
		docs = append(docs, domain.DocumentInfo{
			DocumentID: c.metadata.DocumentID,
			Source:     c.metadata.Source,
		})
	}
	return docs, nil
}

func (m *MockVectorIndex) HealthCheck(ctx context.Context) error {
	return nil
}

// Helper methods for testing

func (m *MockVectorIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MockVectorIndex) Contents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	contents := make([]string, len(m.chunks))
	for i, c := range m.chunks {
		contents[i] = c.content
	}
	return contents
}
