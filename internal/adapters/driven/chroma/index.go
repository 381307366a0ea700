package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*Index)(nil)

const (
	// Metadata key recording the embedding dimension the collection was
	// created with. A restart with a different embedding model must fail
	// loudly rather than mix vector spaces.
	dimensionMetaKey = "embedding_dimension"

	metadataDocumentIDKey = "documentId"
	metadataSourceKey     = "source"
)

// Index implements VectorIndex against a Chroma server over its REST API.
type Index struct {
	baseURL    string
	collection string
	dimensions int
	client     *http.Client

	mu           sync.Mutex
	collectionID string
}

// Config configures the Chroma adapter.
type Config struct {
	// URL is the Chroma server base URL (http://localhost:8000)
	URL string

	// Collection is the collection name documents are stored under
	Collection string

	// Dimensions is the embedding dimension enforced on the collection
	Dimensions int
}

// NewIndex creates a new Chroma-backed vector index.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("chroma url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("chroma collection name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}

	return &Index{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type collectionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// EnsureReady creates the collection if needed and verifies its recorded
// embedding dimension matches the configured one.
func (i *Index) EnsureReady(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.collectionID != "" {
		return nil
	}

	var col collectionResponse
	err := i.doJSON(ctx, http.MethodPost, "/api/v1/collections", map[string]any{
		"name":          i.collection,
		"get_or_create": true,
		"metadata": map[string]any{
			dimensionMetaKey: i.dimensions,
		},
	}, &col)
	if err != nil {
		return fmt.Errorf("get or create collection: %w", err)
	}

	// get_or_create returns existing metadata untouched, so an old
	// collection reports the dimension it was created with.
	if raw, ok := col.Metadata[dimensionMetaKey]; ok {
		if stored, ok := raw.(float64); ok && int(stored) != i.dimensions {
			return fmt.Errorf("%w: collection %q has dimension %d, embedder produces %d",
				domain.ErrDimensionMismatch, i.collection, int(stored), i.dimensions)
		}
	}

	i.collectionID = col.ID
	return nil
}

func (i *Index) collectionPath(ctx context.Context, suffix string) (string, error) {
	i.mu.Lock()
	id := i.collectionID
	i.mu.Unlock()

	if id == "" {
		if err := i.EnsureReady(ctx); err != nil {
			return "", err
		}
		i.mu.Lock()
		id = i.collectionID
		i.mu.Unlock()
	}
	return "/api/v1/collections/" + id + suffix, nil
}

// Upsert stores chunk embeddings with their text and metadata.
func (i *Index) Upsert(ctx context.Context, ids []string, embeddings [][]float32, contents []string, metadatas []domain.ChunkMetadata) error {
	if len(ids) == 0 {
		return nil
	}
	if len(embeddings) != len(ids) || len(contents) != len(ids) || len(metadatas) != len(ids) {
		return fmt.Errorf("%w: ids, embeddings, contents and metadatas must have equal length", domain.ErrInvalidInput)
	}

	metas := make([]map[string]any, len(metadatas))
	for n, m := range metadatas {
		metas[n] = map[string]any{
			metadataSourceKey:     m.Source,
			metadataDocumentIDKey: m.DocumentID,
		}
	}

	path, err := i.collectionPath(ctx, "/upsert")
	if err != nil {
		return err
	}
	if err := i.doJSON(ctx, http.MethodPost, path, map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  contents,
		"metadatas":  metas,
	}, nil); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query returns the topK nearest chunks for the embedding.
func (i *Index) Query(ctx context.Context, embedding []float32, topK int) ([]driven.Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	path, err := i.collectionPath(ctx, "/query")
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := i.doJSON(ctx, http.MethodPost, path, map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}, &resp); err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}

	if len(resp.IDs) == 0 {
		return nil, nil
	}

	matches := make([]driven.Match, 0, len(resp.IDs[0]))
	for n, id := range resp.IDs[0] {
		match := driven.Match{ID: id}

		if len(resp.Documents) > 0 && n < len(resp.Documents[0]) && resp.Documents[0][n] != nil {
			match.Content = *resp.Documents[0][n]
		}
		if len(resp.Metadatas) > 0 && n < len(resp.Metadatas[0]) {
			match.Metadata = chunkMetadata(resp.Metadatas[0][n])
		}
		if len(resp.Distances) > 0 && n < len(resp.Distances[0]) {
			match.Score = resp.Distances[0][n]
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// DeleteByDocument removes every chunk belonging to the document.
// Deleting an unknown document is not an error.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	path, err := i.collectionPath(ctx, "/delete")
	if err != nil {
		return err
	}
	if err := i.doJSON(ctx, http.MethodPost, path, map[string]any{
		"where": map[string]any{metadataDocumentIDKey: documentID},
	}, nil); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	return nil
}

type getResponse struct {
	IDs       []string         `json:"ids"`
	Metadatas []map[string]any `json:"metadatas"`
}

// ListDocuments returns the distinct documents present in the index.
func (i *Index) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	path, err := i.collectionPath(ctx, "/get")
	if err != nil {
		return nil, err
	}

	var resp getResponse
	if err := i.doJSON(ctx, http.MethodPost, path, map[string]any{
		"include": []string{"metadatas"},
	}, &resp); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	seen := make(map[string]bool)
	docs := make([]domain.DocumentInfo, 0)
	for _, meta := range resp.Metadatas {
		m := chunkMetadata(meta)
		if m.DocumentID == "" || seen[m.DocumentID] {
			continue
		}
		seen[m.DocumentID] = true
		docs = append(docs, domain.DocumentInfo{
			DocumentID: m.DocumentID,
			Source:     m.Source,
		})
	}
	return docs, nil
}

// HealthCheck verifies the Chroma server is reachable.
func (i *Index) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chroma unhealthy (%d)", resp.StatusCode)
	}
	return nil
}

func (i *Index) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chroma request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func chunkMetadata(meta map[string]any) domain.ChunkMetadata {
	var m domain.ChunkMetadata
	if v, ok := meta[metadataSourceKey].(string); ok {
		m.Source = v
	}
	if v, ok := meta[metadataDocumentIDKey].(string); ok {
		m.DocumentID = v
	}
	return m
}
