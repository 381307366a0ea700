package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Ensure E5Embedding implements EmbeddingService
var _ driven.EmbeddingService = (*E5Embedding)(nil)

// Embedding request shaping. Texts are truncated before embedding to satisfy
// model input limits, and batches are submitted sequentially to bound memory
// and respect the endpoint's rate limits.
const (
	defaultEmbedBatchSize = 32
	maxEmbedChars         = 1000
)

// E5Embedding implements EmbeddingService against a feature-extraction HTTP
// endpoint (POST {"texts": [...]} -> [[float32]]), such as a local
// sentence-transformers sidecar.
//
// For asymmetric models (e5 family) stored passages and live queries are
// framed with "passage: " / "query: " prefixes; symmetric models leave
// Prefixed disabled and both roles share one framing.
type E5Embedding struct {
	endpoint   string
	model      string
	dimensions int
	batchSize  int
	prefixed   bool
	client     *http.Client
}

// E5Config configures the embedding adapter.
type E5Config struct {
	Endpoint   string
	Model      string
	Dimensions int
	BatchSize  int
	Prefixed   bool
}

// DefaultE5Config returns defaults for a local all-MiniLM-L6-v2 sidecar.
func DefaultE5Config(endpoint string) E5Config {
	return E5Config{
		Endpoint:   endpoint,
		Model:      "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions: 384,
		BatchSize:  defaultEmbedBatchSize,
	}
}

// NewE5Embedding creates a new embedding service.
func NewE5Embedding(cfg E5Config) (*E5Embedding, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}

	return &E5Embedding{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		prefixed:   cfg.Prefixed,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

// Embed generates passage embeddings, one vector per input in input order.
// Any batch failure aborts the whole call; partial results are discarded and
// callers re-embed from scratch on retry.
func (e *E5Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, "passage")
}

// EmbedQuery generates an embedding for a search query.
func (e *E5Embedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.embed(ctx, []string{query}, "query")
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return embeddings[0], nil
}

func (e *E5Embedding) embed(ctx context.Context, texts []string, role string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			batch = append(batch, e.frame(t, role))
		}

		vectors, err := e.doRequest(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(batch))
		}
		for _, v := range vectors {
			if len(v) != e.dimensions {
				return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, e.dimensions, len(v))
			}
		}

		embeddings = append(embeddings, vectors...)
	}

	return embeddings, nil
}

// frame normalises whitespace, truncates to the model input limit and
// applies the role prefix for asymmetric models.
func (e *E5Embedding) frame(text, role string) string {
	clean := strings.Join(strings.Fields(text), " ")

	runes := []rune(clean)
	if len(runes) > maxEmbedChars {
		clean = string(runes[:maxEmbedChars])
	}

	if e.prefixed {
		return role + ": " + clean
	}
	return clean
}

func (e *E5Embedding) doRequest(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding service failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension size
func (e *E5Embedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *E5Embedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *E5Embedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *E5Embedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
