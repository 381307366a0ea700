package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newEmbeddingServer(t *testing.T, dims int, capture *[][]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if capture != nil {
			*capture = append(*capture, req.Texts)
		}

		vectors := make([][]float32, len(req.Texts))
		for i := range vectors {
			vectors[i] = make([]float32, dims)
			vectors[i][0] = float32(i)
		}
		json.NewEncoder(w).Encode(vectors)
	}))
}

func TestE5EmbeddingEmbed(t *testing.T) {
	server := newEmbeddingServer(t, 384, nil)
	defer server.Close()

	cfg := DefaultE5Config(server.URL)
	embedder, err := NewE5Embedding(cfg)
	if err != nil {
		t.Fatalf("NewE5Embedding failed: %v", err)
	}
	defer embedder.Close()

	vectors, err := embedder.Embed(context.Background(), []string{"first chunk", "second chunk"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if len(vectors[0]) != 384 {
		t.Errorf("expected 384 dimensions, got %d", len(vectors[0]))
	}
}

func TestE5EmbeddingBatching(t *testing.T) {
	var batches [][]string
	server := newEmbeddingServer(t, 8, &batches)
	defer server.Close()

	embedder, err := NewE5Embedding(E5Config{
		Endpoint:   server.URL,
		Dimensions: 8,
		BatchSize:  2,
	})
	if err != nil {
		t.Fatalf("NewE5Embedding failed: %v", err)
	}
	defer embedder.Close()

	texts := []string{"a1", "a2", "a3", "a4", "a5"}
	vectors, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[2]) != 1 {
		t.Errorf("unexpected batch sizes: %d, %d, %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
}

func TestE5EmbeddingFraming(t *testing.T) {
	var batches [][]string
	server := newEmbeddingServer(t, 8, &batches)
	defer server.Close()

	embedder, err := NewE5Embedding(E5Config{
		Endpoint:   server.URL,
		Dimensions: 8,
		Prefixed:   true,
	})
	if err != nil {
		t.Fatalf("NewE5Embedding failed: %v", err)
	}
	defer embedder.Close()

	long := strings.Repeat("word ", 400)
	if _, err := embedder.Embed(context.Background(), []string{"  spaced \n\t out  ", long}); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if _, err := embedder.EmbedQuery(context.Background(), "what is this?"); err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(batches))
	}

	if got := batches[0][0]; got != "passage: spaced out" {
		t.Errorf("expected normalised passage framing, got %q", got)
	}
	if got := batches[0][1]; len([]rune(got)) > len("passage: ")+maxEmbedChars {
		t.Errorf("expected long text truncated, got %d chars", len([]rune(got)))
	}
	if got := batches[1][0]; got != "query: what is this?" {
		t.Errorf("expected query framing, got %q", got)
	}
}

func TestE5EmbeddingDimensionMismatch(t *testing.T) {
	server := newEmbeddingServer(t, 4, nil)
	defer server.Close()

	embedder, err := NewE5Embedding(E5Config{Endpoint: server.URL, Dimensions: 384})
	if err != nil {
		t.Fatalf("NewE5Embedding failed: %v", err)
	}
	defer embedder.Close()

	if _, err := embedder.Embed(context.Background(), []string{"chunk"}); err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
}

func TestE5EmbeddingServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	embedder, err := NewE5Embedding(E5Config{Endpoint: server.URL, Dimensions: 8})
	if err != nil {
		t.Fatalf("NewE5Embedding failed: %v", err)
	}
	defer embedder.Close()

	if _, err := embedder.Embed(context.Background(), []string{"chunk"}); err == nil {
		t.Fatal("expected error on server failure, got nil")
	}
}

func TestE5EmbeddingEmptyInput(t *testing.T) {
	embedder, err := NewE5Embedding(E5Config{Endpoint: "http://localhost:1", Dimensions: 8})
	if err != nil {
		t.Fatalf("NewE5Embedding failed: %v", err)
	}
	defer embedder.Close()

	// No request should be made for empty input
	vectors, err := embedder.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
}
