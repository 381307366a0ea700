package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// DefaultTopK is how many chunks ground an answer by default.
const DefaultTopK = 3

// RetrievalService converts a question into grounded context: it embeds the
// question with the query role, runs exactly one similarity query, and maps
// the raw matches into content/source pairs.
type RetrievalService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	logger   *slog.Logger
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(embedder driven.EmbeddingService, index driven.VectorIndex, logger *slog.Logger) *RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{embedder: embedder, index: index, logger: logger}
}

// Retrieve returns up to topK chunks relevant to the question, best match
// first. An index with fewer matches returns a shorter (possibly empty)
// result, not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, question string, topK int) ([]domain.RetrievedChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	embedding, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	chunks := make([]domain.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, domain.RetrievedChunk{
			Content: m.Content, // already normalised to "" by the adapter
			Source:  m.Metadata.Source,
		})
	}

	s.logger.Debug("retrieved context", "question_len", len(question), "matches", len(chunks))
	return chunks, nil
}

// BuildPrompt assembles the grounding prompt: numbered context snippets with
// their source labels, followed by the verbatim question, wrapped in an
// instruction restricting the model to the supplied context. The wording is
// the system's only grounding guardrail and is part of the contract.
func BuildPrompt(question string, chunks []domain.RetrievedChunk) string {
	snippets := make([]string, 0, len(chunks))
	for i, c := range chunks {
		snippets = append(snippets, fmt.Sprintf("[%d] %s\nSource: %s", i+1, c.Content, c.Source))
	}
	grounding := strings.Join(snippets, "\n\n")

	return fmt.Sprintf(`
Answer the question using ONLY the context below.
If the answer is not in the context, say "I don't know".

Context:
%s

Question:
%s
`, grounding, question)
}
