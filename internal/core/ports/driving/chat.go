package driving

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// ChatService answers questions against the indexed documents with a live
// token stream, and maintains the conversation transcript.
type ChatService interface {
	// StreamAnswer records the user turn, retrieves grounding context,
	// streams the generated answer through sink as fragments arrive, and
	// records the complete assistant turn once streaming ends (on success
	// or on the degraded-notice path). The sink is invoked synchronously;
	// back-pressure from a slow consumer stalls generation.
	StreamAnswer(ctx context.Context, message string, sink func(string)) (*domain.StreamResult, error)

	// History returns the capped transcript, oldest first.
	History(ctx context.Context) ([]domain.ChatMessage, error)

	// Reset clears the transcript.
	Reset(ctx context.Context) error
}
