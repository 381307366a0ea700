package driven

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// ChatStore persists the capped, expiring conversation transcript (Redis).
//
// Append is an atomic compound operation: push the turn, trim to the newest
// N entries, and set the TTL only on the very first append to a fresh key.
// The TTL is a fixed window from the first message; later appends do not
// extend it.
type ChatStore interface {
	// Append records one immutable conversation turn.
	Append(ctx context.Context, msg domain.ChatMessage) error

	// History returns the retained turns, oldest first.
	History(ctx context.Context) ([]domain.ChatMessage, error)

	// Reset deletes the entire transcript unconditionally.
	Reset(ctx context.Context) error
}
