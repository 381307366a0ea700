package memorychat

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChatStore = (*Store)(nil)

// Store is an in-memory ChatStore used when Redis is not configured.
// It keeps the same semantics as the Redis store: capped transcript, TTL
// measured from the first write. Contents are lost on restart.
type Store struct {
	maxMessages int
	ttl         time.Duration

	mu        sync.Mutex
	messages  []domain.ChatMessage
	expiresAt time.Time
}

// NewStore creates an in-memory chat store.
func NewStore(maxMessages int, ttl time.Duration) *Store {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{maxMessages: maxMessages, ttl: ttl}
}

// Append adds a message, evicting the oldest once the cap is reached.
func (s *Store) Append(ctx context.Context, message domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()

	if len(s.messages) == 0 {
		s.expiresAt = time.Now().Add(s.ttl)
	}

	s.messages = append(s.messages, message)
	if len(s.messages) > s.maxMessages {
		s.messages = s.messages[len(s.messages)-s.maxMessages:]
	}
	return nil
}

// History returns the transcript, oldest first.
func (s *Store) History(ctx context.Context) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()

	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

// Reset clears the transcript.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.expiresAt = time.Time{}
	return nil
}

func (s *Store) expireLocked() {
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		s.messages = nil
		s.expiresAt = time.Time{}
	}
}
