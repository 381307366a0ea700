package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChatStore = (*ChatStore)(nil)

// Chat transcript defaults: keep the last 20 turns, expire the whole
// conversation 24 hours after its first message.
const (
	DefaultChatKey     = "docchat:chat"
	DefaultMaxMessages = 20
	DefaultChatTTL     = 24 * time.Hour
)

// ChatStore implements driven.ChatStore on a single Redis list.
//
// Append pushes the turn, trims to the newest maxMessages entries and sets
// the TTL with NX semantics in one MULTI/EXEC pipeline, so a concurrent
// reader never observes a trimmed-but-unexpiring or untrimmed-but-expiring
// intermediate state. EXPIRE NX only takes effect while the key has no TTL,
// which makes the expiry a fixed window from the first write; later appends
// do not slide it.
type ChatStore struct {
	client      *redis.Client
	key         string
	maxMessages int
	ttl         time.Duration
}

// NewChatStore creates a Redis-backed conversation store. Zero values fall
// back to the defaults above.
func NewChatStore(client *redis.Client, key string, maxMessages int, ttl time.Duration) *ChatStore {
	if key == "" {
		key = DefaultChatKey
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if ttl <= 0 {
		ttl = DefaultChatTTL
	}
	return &ChatStore{client: client, key: key, maxMessages: maxMessages, ttl: ttl}
}

// Append records one conversation turn.
func (s *ChatStore) Append(ctx context.Context, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, int64(-s.maxMessages), -1)
	pipe.ExpireNX(ctx, s.key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// History returns the retained turns, oldest first.
func (s *ChatStore) History(ctx context.Context) ([]domain.ChatMessage, error) {
	entries, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Reset deletes the transcript.
func (s *ChatStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to reset chat: %w", err)
	}
	return nil
}
