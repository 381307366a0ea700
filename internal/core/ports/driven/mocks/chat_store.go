package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// MockChatStore is a mock implementation of ChatStore for testing
type MockChatStore struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage

	AppendErr error
}

// NewMockChatStore creates a new MockChatStore
func NewMockChatStore() *MockChatStore {
	return &MockChatStore{}
}

func (m *MockChatStore) Append(ctx context.Context, message domain.ChatMessage) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

func (m *MockChatStore) History(ctx context.Context) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ChatMessage, len(m.messages))
	copy(out, m.messages)
	return out, nil
}

func (m *MockChatStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	return nil
}

// Helper methods for testing

func (m *MockChatStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *MockChatStore) Last() (domain.ChatMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.messages) == 0 {
		return domain.ChatMessage{}, false
	}
	return m.messages[len(m.messages)-1], true
}
