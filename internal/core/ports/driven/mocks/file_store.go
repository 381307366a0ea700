package mocks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// MockFileStore is a mock implementation of FileStore for testing
type MockFileStore struct {
	mu    sync.RWMutex
	files map[string][]byte

	SaveErr error
	ReadErr error
}

// NewMockFileStore creates a new MockFileStore
func NewMockFileStore() *MockFileStore {
	return &MockFileStore{
		files: make(map[string][]byte),
	}
}

func (m *MockFileStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	path := "/uploads/" + name
	m.files[path] = data
	return path, nil
}

func (m *MockFileStore) Read(ctx context.Context, path string) ([]byte, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	return data, nil
}

func (m *MockFileStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

// Helper methods for testing

func (m *MockFileStore) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
}

func (m *MockFileStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
