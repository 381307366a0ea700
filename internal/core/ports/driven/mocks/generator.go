package mocks

import (
	"context"
	"fmt"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// MockGenerator is a mock implementation of Generator for testing.
// Responses maps a model name to the deltas it streams; models absent from
// the map stream a single canned delta. RateLimited models report
// ErrRateLimited without streaming anything.
type MockGenerator struct {
	Responses   map[string][]string
	RateLimited map[string]bool
	Errs        map[string]error

	StreamCalls []string
	LastPrompt  string
}

// NewMockGenerator creates a new MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Responses:   make(map[string][]string),
		RateLimited: make(map[string]bool),
		Errs:        make(map[string]error),
	}
}

func (m *MockGenerator) Stream(ctx context.Context, model string, prompt string, onDelta func(text string)) error {
	m.StreamCalls = append(m.StreamCalls, model)
	m.LastPrompt = prompt

	if m.RateLimited[model] {
		return fmt.Errorf("%w: model %s", domain.ErrRateLimited, model)
	}
	if err := m.Errs[model]; err != nil {
		return err
	}

	deltas, ok := m.Responses[model]
	if !ok {
		deltas = []string{"mock answer"}
	}
	for _, d := range deltas {
		if err := ctx.Err(); err != nil {
			return err
		}
		onDelta(d)
	}
	return nil
}

func (m *MockGenerator) Ping(ctx context.Context) error {
	return nil
}

func (m *MockGenerator) Close() error {
	return nil
}
