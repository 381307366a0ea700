package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// FallbackGenerator drives a streaming generation call against an ordered
// list of model variants, advancing to the next variant when the current one
// reports rate limiting.
//
// Fragments already forwarded to onDelta before a fallback are not retracted;
// a mid-stream fallback therefore produces a mixed-provenance answer. That is
// an accepted policy choice: the latency win of streaming-first outweighs
// provenance cleanliness here.
type FallbackGenerator struct {
	generator driven.Generator
	models    []string
	logger    *slog.Logger
}

// NewFallbackGenerator creates a fallback controller over the given model
// priority list (first entry tried first).
func NewFallbackGenerator(generator driven.Generator, models []string, logger *slog.Logger) (*FallbackGenerator, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: at least one model is required", domain.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackGenerator{generator: generator, models: models, logger: logger}, nil
}

// Models returns the configured model priority list.
func (g *FallbackGenerator) Models() []string {
	return g.models
}

// StreamAnswer attempts each model in order. On success it returns which
// model satisfied the request without trying further variants. A rate-limit
// error advances to the next model; any other error aborts immediately.
// When every model is exhausted by rate limiting the last error is returned.
func (g *FallbackGenerator) StreamAnswer(ctx context.Context, prompt string, onDelta func(string)) (*domain.StreamResult, error) {
	var lastErr error

	for _, model := range g.models {
		g.logger.Info("trying generation model", "model", model)

		err := g.generator.Stream(ctx, model, prompt, onDelta)
		if err == nil {
			return &domain.StreamResult{ModelUsed: model}, nil
		}

		lastErr = err
		if errors.Is(err, domain.ErrRateLimited) {
			g.logger.Warn("model rate limited, switching", "model", model)
			continue
		}

		// Non-rate-limit errors are not recoverable by switching models.
		return nil, err
	}

	return nil, lastErr
}
