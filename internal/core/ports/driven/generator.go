package driven

import (
	"context"
)

// Generator streams text generation from a single model variant.
//
// Every emitted text fragment is forwarded synchronously through onDelta;
// a slow consumer stalls the stream rather than growing a buffer. A
// rate-limit rejection is reported as an error wrapping domain.ErrRateLimited
// so callers can fall back to another model variant. Cancelling ctx stops
// the upstream call.
type Generator interface {
	// Stream runs one streaming generation call against the named model.
	Stream(ctx context.Context, model, prompt string, onDelta func(string)) error

	// Ping verifies the generation backend is reachable
	Ping(ctx context.Context) error

	// Close releases resources held by the generator
	Close() error
}
