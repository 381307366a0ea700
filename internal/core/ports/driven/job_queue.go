package driven

import (
	"context"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// JobQueue handles durable ingestion job queuing and processing.
// Implementations can use Redis (preferred) or Postgres (fallback).
//
// Job IDs equal document IDs. Enqueueing a job whose ID is already pending
// replaces the stored job rather than scheduling a second run. Completed and
// failed jobs are retained so status polling after completion still resolves
// to a terminal state instead of NOT_FOUND.
type JobQueue interface {
	// Enqueue adds a job to the queue for processing.
	Enqueue(ctx context.Context, job *domain.IngestionJob) error

	// Dequeue retrieves the next available job for processing.
	// This should block until a job is available or context is cancelled.
	// Returns nil, nil if no jobs are available.
	Dequeue(ctx context.Context) (*domain.IngestionJob, error)

	// DequeueWithTimeout retrieves the next available job, waiting up to
	// timeout seconds. Returns nil, nil on timeout.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.IngestionJob, error)

	// Ack acknowledges successful completion of a job. The job record is
	// retained in completed state.
	Ack(ctx context.Context, jobID string) error

	// Nack indicates job processing failed. The job is re-queued with
	// exponential backoff while retry budget remains, otherwise it is moved
	// to a terminal failed state with the given reason.
	Nack(ctx context.Context, jobID string, reason string) error

	// Fail moves a job directly to its terminal failed state, skipping any
	// remaining retry budget. Used for permanently unrecoverable errors.
	Fail(ctx context.Context, jobID string, reason string) error

	// UpdateProgress records fractional progress for an active job.
	// Progress is monotonic within an attempt; lower values are ignored.
	UpdateProgress(ctx context.Context, jobID string, progress int) error

	// GetJob retrieves a job by ID (for status polling).
	// Returns nil, nil when no job exists for the ID.
	GetJob(ctx context.Context, jobID string) (*domain.IngestionJob, error)

	// DeleteJob removes a job record entirely (document deletion).
	DeleteJob(ctx context.Context, jobID string) error

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}
