package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobQueue = (*Queue)(nil)

const jobColumns = `id, document_id, file_path, filename, mimetype, status, progress,
	attempts, max_attempts, error, created_at, updated_at, started_at, completed_at, scheduled_for`

// Queue implements JobQueue using PostgreSQL with SELECT FOR UPDATE SKIP
// LOCKED, so concurrent workers never process the same job twice. This is
// the fallback queue when Redis is not available.
type Queue struct {
	db *sql.DB
}

// NewQueue creates a new PostgreSQL-backed job queue.
// Assumes the ingestion_jobs table has been created via InitSchema.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a job. An existing non-terminal row under the same ID is left
// as-is apart from the refreshed payload; an existing terminal row (a
// re-uploaded document) is replaced entirely.
func (q *Queue) Enqueue(ctx context.Context, job *domain.IngestionJob) error {
	if job == nil {
		return errors.New("job is required")
	}

	query := `
		INSERT INTO ingestion_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			file_path = EXCLUDED.file_path,
			filename = EXCLUDED.filename,
			mimetype = EXCLUDED.mimetype,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			error = EXCLUDED.error,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			scheduled_for = EXCLUDED.scheduled_for
		WHERE ingestion_jobs.status <> 'active'
	`

	_, err := q.db.ExecContext(ctx, query,
		job.ID,
		job.DocumentID,
		job.FilePath,
		job.Filename,
		job.MimeType,
		job.Status,
		job.Progress,
		job.Attempts,
		job.MaxAttempts,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Dequeue retrieves the next available job.
func (q *Queue) Dequeue(ctx context.Context) (*domain.IngestionJob, error) {
	return q.dequeue(ctx, 0)
}

// DequeueWithTimeout retrieves the next job, waiting up to timeout seconds.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.IngestionJob, error) {
	return q.dequeue(ctx, timeout)
}

func (q *Queue) dequeue(ctx context.Context, timeoutSeconds int) (*domain.IngestionJob, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	selectQuery := `
		SELECT ` + jobColumns + `
		FROM ingestion_jobs
		WHERE status = $1
		  AND scheduled_for <= NOW()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	row := tx.QueryRowContext(ctx, selectQuery, domain.JobStatusQueued)
	job, err := scanJob(row)

	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()

		// If timeout specified, wait and retry once
		if timeoutSeconds > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(timeoutSeconds) * time.Second):
				return q.dequeue(ctx, 0)
			}
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}

	// Each attempt starts its own progress counter
	job.MarkActive()

	updateQuery := `
		UPDATE ingestion_jobs
		SET status = $2, progress = $3, attempts = $4, started_at = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery,
		job.ID, job.Status, job.Progress, job.Attempts, nullTime(job.StartedAt), job.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("mark job active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return job, nil
}

// Ack marks a job completed. The row is retained for status polling.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	query := `
		UPDATE ingestion_jobs
		SET status = $2, progress = 100, error = '', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := q.db.ExecContext(ctx, query, jobID, domain.JobStatusCompleted); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Nack re-queues the job with exponential backoff, or fails it terminally
// once the retry budget is exhausted.
func (q *Queue) Nack(ctx context.Context, jobID string, reason string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM ingestion_jobs WHERE id = $1 FOR UPDATE
	`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select job: %w", err)
	}

	if job.CanRetry() {
		job.ScheduleRetry(reason)
	} else {
		job.MarkFailed(reason)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ingestion_jobs
		SET status = $2, progress = $3, error = $4, scheduled_for = $5, updated_at = $6
		WHERE id = $1
	`, job.ID, job.Status, job.Progress, job.Error, job.ScheduledFor, job.UpdatedAt); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Fail moves a job straight to its terminal failed state.
func (q *Queue) Fail(ctx context.Context, jobID string, reason string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE ingestion_jobs
		SET status = $2, progress = 0, error = $3, updated_at = NOW()
		WHERE id = $1
	`, jobID, domain.JobStatusFailed, reason)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateProgress records fractional progress. Progress never moves
// backwards; GREATEST keeps it monotonic under concurrent updates.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE ingestion_jobs
		SET progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, jobID, progress, domain.JobStatusActive)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetJob retrieves a job by ID. Returns nil, nil when no row exists.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*domain.IngestionJob, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM ingestion_jobs WHERE id = $1
	`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// DeleteJob removes a job record.
func (q *Queue) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM ingestion_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close cleans up resources.
func (q *Queue) Close() error {
	// Connection pool is shared, don't close it here
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.DocumentID,
		&job.FilePath,
		&job.Filename,
		&job.MimeType,
		&job.Status,
		&job.Progress,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
		&job.ScheduledFor,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
