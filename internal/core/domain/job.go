package domain

import (
	"fmt"
	"time"
)

// JobStatus represents the current state of an ingestion job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Retry backoff: base delay doubling per attempt, capped.
const (
	retryBaseDelay = 5 * time.Second
	retryMaxDelay  = 5 * time.Minute

	// DefaultMaxAttempts is how often an ingestion job is tried before it
	// is left in a terminal failed state.
	DefaultMaxAttempts = 3
)

// IngestionJob is the queued unit of ingestion work. Its ID equals the
// document ID, so job status is addressable by document without a mapping
// table, and duplicate submissions for the same document replace the pending
// job instead of running twice.
type IngestionJob struct {
	// ID is the unique identifier for this job (= document ID)
	ID string `json:"id"`

	// Payload describing the uploaded file
	DocumentID string `json:"document_id"`
	FilePath   string `json:"file_path"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimetype"`

	// Status is the current state of the job
	Status JobStatus `json:"status"`

	// Progress is 0-100, monotonically non-decreasing within one attempt
	// and reset to 0 when a new attempt starts
	Progress int `json:"progress"`

	// Attempts is how many times this job has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum attempt count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last failure reason, human readable
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the job should next be processed (for retries)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIngestionJob creates a queued job for a document.
func NewIngestionJob(doc Document) *IngestionJob {
	now := time.Now()
	return &IngestionJob{
		ID:           doc.ID,
		DocumentID:   doc.ID,
		FilePath:     doc.FilePath,
		Filename:     doc.Filename,
		MimeType:     doc.MimeType,
		Status:       JobStatusQueued,
		Progress:     0,
		Attempts:     0,
		MaxAttempts:  DefaultMaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// Validate checks the payload at dequeue time. A malformed payload fails the
// job immediately rather than crashing the worker.
func (j *IngestionJob) Validate() error {
	if j.DocumentID == "" {
		return fmt.Errorf("%w: missing document_id", ErrInvalidInput)
	}
	if j.ID != j.DocumentID {
		return fmt.Errorf("%w: job id %q does not match document id %q", ErrInvalidInput, j.ID, j.DocumentID)
	}
	if j.FilePath == "" {
		return fmt.Errorf("%w: missing file_path", ErrInvalidInput)
	}
	if j.Filename == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidInput)
	}
	if j.MimeType == "" {
		return fmt.Errorf("%w: missing mimetype", ErrInvalidInput)
	}
	return nil
}

// CanRetry returns true if the job has retry budget left.
func (j *IngestionJob) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// IsTerminal returns true once the job will never run again.
func (j *IngestionJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MarkActive transitions the job into an attempt. Each attempt starts its own
// progress counter at 0.
func (j *IngestionJob) MarkActive() {
	now := time.Now()
	j.Status = JobStatusActive
	j.StartedAt = &now
	j.UpdatedAt = now
	j.Progress = 0
	j.Attempts++
}

// MarkCompleted finishes the job successfully with progress pinned at 100.
func (j *IngestionJob) MarkCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.Progress = 100
	j.Error = ""
}

// MarkFailed puts the job into its terminal failed state.
func (j *IngestionJob) MarkFailed(reason string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.UpdatedAt = now
	j.Progress = 0
	j.Error = reason
}

// ScheduleRetry re-queues the job with exponential backoff.
func (j *IngestionJob) ScheduleRetry(reason string) {
	now := time.Now()
	j.Status = JobStatusQueued
	j.UpdatedAt = now
	j.Progress = 0
	j.Error = reason

	backoff := retryBaseDelay << (j.Attempts - 1)
	if backoff > retryMaxDelay || backoff <= 0 {
		backoff = retryMaxDelay
	}
	j.ScheduledFor = now.Add(backoff)
}

// AdvanceProgress raises the progress value. Progress never moves backwards
// within an attempt; stale lower values are ignored.
func (j *IngestionJob) AdvanceProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress <= j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// JobState is the externally visible job status for polling clients.
type JobState struct {
	Status   string `json:"status"` // QUEUED | ACTIVE | COMPLETED | FAILED | NOT_FOUND
	Progress int    `json:"progress"`
	Reason   string `json:"reason,omitempty"`
}

// PublicStatus maps an internal job status onto the polling vocabulary.
func (j *IngestionJob) PublicStatus() string {
	switch j.Status {
	case JobStatusQueued:
		return "QUEUED"
	case JobStatusActive:
		return "ACTIVE"
	case JobStatusCompleted:
		return "COMPLETED"
	case JobStatusFailed:
		return "FAILED"
	default:
		return "NOT_FOUND"
	}
}
