package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

const (
	// Stream names
	jobStream     = "docchat:ingestion"
	jobGroup      = "docchat:workers"
	scheduledJobs = "docchat:scheduled"

	// Key prefixes
	jobKeyPrefix = "docchat:job:"

	// Default consumer name prefix
	consumerPrefix = "worker-"

	// Terminal jobs are retained this long so status polling after
	// completion still resolves instead of returning NOT_FOUND.
	jobRetention = 24 * time.Hour

	// Claim timeout - how long before a job is considered abandoned
	claimTimeout = 5 * time.Minute
)

// Verify interface compliance
var _ driven.JobQueue = (*Queue)(nil)

// Queue implements JobQueue using Redis Streams.
// Streams provide reliable delivery with consumer groups and acknowledgment
// tracking; a sorted set holds jobs delayed by retry backoff.
type Queue struct {
	client       *redis.Client
	consumerName string
}

// NewQueue creates a new Redis-backed job queue.
// The consumerName should be unique per worker instance (e.g., hostname + PID).
func NewQueue(client *redis.Client, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}

	q := &Queue{
		client:       client,
		consumerName: consumerName,
	}

	// Create consumer group if it doesn't exist
	ctx := context.Background()
	err := q.client.XGroupCreateMkStream(ctx, jobStream, jobGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

// Enqueue adds a job to the queue. The job ID equals the document ID; if a
// non-terminal job already exists under that ID, the stored record is
// replaced without scheduling a second run.
func (q *Queue) Enqueue(ctx context.Context, job *domain.IngestionJob) error {
	if job == nil {
		return errors.New("job is required")
	}

	existing, err := q.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if existing != nil && !existing.IsTerminal() {
		return q.saveJob(ctx, job)
	}

	pipe := q.client.Pipeline()
	q.pipeSaveJob(ctx, pipe, job)

	if job.ScheduledFor.After(time.Now()) {
		pipe.ZAdd(ctx, scheduledJobs, redis.Z{
			Score:  float64(job.ScheduledFor.Unix()),
			Member: job.ID,
		})
	} else {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: jobStream,
			Values: map[string]interface{}{"job_id": job.ID},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue retrieves the next available job, blocking until one is available
// or the context is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (*domain.IngestionJob, error) {
	return q.DequeueWithTimeout(ctx, 0)
}

// DequeueWithTimeout retrieves the next available job, waiting up to timeout
// seconds. The returned job is already marked active with a fresh progress
// counter.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.IngestionJob, error) {
	// Promote any due scheduled (retrying) jobs first. Best effort.
	_ = q.promoteScheduledJobs(ctx)

	// Try to claim abandoned jobs before reading new ones.
	job, err := q.claimAbandonedJob(ctx)
	if err == nil && job != nil {
		return job, nil
	}

	blockDuration := time.Duration(timeout) * time.Second

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    jobGroup,
		Consumer: q.consumerName,
		Streams:  []string{jobStream, ">"},
		Count:    1,
		Block:    blockDuration,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No jobs available
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	msg := streams[0].Messages[0]
	jobID, ok := msg.Values["job_id"].(string)
	if !ok {
		q.client.XAck(ctx, jobStream, jobGroup, msg.ID)
		return nil, nil
	}

	job, err = q.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job data: %w", err)
	}
	if job == nil {
		// Job data missing, acknowledge and skip
		q.client.XAck(ctx, jobStream, jobGroup, msg.ID)
		return nil, nil
	}

	return q.activate(ctx, job, msg.ID)
}

// Ack acknowledges successful completion of a job. The record is retained in
// completed state with progress pinned at 100. The record must be readable
// before the message is acknowledged, otherwise a finished job would stay
// active forever in status polling.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	msgID, err := q.client.Get(ctx, jobKeyPrefix+jobID+":msg").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message ID: %w", err)
	}

	pipe := q.client.Pipeline()

	if msgID != "" {
		pipe.XAck(ctx, jobStream, jobGroup, msgID)
		pipe.XDel(ctx, jobStream, msgID)
	}

	if job != nil {
		job.MarkCompleted()
		q.pipeSaveJob(ctx, pipe, job)
	}

	pipe.Del(ctx, jobKeyPrefix+jobID+":msg")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Nack indicates job processing failed. While retry budget remains the job
// is re-queued via the scheduled set with exponential backoff; otherwise it
// becomes terminally failed with the given reason.
func (q *Queue) Nack(ctx context.Context, jobID string, reason string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return domain.ErrNotFound
	}

	msgID, _ := q.client.Get(ctx, jobKeyPrefix+jobID+":msg").Result()

	pipe := q.client.Pipeline()

	if msgID != "" {
		pipe.XAck(ctx, jobStream, jobGroup, msgID)
		pipe.XDel(ctx, jobStream, msgID)
	}

	if job.CanRetry() {
		job.ScheduleRetry(reason)
		q.pipeSaveJob(ctx, pipe, job)
		pipe.ZAdd(ctx, scheduledJobs, redis.Z{
			Score:  float64(job.ScheduledFor.Unix()),
			Member: job.ID,
		})
	} else {
		job.MarkFailed(reason)
		q.pipeSaveJob(ctx, pipe, job)
	}

	pipe.Del(ctx, jobKeyPrefix+jobID+":msg")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}
	return nil
}

// Fail moves a job straight to its terminal failed state, regardless of
// remaining retry budget. Used for permanently unrecoverable errors.
func (q *Queue) Fail(ctx context.Context, jobID string, reason string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return domain.ErrNotFound
	}

	msgID, _ := q.client.Get(ctx, jobKeyPrefix+jobID+":msg").Result()

	pipe := q.client.Pipeline()

	if msgID != "" {
		pipe.XAck(ctx, jobStream, jobGroup, msgID)
		pipe.XDel(ctx, jobStream, msgID)
	}

	job.MarkFailed(reason)
	q.pipeSaveJob(ctx, pipe, job)
	pipe.Del(ctx, jobKeyPrefix+jobID+":msg")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

// UpdateProgress records fractional progress for an active job.
// Values lower than the stored progress are ignored.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.ErrNotFound
	}

	job.AdvanceProgress(progress)
	return q.saveJob(ctx, job)
}

// GetJob retrieves a job by ID. Returns nil, nil when no record exists.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*domain.IngestionJob, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job domain.IngestionJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// DeleteJob removes a job record entirely.
func (q *Queue) DeleteJob(ctx context.Context, jobID string) error {
	pipe := q.client.Pipeline()
	pipe.Del(ctx, jobKeyPrefix+jobID)
	pipe.Del(ctx, jobKeyPrefix+jobID+":msg")
	pipe.ZRem(ctx, scheduledJobs, jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close cleans up resources.
func (q *Queue) Close() error {
	// Redis client is shared, don't close it here
	return nil
}

// activate marks the job as an in-flight attempt and records the stream
// message ID for later ack/nack.
func (q *Queue) activate(ctx context.Context, job *domain.IngestionJob, msgID string) (*domain.IngestionJob, error) {
	job.MarkActive()

	pipe := q.client.Pipeline()
	q.pipeSaveJob(ctx, pipe, job)
	pipe.Set(ctx, jobKeyPrefix+job.ID+":msg", msgID, jobRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to activate job: %w", err)
	}

	return job, nil
}

func (q *Queue) saveJob(ctx context.Context, job *domain.IngestionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobKeyPrefix+job.ID, data, jobRetention).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (q *Queue) pipeSaveJob(ctx context.Context, pipe redis.Pipeliner, job *domain.IngestionJob) {
	data, _ := json.Marshal(job)
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, jobRetention)
}

// promoteScheduledJobs moves due retry jobs back onto the main stream.
func (q *Queue) promoteScheduledJobs(ctx context.Context) error {
	now := time.Now().Unix()

	jobIDs, err := q.client.ZRangeByScore(ctx, scheduledJobs, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return err
	}
	if len(jobIDs) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for _, jobID := range jobIDs {
		job, err := q.GetJob(ctx, jobID)
		if err != nil || job == nil {
			pipe.ZRem(ctx, scheduledJobs, jobID)
			continue
		}

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: jobStream,
			Values: map[string]interface{}{"job_id": job.ID},
		})
		pipe.ZRem(ctx, scheduledJobs, jobID)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// claimAbandonedJob tries to claim a job that another worker stopped
// processing without acknowledgment.
func (q *Queue) claimAbandonedJob(ctx context.Context) (*domain.IngestionJob, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: jobStream,
		Group:  jobGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   jobStream,
			Group:    jobGroup,
			Consumer: q.consumerName,
			MinIdle:  claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		msg := claimed[0]
		jobID, ok := msg.Values["job_id"].(string)
		if !ok {
			q.client.XAck(ctx, jobStream, jobGroup, msg.ID)
			q.client.XDel(ctx, jobStream, msg.ID)
			continue
		}

		job, err := q.GetJob(ctx, jobID)
		if err != nil || job == nil {
			q.client.XAck(ctx, jobStream, jobGroup, msg.ID)
			q.client.XDel(ctx, jobStream, msg.ID)
			continue
		}

		return q.activate(ctx, job, msg.ID)
	}

	return nil, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
