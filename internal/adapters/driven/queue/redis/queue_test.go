package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

func setupTestQueue(t *testing.T) (*Queue, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	queue, err := NewQueue(client, "test-worker")
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	return queue, func() {
		client.Close()
		mr.Close()
	}
}

func newTestJob(id string) *domain.IngestionJob {
	return domain.NewIngestionJob(domain.Document{
		ID:       id,
		Filename: "notes.txt",
		MimeType: "text/plain",
		FilePath: "/uploads/" + id + "-notes.txt",
	})
}

func TestQueueEnqueueDequeueAck(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	job := newTestJob("doc-1")
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	stored, err := queue.GetJob(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if stored == nil || stored.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued job, got %+v", stored)
	}

	dequeued, err := queue.DequeueWithTimeout(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued == nil {
		t.Fatal("expected a job")
	}
	if dequeued.ID != "doc-1" {
		t.Errorf("expected doc-1, got %s", dequeued.ID)
	}
	if dequeued.Status != domain.JobStatusActive {
		t.Errorf("expected active status, got %s", dequeued.Status)
	}
	if dequeued.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", dequeued.Attempts)
	}

	if err := queue.Ack(ctx, "doc-1"); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	done, err := queue.GetJob(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if done.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if done.Progress != 100 {
		t.Errorf("expected progress 100, got %d", done.Progress)
	}
}

func TestQueueEnqueueDuplicateNonTerminal(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	if err := queue.Enqueue(ctx, newTestJob("doc-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// Second enqueue under the same ID updates the record but must not
	// schedule a second run
	if err := queue.Enqueue(ctx, newTestJob("doc-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	first, err := queue.DequeueWithTimeout(ctx, 1)
	if err != nil || first == nil {
		t.Fatalf("expected one job, got %v, %v", first, err)
	}

	second, err := queue.DequeueWithTimeout(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if second != nil {
		t.Errorf("expected no second delivery, got %+v", second)
	}
}

func TestQueueAckFailsWhenRecordUnreadable(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	if err := queue.Enqueue(ctx, newTestJob("doc-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := queue.DequeueWithTimeout(ctx, 1); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	// Corrupt the record; Ack must refuse to drop the message when it
	// cannot mark the job completed
	if err := queue.client.Set(ctx, jobKeyPrefix+"doc-1", "{not json", 0).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := queue.Ack(ctx, "doc-1"); err == nil {
		t.Fatal("expected Ack to fail on unreadable record")
	}

	// The stream message reference survives for a later retry
	if err := queue.client.Get(ctx, jobKeyPrefix+"doc-1:msg").Err(); err != nil {
		t.Errorf("expected message reference retained, got %v", err)
	}
}

func TestQueueNackSchedulesRetry(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	if err := queue.Enqueue(ctx, newTestJob("doc-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := queue.DequeueWithTimeout(ctx, 1); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if err := queue.Nack(ctx, "doc-1", "embedding service down"); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	job, err := queue.GetJob(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Errorf("expected requeued status, got %s", job.Status)
	}
	if job.Error != "embedding service down" {
		t.Errorf("expected failure reason recorded, got %q", job.Error)
	}
	if !job.ScheduledFor.After(time.Now()) {
		t.Error("expected backoff delay on retry")
	}

	// Backoff not yet elapsed, so nothing is ready
	ready, err := queue.DequeueWithTimeout(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if ready != nil {
		t.Errorf("expected no job before backoff elapses, got %+v", ready)
	}

	// Collapse the backoff and verify the retry is promoted
	job.ScheduledFor = time.Now().Add(-time.Second)
	if err := queue.saveJob(ctx, job); err != nil {
		t.Fatalf("saveJob failed: %v", err)
	}
	if err := queue.client.ZAdd(ctx, scheduledJobs, redis.Z{
		Score:  float64(job.ScheduledFor.Unix()),
		Member: job.ID,
	}).Err(); err != nil {
		t.Fatalf("ZAdd failed: %v", err)
	}

	retried, err := queue.DequeueWithTimeout(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if retried == nil {
		t.Fatal("expected promoted retry job")
	}
	if retried.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", retried.Attempts)
	}
}

func TestQueueNackExhaustedBudgetFails(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	job := newTestJob("doc-1")
	job.MaxAttempts = 1
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := queue.DequeueWithTimeout(ctx, 1); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if err := queue.Nack(ctx, "doc-1", "still broken"); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	failed, err := queue.GetJob(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if failed.Status != domain.JobStatusFailed {
		t.Errorf("expected failed status, got %s", failed.Status)
	}
	if failed.Error != "still broken" {
		t.Errorf("expected reason recorded, got %q", failed.Error)
	}
}

func TestQueueFailSkipsRetryBudget(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	if err := queue.Enqueue(ctx, newTestJob("doc-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := queue.DequeueWithTimeout(ctx, 1); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if err := queue.Fail(ctx, "doc-1", "unsupported file type"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	failed, err := queue.GetJob(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if failed.Status != domain.JobStatusFailed {
		t.Errorf("expected failed status despite retry budget, got %s", failed.Status)
	}
}

func TestQueueUpdateProgressMonotonic(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	if err := queue.Enqueue(ctx, newTestJob("doc-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := queue.DequeueWithTimeout(ctx, 1); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if err := queue.UpdateProgress(ctx, "doc-1", 60); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	// Lower value must not regress the stored progress
	if err := queue.UpdateProgress(ctx, "doc-1", 40); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	job, err := queue.GetJob(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Progress != 60 {
		t.Errorf("expected progress 60, got %d", job.Progress)
	}

	if err := queue.UpdateProgress(ctx, "missing", 50); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown job, got %v", err)
	}
}

func TestQueueGetJobMissing(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()

	job, err := queue.GetJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil for missing job, got %+v", job)
	}
}

func TestQueueDeleteJob(t *testing.T) {
	queue, cleanup := setupTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	if err := queue.Enqueue(ctx, newTestJob("doc-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := queue.DeleteJob(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}

	job, err := queue.GetJob(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected job deleted, got %+v", job)
	}
}
