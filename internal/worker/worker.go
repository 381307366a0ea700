package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/services"
)

// Worker processes ingestion jobs from the job queue.
// It runs the ingest orchestrator for each dequeued job.
type Worker struct {
	jobQueue     driven.JobQueue
	orchestrator *services.IngestOrchestrator
	logger       *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	JobQueue       driven.JobQueue
	Orchestrator   *services.IngestOrchestrator
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent job processors
	DequeueTimeout int // Seconds to wait for a job before checking again
}

// NewWorker creates a new ingestion worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		jobQueue:       cfg.JobQueue,
		orchestrator:   cfg.Orchestrator,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i
		g.Go(func() error {
			w.processLoop(ctx, workerID)
			return nil
		})
	}

	go func() {
		g.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	// Wait for in-flight jobs to finish
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		// Dequeue a job with timeout
		job, err := w.jobQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue job", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if job == nil {
			// No job available, continue
			continue
		}

		w.processJob(ctx, job, logger)
	}
}

// processJob processes a single ingestion job.
func (w *Worker) processJob(ctx context.Context, job *domain.IngestionJob, logger *slog.Logger) {
	logger = logger.With(
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"filename", job.Filename,
		"attempt", job.Attempts,
	)
	logger.Info("processing job")

	if err := job.Validate(); err != nil {
		// A malformed payload will never succeed no matter how often it
		// is retried
		logger.Error("invalid job payload", "error", err)
		if failErr := w.jobQueue.Fail(ctx, job.ID, err.Error()); failErr != nil {
			logger.Error("failed to fail job", "fail_error", failErr)
		}
		return
	}

	startTime := time.Now()

	report := func(progress int) {
		if err := w.jobQueue.UpdateProgress(ctx, job.ID, progress); err != nil {
			logger.Warn("failed to update progress", "progress", progress, "error", err)
		}
	}

	err := w.orchestrator.ProcessJob(ctx, job, report)
	duration := time.Since(startTime)

	if err != nil {
		logger.Error("job failed",
			"duration", duration,
			"error", err,
		)

		if domain.IsPermanent(err) {
			if failErr := w.jobQueue.Fail(ctx, job.ID, err.Error()); failErr != nil {
				logger.Error("failed to fail job", "fail_error", failErr)
			}
			return
		}

		// Nack the job so it can be retried with backoff
		if nackErr := w.jobQueue.Nack(ctx, job.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack job", "nack_error", nackErr)
		}
		return
	}

	logger.Info("job completed", "duration", duration)

	if ackErr := w.jobQueue.Ack(ctx, job.ID); ackErr != nil {
		logger.Error("failed to ack job", "ack_error", ackErr)
	}
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.jobQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
