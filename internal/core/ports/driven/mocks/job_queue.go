package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// MockJobQueue is a mock implementation of JobQueue for testing.
// Jobs are held in memory; scheduled retries become visible once their
// ScheduledFor time has passed.
type MockJobQueue struct {
	mu      sync.Mutex
	jobs    map[string]*domain.IngestionJob
	pending []string

	EnqueueErr error
}

// NewMockJobQueue creates a new MockJobQueue
func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{
		jobs: make(map[string]*domain.IngestionJob),
	}
}

func (m *MockJobQueue) Enqueue(ctx context.Context, job *domain.IngestionJob) error {
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[job.ID]; ok && !existing.IsTerminal() {
		m.jobs[job.ID] = job
		return nil
	}
	m.jobs[job.ID] = job
	m.pending = append(m.pending, job.ID)
	return nil
}

func (m *MockJobQueue) Dequeue(ctx context.Context) (*domain.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for i, id := range m.pending {
		job, ok := m.jobs[id]
		if !ok {
			continue
		}
		if job.Status != domain.JobStatusQueued || job.ScheduledFor.After(now) {
			continue
		}
		m.pending = append(m.pending[:i], m.pending[i+1:]...)
		job.MarkActive()
		return job, nil
	}
	return nil, nil
}

func (m *MockJobQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.IngestionJob, error) {
	return m.Dequeue(ctx)
}

func (m *MockJobQueue) Ack(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.MarkCompleted()
	}
	return nil
}

func (m *MockJobQueue) Nack(ctx context.Context, jobID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.CanRetry() {
		job.ScheduleRetry(reason)
		m.pending = append(m.pending, job.ID)
	} else {
		job.MarkFailed(reason)
	}
	return nil
}

func (m *MockJobQueue) Fail(ctx context.Context, jobID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.MarkFailed(reason)
	return nil
}

func (m *MockJobQueue) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.AdvanceProgress(progress)
	return nil
}

func (m *MockJobQueue) GetJob(ctx context.Context, jobID string) (*domain.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (m *MockJobQueue) DeleteJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *MockJobQueue) Ping(ctx context.Context) error {
	return nil
}

func (m *MockJobQueue) Close() error {
	return nil
}

// Helper methods for testing

func (m *MockJobQueue) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, id := range m.pending {
		if job, ok := m.jobs[id]; ok && job.Status == domain.JobStatusQueued {
			count++
		}
	}
	return count
}

// MakeReady collapses any retry delay so the next Dequeue sees the job.
func (m *MockJobQueue) MakeReady(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.ScheduledFor = time.Now().Add(-time.Second)
	}
}
