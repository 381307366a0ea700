package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

// AllowedMimeTypes is the upload allow-list checked at the edge. DOC/DOCX are
// accepted here; the pipeline fails them as unsupported until extractors for
// those types exist.
var AllowedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Verify interface compliance
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService handles upload acceptance, status polling, listing and
// deletion of documents.
type DocumentService struct {
	files  driven.FileStore
	queue  driven.JobQueue
	index  driven.VectorIndex
	logger *slog.Logger
}

// NewDocumentService creates a document service.
func NewDocumentService(files driven.FileStore, queue driven.JobQueue, index driven.VectorIndex, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{files: files, queue: queue, index: index, logger: logger}
}

// Upload implements driving.DocumentService. It persists the raw bytes and
// enqueues the ingestion job; the slow work happens on the worker.
func (s *DocumentService) Upload(ctx context.Context, req driving.UploadRequest) (*driving.UploadResponse, error) {
	if req.Filename == "" || req.Content == nil {
		return nil, fmt.Errorf("%w: file is required", domain.ErrInvalidInput)
	}
	if !AllowedMimeTypes[req.MimeType] {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, req.MimeType)
	}

	documentID := domain.NewID()

	path, err := s.files.Save(ctx, documentID+"-"+req.Filename, req.Content)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	job := domain.NewIngestionJob(domain.Document{
		ID:       documentID,
		Filename: req.Filename,
		MimeType: req.MimeType,
		FilePath: path,
	})
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue ingestion job: %w", err)
	}

	s.logger.Info("document queued for ingestion",
		"document_id", documentID,
		"filename", req.Filename,
		"mimetype", req.MimeType,
	)

	return &driving.UploadResponse{DocumentID: documentID, Status: "QUEUED"}, nil
}

// Status implements driving.DocumentService.
func (s *DocumentService) Status(ctx context.Context, documentID string) (*domain.JobState, error) {
	job, err := s.queue.GetJob(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return &domain.JobState{Status: "NOT_FOUND"}, nil
	}

	state := &domain.JobState{
		Status:   job.PublicStatus(),
		Progress: job.Progress,
	}
	if job.Status == domain.JobStatusFailed {
		state.Reason = job.Error
	}
	return state, nil
}

// List implements driving.DocumentService.
func (s *DocumentService) List(ctx context.Context) ([]domain.DocumentInfo, error) {
	return s.index.ListDocuments(ctx)
}

// Delete implements driving.DocumentService. The raw file may already be
// gone; index entries and the job record are removed regardless.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}

	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete index entries: %w", err)
	}

	job, err := s.queue.GetJob(ctx, documentID)
	if err == nil && job != nil && job.FilePath != "" {
		if err := s.files.Delete(ctx, job.FilePath); err != nil {
			s.logger.Warn("failed to delete raw file", "document_id", documentID, "error", err)
		}
	}

	if err := s.queue.DeleteJob(ctx, documentID); err != nil {
		return fmt.Errorf("delete job record: %w", err)
	}

	s.logger.Info("document deleted", "document_id", documentID)
	return nil
}
