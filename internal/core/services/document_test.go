package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

type documentFixture struct {
	files *mocks.MockFileStore
	queue *mocks.MockJobQueue
	index *mocks.MockVectorIndex
	svc   *DocumentService
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()

	files := mocks.NewMockFileStore()
	queue := mocks.NewMockJobQueue()
	index := mocks.NewMockVectorIndex()

	return &documentFixture{
		files: files,
		queue: queue,
		index: index,
		svc:   NewDocumentService(files, queue, index, slog.New(slog.DiscardHandler)),
	}
}

func TestDocumentUpload(t *testing.T) {
	f := newDocumentFixture(t)

	resp, err := f.svc.Upload(context.Background(), driving.UploadRequest{
		Filename: "notes.txt",
		MimeType: "text/plain",
		Content:  strings.NewReader("some notes"),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if resp.DocumentID == "" {
		t.Error("expected a document id")
	}
	if resp.Status != "QUEUED" {
		t.Errorf("expected QUEUED, got %s", resp.Status)
	}

	job, err := f.queue.GetJob(context.Background(), resp.DocumentID)
	if err != nil || job == nil {
		t.Fatalf("expected queued job, got %v / %v", job, err)
	}
	if job.Filename != "notes.txt" || job.MimeType != "text/plain" {
		t.Errorf("unexpected job fields: %+v", job)
	}

	// The raw file is stored under the document id to avoid name collisions
	wantPath := "/uploads/" + resp.DocumentID + "-notes.txt"
	if job.FilePath != wantPath {
		t.Errorf("expected file path %s, got %s", wantPath, job.FilePath)
	}
	if data, err := f.files.Read(context.Background(), wantPath); err != nil || string(data) != "some notes" {
		t.Errorf("unexpected stored content: %q / %v", data, err)
	}
}

func TestDocumentUploadRejectsUnsupportedType(t *testing.T) {
	f := newDocumentFixture(t)

	_, err := f.svc.Upload(context.Background(), driving.UploadRequest{
		Filename: "photo.png",
		MimeType: "image/png",
		Content:  strings.NewReader("binary"),
	})
	if !errors.Is(err, domain.ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
	if f.files.Count() != 0 || f.queue.PendingCount() != 0 {
		t.Error("expected nothing persisted for rejected upload")
	}
}

func TestDocumentUploadRequiresFile(t *testing.T) {
	f := newDocumentFixture(t)

	_, err := f.svc.Upload(context.Background(), driving.UploadRequest{MimeType: "text/plain"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDocumentUploadEnqueueFailure(t *testing.T) {
	f := newDocumentFixture(t)
	f.queue.EnqueueErr = errors.New("queue down")

	_, err := f.svc.Upload(context.Background(), driving.UploadRequest{
		Filename: "notes.txt",
		MimeType: "text/plain",
		Content:  strings.NewReader("some notes"),
	})
	if err == nil {
		t.Fatal("expected error when enqueue fails")
	}
}

func TestDocumentStatus(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	job := domain.NewIngestionJob(domain.Document{
		ID:       "doc-1",
		Filename: "notes.txt",
		MimeType: "text/plain",
		FilePath: "/uploads/doc-1-notes.txt",
	})
	_ = f.queue.Enqueue(ctx, job)

	state, err := f.svc.Status(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state.Status != "QUEUED" || state.Progress != 0 {
		t.Errorf("unexpected state: %+v", state)
	}

	_ = f.queue.Fail(ctx, "doc-1", "unparseable content")
	state, _ = f.svc.Status(ctx, "doc-1")
	if state.Status != "FAILED" || state.Reason != "unparseable content" {
		t.Errorf("expected failure reason surfaced, got %+v", state)
	}
}

func TestDocumentStatusUnknown(t *testing.T) {
	f := newDocumentFixture(t)

	state, err := f.svc.Status(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state.Status != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", state.Status)
	}
}

func TestDocumentDelete(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	path, _ := f.files.Save(ctx, "doc-1-notes.txt", strings.NewReader("some notes"))
	job := domain.NewIngestionJob(domain.Document{
		ID:       "doc-1",
		Filename: "notes.txt",
		MimeType: "text/plain",
		FilePath: path,
	})
	_ = f.queue.Enqueue(ctx, job)
	_ = f.index.Upsert(ctx,
		[]string{"c1", "c2"},
		[][]float32{{0.1}, {0.2}},
		[]string{"first", "second"},
		[]domain.ChunkMetadata{
			{Source: "notes.txt", DocumentID: "doc-1"},
			{Source: "notes.txt", DocumentID: "doc-1"},
		},
	)

	if err := f.svc.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if f.index.Count() != 0 {
		t.Error("expected index entries removed")
	}
	if f.files.Count() != 0 {
		t.Error("expected raw file removed")
	}
	if job, _ := f.queue.GetJob(ctx, "doc-1"); job != nil {
		t.Error("expected job record removed")
	}
}

func TestDocumentDeleteRequiresID(t *testing.T) {
	f := newDocumentFixture(t)

	if err := f.svc.Delete(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDocumentList(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	_ = f.index.Upsert(ctx,
		[]string{"c1", "c2", "c3"},
		[][]float32{{0.1}, {0.2}, {0.3}},
		[]string{"a", "b", "c"},
		[]domain.ChunkMetadata{
			{Source: "one.txt", DocumentID: "doc-1"},
			{Source: "one.txt", DocumentID: "doc-1"},
			{Source: "two.pdf", DocumentID: "doc-2"},
		},
	)

	docs, err := f.svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
}
