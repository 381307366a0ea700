package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docchat-core/internal/core/services"
)

type serverFixture struct {
	server    *Server
	queue     *mocks.MockJobQueue
	files     *mocks.MockFileStore
	index     *mocks.MockVectorIndex
	chats     *mocks.MockChatStore
	generator *mocks.MockGenerator
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	queue := mocks.NewMockJobQueue()
	files := mocks.NewMockFileStore()
	index := mocks.NewMockVectorIndex()
	chats := mocks.NewMockChatStore()
	embedder := mocks.NewMockEmbeddingService()
	generator := mocks.NewMockGenerator()

	logger := slog.New(slog.DiscardHandler)

	retrieval := services.NewRetrievalService(embedder, index, logger)
	fallback, err := services.NewFallbackGenerator(generator, []string{"model-a", "model-b"}, logger)
	if err != nil {
		t.Fatalf("NewFallbackGenerator failed: %v", err)
	}

	chatService := services.NewChatService(chats, retrieval, fallback, 0, logger)
	docService := services.NewDocumentService(files, queue, index, logger)

	server := NewServer(DefaultConfig(), chatService, docService, queue, index)

	return &serverFixture{
		server:    server,
		queue:     queue,
		files:     files,
		index:     index,
		chats:     chats,
		generator: generator,
	}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, mimeType, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{mimeType}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart failed: %v", err)
	}
	part.Write([]byte(content))
	writer.Close()

	return &buf, writer.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleReady(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleUpload(t *testing.T) {
	f := newServerFixture(t)

	body, contentType := multipartUpload(t, "notes.txt", "text/plain", "some document text")
	req := httptest.NewRequest("POST", "/api/v1/chat/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := f.do(req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		DocumentID string `json:"documentId"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.DocumentID == "" {
		t.Error("expected a document id")
	}
	if resp.Status != "QUEUED" {
		t.Errorf("expected status QUEUED, got %q", resp.Status)
	}
	if f.queue.PendingCount() != 1 {
		t.Errorf("expected 1 queued job, got %d", f.queue.PendingCount())
	}
	if f.files.Count() != 1 {
		t.Errorf("expected 1 saved file, got %d", f.files.Count())
	}
}

func TestHandleUploadRejectsUnsupportedType(t *testing.T) {
	f := newServerFixture(t)

	body, contentType := multipartUpload(t, "photo.png", "image/png", "binary")
	req := httptest.NewRequest("POST", "/api/v1/chat/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if f.files.Count() != 0 {
		t.Error("expected no file saved for rejected upload")
	}
}

func TestHandleUploadMissingFile(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/chat/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleDocumentStatus(t *testing.T) {
	f := newServerFixture(t)

	job := domain.NewIngestionJob(domain.Document{
		ID:       "doc-1",
		Filename: "notes.txt",
		MimeType: "text/plain",
		FilePath: "/uploads/doc-1-notes.txt",
	})
	if err := f.queue.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	rec := f.do(httptest.NewRequest("GET", "/api/v1/chat/document/doc-1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var state domain.JobState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if state.Status != "QUEUED" {
		t.Errorf("expected QUEUED, got %q", state.Status)
	}
}

func TestHandleDocumentStatusNotFound(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/api/v1/chat/document/missing/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var state domain.JobState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if state.Status != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %q", state.Status)
	}
}

func TestHandleListDocuments(t *testing.T) {
	f := newServerFixture(t)

	err := f.index.Upsert(context.Background(),
		[]string{"c1"}, [][]float32{{1}}, []string{"text"},
		[]domain.ChunkMetadata{{Source: "notes.txt", DocumentID: "doc-1"}},
	)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := f.do(httptest.NewRequest("GET", "/api/v1/chat/document", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var docs []domain.DocumentInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(docs) != 1 || docs[0].DocumentID != "doc-1" {
		t.Errorf("unexpected documents: %+v", docs)
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	f := newServerFixture(t)

	err := f.index.Upsert(context.Background(),
		[]string{"c1"}, [][]float32{{1}}, []string{"text"},
		[]domain.ChunkMetadata{{Source: "notes.txt", DocumentID: "doc-1"}},
	)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := f.do(httptest.NewRequest("DELETE", "/api/v1/chat/document/doc-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.index.Count() != 0 {
		t.Error("expected index entries removed")
	}
}

func TestHandleChatStream(t *testing.T) {
	f := newServerFixture(t)
	f.generator.Responses["model-a"] = []string{"The answer ", "is 42."}

	body := strings.NewReader(`{"message": "what is the answer?"}`)
	req := httptest.NewRequest("POST", "/api/v1/chat/stream", body)
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "The answer is 42." {
		t.Errorf("unexpected stream body %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain content type, got %q", ct)
	}

	// Both turns recorded
	if f.chats.Count() != 2 {
		t.Errorf("expected 2 transcript messages, got %d", f.chats.Count())
	}
	last, _ := f.chats.Last()
	if last.Role != domain.ChatRoleAssistant || last.Content != "The answer is 42." {
		t.Errorf("unexpected assistant turn: %+v", last)
	}
}

func TestHandleChatStreamFallsBackOnRateLimit(t *testing.T) {
	f := newServerFixture(t)
	f.generator.RateLimited["model-a"] = true
	f.generator.Responses["model-b"] = []string{"fallback answer"}

	body := strings.NewReader(`{"message": "hello"}`)
	req := httptest.NewRequest("POST", "/api/v1/chat/stream", body)
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "fallback answer" {
		t.Errorf("unexpected stream body %q", got)
	}
}

func TestHandleChatStreamAllModelsRateLimited(t *testing.T) {
	f := newServerFixture(t)
	f.generator.RateLimited["model-a"] = true
	f.generator.RateLimited["model-b"] = true

	body := strings.NewReader(`{"message": "hello"}`)
	req := httptest.NewRequest("POST", "/api/v1/chat/stream", body)
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with notice text, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != services.NoticeRateLimited {
		t.Errorf("expected rate-limit notice, got %q", got)
	}
}

func TestHandleChatStreamEmptyMessage(t *testing.T) {
	f := newServerFixture(t)

	body := strings.NewReader(`{"message": ""}`)
	req := httptest.NewRequest("POST", "/api/v1/chat/stream", body)
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleHistoryRoundTrip(t *testing.T) {
	f := newServerFixture(t)

	if err := f.chats.Append(context.Background(), domain.NewUserMessage("hi")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	rec := f.do(httptest.NewRequest("GET", "/api/v1/chat/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var messages []domain.ChatMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &messages); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hi" {
		t.Errorf("unexpected history: %+v", messages)
	}

	rec = f.do(httptest.NewRequest("DELETE", "/api/v1/chat/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.chats.Count() != 0 {
		t.Error("expected empty transcript after reset")
	}
}

// recordingHandler captures log records so tests can assert on severity.
type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler       { return h }

func (h *recordingHandler) errorCount() int {
	count := 0
	for _, r := range h.records {
		if r.Level == slog.LevelError {
			count++
		}
	}
	return count
}

func captureLogs(t *testing.T) *recordingHandler {
	t.Helper()
	handler := &recordingHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(handler))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return handler
}

func TestServerErrorsLoggedAtErrorLevel(t *testing.T) {
	f := newServerFixture(t)
	logs := captureLogs(t)

	f.files.SaveErr = errors.New("disk full")
	body, contentType := multipartUpload(t, "notes.txt", "text/plain", "some text")
	req := httptest.NewRequest("POST", "/api/v1/chat/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := f.do(req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if logs.errorCount() != 1 {
		t.Errorf("expected one error-level record for a 500 response, got %d", logs.errorCount())
	}
}

func TestClientErrorsNotLoggedAtErrorLevel(t *testing.T) {
	f := newServerFixture(t)
	logs := captureLogs(t)

	body, contentType := multipartUpload(t, "photo.png", "image/png", "binary")
	req := httptest.NewRequest("POST", "/api/v1/chat/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if logs.errorCount() != 0 {
		t.Errorf("expected no error-level records for a 400 response, got %d", logs.errorCount())
	}
}

func TestCORSPreflightAllowed(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/chat/stream", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	rec := f.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on preflight")
	}
}

func TestNonCORSRequestGetsNoCORSHeaders(t *testing.T) {
	f := newServerFixture(t)

	// No Origin header: not a CORS request
	rec := f.do(httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := rec.Header()["Access-Control-Allow-Origin"]; ok {
		t.Errorf("expected no CORS headers without an Origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

// Verify interface compliance for the fixtures' driven ports
var (
	_ driven.JobQueue  = (*mocks.MockJobQueue)(nil)
	_ driven.ChatStore = (*mocks.MockChatStore)(nil)
	_ driven.FileStore = (*mocks.MockFileStore)(nil)
)
