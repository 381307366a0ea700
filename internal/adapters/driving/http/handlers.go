package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

// maxUploadBytes caps the multipart body so a runaway upload cannot exhaust
// disk or memory.
const maxUploadBytes = 50 << 20 // 50 MB

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.jobQueue != nil {
		if err := s.jobQueue.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"queue":  err.Error(),
			})
			return
		}
	}
	if s.index != nil {
		if err := s.index.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"index":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Chat endpoints

type chatStreamRequest struct {
	Message string `json:"message"`
}

// handleChatStream answers a question as a plain-text token stream. Headers
// go out before generation starts, so service-level failures after that
// point surface as notice text inside the stream rather than an error
// status.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeServerError(w, r, "streaming not supported", errors.New("response writer does not support flushing"))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	started := false
	sink := func(text string) {
		started = true
		if _, err := w.Write([]byte(text)); err != nil {
			return
		}
		flusher.Flush()
	}

	// Client disconnects cancel r.Context(), which stops generation; the
	// service still commits whatever was streamed so far.
	_, err := s.chatService.StreamAnswer(r.Context(), req.Message, sink)
	if err != nil && !started {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "message is required")
		default:
			writeServerError(w, r, "failed to answer", err)
		}
	}
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := s.chatService.History(r.Context())
	if err != nil {
		writeServerError(w, r, "failed to load history", err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.chatService.Reset(r.Context()); err != nil {
		writeServerError(w, r, "failed to reset history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Document endpoints

// handleUpload accepts a multipart document upload and queues it for
// ingestion. The response returns as soon as the file is saved; indexing
// progress is polled via the status endpoint.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")

	resp, err := s.docService.Upload(r.Context(), driving.UploadRequest{
		Filename: header.Filename,
		MimeType: mimeType,
		Content:  file,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedFileType):
			writeError(w, http.StatusBadRequest, "unsupported file type")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid upload")
		default:
			writeServerError(w, r, "upload failed", err)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docService.List(r.Context())
	if err != nil {
		writeServerError(w, r, "failed to list documents", err)
		return
	}
	if docs == nil {
		docs = []domain.DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	state, err := s.docService.Status(r.Context(), documentID)
	if err != nil {
		writeServerError(w, r, "failed to load status", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	if err := s.docService.Delete(r.Context(), documentID); err != nil {
		writeServerError(w, r, "failed to delete document", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServerError responds with a 500 body and logs the cause at error
// level. Client errors go through writeError directly and stay out of the
// error log.
func writeServerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	slog.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, message)
}
