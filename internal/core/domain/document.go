package domain

import (
	"github.com/google/uuid"
)

// NewID creates a unique identifier for documents and chunks.
func NewID() string {
	return uuid.NewString()
}

// Document represents an uploaded file awaiting or having completed ingestion.
// It is created when an upload is accepted, consumed once by the ingestion
// pipeline and never mutated afterwards.
type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimetype"`
	FilePath string `json:"file_path"`
}

// DocumentInfo identifies an indexed document, derived from chunk metadata.
type DocumentInfo struct {
	DocumentID string `json:"documentId"`
	Source     string `json:"source"`
}

// ChunkMetadata is stored alongside every chunk in the vector index.
type ChunkMetadata struct {
	Source     string `json:"source"`
	DocumentID string `json:"documentId"`
}

// RetrievedChunk is one similarity match. Matches are ordered best first.
// Content is normalised to "" when the index returns no document text.
type RetrievedChunk struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}
