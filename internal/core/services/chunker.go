package services

import (
	"strings"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// Chunker default parameters (characters).
const (
	DefaultChunkSize    = 400
	DefaultChunkOverlap = 80
	DefaultMinChunkLen  = 50
)

// Chunker splits normalised document text into overlapping fixed-size
// windows. Pure and deterministic: the same input always yields the same
// chunk sequence, which keeps re-ingestion reproducible.
type Chunker struct {
	size      int
	overlap   int
	minLength int
}

// NewChunker creates a chunker. overlap must be strictly smaller than size,
// otherwise the window offset never advances; that misconfiguration is
// rejected here so the pipeline fails fast instead of looping forever.
// minLength 0 disables the short-fragment filter for pre-cleaned pipelines.
func NewChunker(size, overlap, minLength int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, domain.Permanent(domain.ErrInvalidChunking)
	}
	if minLength < 0 {
		minLength = 0
	}
	return &Chunker{size: size, overlap: overlap, minLength: minLength}, nil
}

// DefaultChunker returns a chunker with the default parameters.
func DefaultChunker() *Chunker {
	c, _ := NewChunker(DefaultChunkSize, DefaultChunkOverlap, DefaultMinChunkLen)
	return c
}

// Split produces the ordered chunk sequence for text. Whitespace runs
// (including newlines) collapse to single spaces before windowing, so chunk
// offsets are stable across platforms' line endings. Windows advance by
// size-overlap; the final window is clipped at the end of the text. Windows
// whose trimmed length does not exceed minLength are dropped.
func (c *Chunker) Split(text string) []string {
	clean := NormalizeText(text)
	if clean == "" {
		return nil
	}

	runes := []rune(clean)
	step := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(chunk)) > c.minLength {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// NormalizeText collapses all whitespace runs to single spaces and trims.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
