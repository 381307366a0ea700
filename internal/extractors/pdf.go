package extractors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Extractor = (*PDF)(nil)

// PDF extracts plain text from PDF bytes.
type PDF struct{}

// NewPDF creates the PDF extractor.
func NewPDF() *PDF {
	return &PDF{}
}

// Extract implements driven.Extractor.
func (p *PDF) Extract(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// SupportedTypes implements driven.Extractor.
func (p *PDF) SupportedTypes() []string {
	return []string{"application/pdf"}
}

// Priority implements driven.Extractor.
func (p *PDF) Priority() int {
	return 0
}
