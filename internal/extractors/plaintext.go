package extractors

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Extractor = (*PlainText)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText decodes text files directly. It handles all text/* types.
type PlainText struct{}

// NewPlainText creates the plain-text extractor.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Extract implements driven.Extractor.
func (p *PlainText) Extract(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(data), nil
}

// SupportedTypes implements driven.Extractor.
func (p *PlainText) SupportedTypes() []string {
	return []string{"text/*"}
}

// Priority implements driven.Extractor.
func (p *PlainText) Priority() int {
	return 0
}
