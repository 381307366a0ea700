package driven

// Extractor converts raw file bytes of a supported MIME type into plain text.
type Extractor interface {
	// Extract returns the document's text content.
	Extract(data []byte) (string, error)

	// SupportedTypes returns the MIME types this extractor handles.
	// Wildcards are allowed (e.g. "text/*").
	SupportedTypes() []string

	// Priority determines selection order when multiple extractors match
	// a MIME type. Higher wins.
	Priority() int
}

// ExtractorRegistry resolves the extractor for a MIME type.
type ExtractorRegistry interface {
	// Register adds an extractor to the registry.
	Register(e Extractor)

	// Get retrieves the best-matching extractor for a MIME type.
	// Returns nil if the type is unsupported.
	Get(mimeType string) Extractor

	// List returns all registered MIME types.
	List() []string
}
