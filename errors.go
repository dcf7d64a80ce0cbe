package docgraph

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("docgraph: document not found")

	// ErrNoContent is returned when a document has neither OCR text nor
	// raw content to analyze.
	ErrNoContent = errors.New("docgraph: document has no analyzable text")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("docgraph: invalid configuration")
)
