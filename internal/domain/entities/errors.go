package entities

import "errors"

// Domain errors. Adapters wrap these with %w so callers can classify with errors.Is.
var (
	ErrConfiguration      = errors.New("invalid configuration")
	ErrExtraction         = errors.New("text extraction failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrEmptyRetrieval     = errors.New("no relevant information found")
	ErrStreamDecode       = errors.New("malformed generation stream record")
	ErrNotReady           = errors.New("no document has been processed")
	ErrTimeout            = errors.New("operation timed out")
)
