package docstore

import "errors"

// Sentinel kinds for document store errors.
var (
	ErrInvalidQuery = errors.New("invalid query")
	ErrBackend      = errors.New("document store backend")
	ErrThrottled    = errors.New("document store throttled")
)
