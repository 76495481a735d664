package kvstore

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrOpen    = errors.New("open storage")
	ErrBackend = errors.New("storage backend")
	ErrUnknown = errors.New("unknown storage backend")
)
