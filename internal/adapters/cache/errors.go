package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrUnknownGroup = errors.New("unknown invalidation group")
)
