package pagination

import "errors"

// Sentinel kinds for pagination errors.
var (
	ErrFetch         = errors.New("page fetch failed")
	ErrUnknownFilter = errors.New("filter is not the current state")
	ErrSuperseded    = errors.New("filter was replaced while loading")
)
