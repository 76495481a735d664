package geo

import "errors"

// Sentinel kinds for geo errors.
var (
	ErrInvalidPoint = errors.New("invalid point")
	ErrUnavailable  = errors.New("position unavailable")
)
