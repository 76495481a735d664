package seed

import "errors"

var (
	// ErrInvalidConfig is returned when the dataset shape is invalid.
	ErrInvalidConfig = errors.New("invalid seed config")
	// ErrWrite is returned when a document could not be stored.
	ErrWrite = errors.New("seed write failed")
)
