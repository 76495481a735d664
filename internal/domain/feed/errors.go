package feed

import "errors"

// Sentinel kinds for assembler errors.
var (
	ErrInvalidInput = errors.New("invalid assembler input")
	ErrUnknownMode  = errors.New("unknown feed mode")
)
