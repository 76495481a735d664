package similarity

import "errors"

// Sentinel kinds for scorer errors.
var (
	ErrInvalidInput = errors.New("invalid scorer input")
)
