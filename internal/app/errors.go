package service

import "errors"

var (
	ErrUnknownFeed = errors.New("unknown feed")
	ErrNoSubject   = errors.New("no current subject")
	ErrNotStarted  = errors.New("service not started")
	ErrQueueFull   = errors.New("change queue full")
)
