package worker

import (
	"github.com/okian/pitch/internal/domain/dedupe"
	"github.com/okian/pitch/pkg/logger"
)

// Option applies a configuration option to a worker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDeduper skips events whose ID was already applied.
func WithDeduper(d dedupe.Deduper) Option {
	return func(w *InMemoryWorker) {
		if d != nil {
			w.deduper = d
		}
	}
}
