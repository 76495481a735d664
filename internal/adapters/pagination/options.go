package pagination

import (
	"github.com/okian/pitch/pkg/logger"
)

// Default page size when none is configured.
const defaultPageSize = 10

type options struct {
	pageSize int
	prefetch bool
	logger   logger.Logger
}

// Option applies a configuration option to a Store.
type Option func(*options)

// WithPageSize sets the number of records requested per page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithPrefetch enables a background fetch of the next page after a warm start.
func WithPrefetch(enabled bool) Option {
	return func(o *options) {
		o.prefetch = enabled
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
