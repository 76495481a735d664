package cache

import (
	"time"

	"github.com/okian/pitch/pkg/logger"
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL overrides the duration of one category.
func WithTTL(c Category, ttl time.Duration) Option {
	return func(cc *Cache) {
		if c != "" && ttl > 0 {
			cc.ttls[c] = ttl
		}
	}
}

// WithTTLs overrides durations by category name. Non-positive values are ignored.
func WithTTLs(ttls map[string]time.Duration) Option {
	return func(cc *Cache) {
		for name, ttl := range ttls {
			if name != "" && ttl > 0 {
				cc.ttls[Category(name)] = ttl
			}
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(cc *Cache) {
		if now != nil {
			cc.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(cc *Cache) {
		if l != nil {
			cc.logger = l
		}
	}
}
