package geo

import "time"

// Option applies a configuration option to the CachedLocator.
type Option func(*CachedLocator)

// WithTimeout bounds each call to the underlying locator.
func WithTimeout(d time.Duration) Option {
	return func(l *CachedLocator) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxAge sets how old a previously acquired position may be and still be served.
func WithMaxAge(d time.Duration) Option {
	return func(l *CachedLocator) {
		if d >= 0 {
			l.maxAge = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *CachedLocator) {
		if now != nil {
			l.now = now
		}
	}
}
