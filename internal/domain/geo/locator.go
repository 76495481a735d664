package geo

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default acquisition policy.
const (
	DefaultTimeout = 10 * time.Second
	DefaultMaxAge  = 5 * time.Minute
)

// Locator acquires the current position.
type Locator interface {
	Locate(ctx context.Context) (Point, error)
}

// StaticLocator always reports the same position.
type StaticLocator struct {
	Point Point
}

// Locate returns the configured point.
func (s StaticLocator) Locate(ctx context.Context) (Point, error) {
	if err := ctx.Err(); err != nil {
		return Point{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := s.Point.Validate(); err != nil {
		return Point{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return s.Point, nil
}

// CachedLocator serves a recent position when one is available and otherwise
// asks the underlying locator under a fixed timeout.
type CachedLocator struct {
	source  Locator
	timeout time.Duration
	maxAge  time.Duration
	now     func() time.Time

	mu       sync.Mutex
	last     Point
	lastAt   time.Time
	hasFixed bool
}

// NewCachedLocator wraps source with timeout and max-age handling.
func NewCachedLocator(source Locator, opts ...Option) *CachedLocator {
	l := &CachedLocator{
		source:  source,
		timeout: DefaultTimeout,
		maxAge:  DefaultMaxAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the cached position if it is younger than the max age,
// otherwise acquires a fresh one.
func (l *CachedLocator) Locate(ctx context.Context) (Point, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hasFixed && l.now().Sub(l.lastAt) <= l.maxAge {
		return l.last, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	p, err := l.source.Locate(callCtx)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := p.Validate(); err != nil {
		return Point{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	l.last = p
	l.lastAt = l.now()
	l.hasFixed = true
	return p, nil
}
