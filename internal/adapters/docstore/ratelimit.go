package docstore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/pitch/pkg/metrics"
)

// RateLimited throttles reads against the wrapped Fetcher.
type RateLimited struct {
	next    Fetcher
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond reads with the given burst. A
// non-positive perSecond disables throttling.
func NewRateLimited(next Fetcher, perSecond float64, burst int) *RateLimited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// FetchPage implements Fetcher.
func (r *RateLimited) FetchPage(ctx context.Context, q Query, after *Cursor) (Page, error) {
	if err := r.wait(ctx); err != nil {
		return Page{}, err
	}
	metrics.RecordDocstoreRead(q.Collection, "page")
	return r.next.FetchPage(ctx, q, after)
}

// FetchByID implements Fetcher.
func (r *RateLimited) FetchByID(ctx context.Context, collection, id string) (Document, bool, error) {
	if err := r.wait(ctx); err != nil {
		return Document{}, false, err
	}
	metrics.RecordDocstoreRead(collection, "get")
	return r.next.FetchByID(ctx, collection, id)
}

func (r *RateLimited) wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrThrottled, err)
	}
	metrics.RecordDocstoreThrottleWait(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}
