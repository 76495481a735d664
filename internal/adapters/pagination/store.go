// Package pagination loads server-ordered collections page by page with
// cache-assisted warm starts.
//
// A Store holds one PageState at a time, for the filter it was last reset
// to. Loads for the same state never overlap; a load that completes after
// its state was replaced is dropped and the caller sees the replacement
// state, or ErrSuperseded when the filter itself changed.
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitch/internal/adapters/cache"
	"github.com/okian/pitch/internal/adapters/docstore"
	"github.com/okian/pitch/pkg/logger"
	"github.com/okian/pitch/pkg/metrics"
)

// Fetch outcomes reported to metrics.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeStale   = "stale"
	outcomeSkipped = "skipped"
)

// FilterKey identifies a filtered view of a feed.
type FilterKey struct {
	Mode    string
	Search  string
	Subject string
}

// CacheName renders the snapshot name for k at pageSize.
func (k FilterKey) CacheName(pageSize int) string {
	return fmt.Sprintf("FEED_%s_%s_%s_%d", k.Mode, strings.ToLower(strings.TrimSpace(k.Search)), k.Subject, pageSize)
}

// PageState is the accumulated result of paging through one filter.
type PageState[T any] struct {
	Items     []T              `json:"items"`
	Cursor    *docstore.Cursor `json:"cursor"`
	HasMore   bool             `json:"hasMore"`
	IsLoading bool             `json:"-"`
}

func (p PageState[T]) clone() PageState[T] {
	p.Items = slices.Clone(p.Items)
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	return p
}

// QueryFunc builds the document query for a filter. PageSize is set by the Store.
type QueryFunc func(FilterKey) docstore.Query

// Store pages one feed. It is safe for concurrent use.
type Store[T any] struct {
	name     string
	fetcher  docstore.Fetcher
	cache    *cache.Cache
	category cache.Category
	queryFor QueryFunc
	opts     options

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	key    FilterKey
	has    bool
	gen    string
	state  PageState[T]
	closed bool
}

// New creates a Store named name whose snapshots live under category.
func New[T any](name string, fetcher docstore.Fetcher, c *cache.Cache, category cache.Category, queryFor QueryFunc, opts ...Option) *Store[T] {
	o := options{pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("pagination").Named(name)
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Store[T]{
		name:     name,
		fetcher:  fetcher,
		cache:    c,
		category: category,
		queryFor: queryFor,
		opts:     o,
		bg:       bg,
		cancel:   cancel,
	}
}

// Name returns the feed name.
func (s *Store[T]) Name() string { return s.name }

// PageSize returns the configured page size.
func (s *Store[T]) PageSize() int { return s.opts.pageSize }

// ResetAndLoad discards the current state and starts key afresh. A fresh
// cached snapshot for key is adopted without fetching; otherwise the first
// page is fetched.
func (s *Store[T]) ResetAndLoad(ctx context.Context, key FilterKey) (PageState[T], error) {
	s.mu.Lock()
	s.key = key
	s.has = true
	s.gen = uuid.NewString()
	s.state = PageState[T]{HasMore: true}
	gen := s.gen
	s.mu.Unlock()
	metrics.UpdatePageItemsLoaded(s.name, 0)

	var snap PageState[T]
	if s.cache.Lookup(ctx, s.cacheKey(key), &snap) {
		s.mu.Lock()
		if s.gen != gen {
			st, err := s.supersededLocked(key)
			s.mu.Unlock()
			metrics.RecordPageFetch(s.name, outcomeStale)
			return st, err
		}
		s.state = PageState[T]{Items: snap.Items, Cursor: snap.Cursor, HasMore: snap.HasMore}
		st := s.state.clone()
		s.mu.Unlock()

		metrics.RecordPageWarmStart(s.name)
		metrics.UpdatePageItemsLoaded(s.name, len(st.Items))
		s.opts.logger.Debug(ctx, "resumed from snapshot",
			logger.String("filter", key.CacheName(s.opts.pageSize)),
			logger.Int("items", len(st.Items)),
			logger.Bool("has_more", st.HasMore),
		)

		if s.opts.prefetch && st.HasMore {
			s.prefetch(key)
		}
		return st, nil
	}

	return s.LoadNextPage(ctx, key, false)
}

// LoadNextPage fetches the page after the current cursor and appends it.
// It returns the current state unchanged when a load is already running or
// the feed is exhausted. On failure the state keeps its items, cursor and
// hasMore, and the error wraps ErrFetch.
func (s *Store[T]) LoadNextPage(ctx context.Context, key FilterKey, prefetch bool) (PageState[T], error) {
	s.mu.Lock()
	if !s.has || s.key != key {
		s.mu.Unlock()
		return PageState[T]{}, fmt.Errorf("%w: %s", ErrUnknownFilter, key.CacheName(s.opts.pageSize))
	}
	if s.state.IsLoading || !s.state.HasMore {
		st := s.state.clone()
		s.mu.Unlock()
		metrics.RecordPageFetch(s.name, outcomeSkipped)
		return st, nil
	}
	s.state.IsLoading = true
	gen := s.gen
	after := s.state.Cursor
	s.mu.Unlock()

	q := s.queryFor(key)
	q.PageSize = s.opts.pageSize

	start := time.Now()
	page, err := s.fetcher.FetchPage(ctx, q, after)
	metrics.RecordPageFetchLatency(s.name, float64(time.Since(start).Microseconds())/1000)

	var items []T
	if err == nil {
		items, err = decode[T](page.Documents)
	}

	s.mu.Lock()
	if s.gen != gen {
		st, serr := s.supersededLocked(key)
		s.mu.Unlock()
		metrics.RecordPageFetch(s.name, outcomeStale)
		s.opts.logger.Debug(ctx, "dropped superseded page",
			logger.String("filter", key.CacheName(s.opts.pageSize)),
			logger.Bool("prefetch", prefetch),
		)
		return st, serr
	}
	if err != nil {
		s.state.IsLoading = false
		st := s.state.clone()
		s.mu.Unlock()
		metrics.RecordPageFetch(s.name, outcomeError)
		metrics.RecordErrorByComponent("pagination", "fetch")
		s.opts.logger.Warn(ctx, "page fetch failed",
			logger.String("filter", key.CacheName(s.opts.pageSize)),
			logger.Bool("prefetch", prefetch),
			logger.Error(err),
		)
		return st, fmt.Errorf("%w: %s: %w", ErrFetch, s.name, err)
	}

	s.state.Items = append(s.state.Items, items...)
	if page.LastCursor != nil {
		s.state.Cursor = page.LastCursor
	}
	s.state.HasMore = page.Count == s.opts.pageSize
	s.state.IsLoading = false
	st := s.state.clone()
	s.mu.Unlock()

	metrics.RecordPageFetch(s.name, outcomeOK)
	metrics.UpdatePageItemsLoaded(s.name, len(st.Items))
	s.cache.Set(ctx, s.cacheKey(key), st)
	return st, nil
}

// CurrentState returns the state for key if key is the current filter.
func (s *Store[T]) CurrentState(key FilterKey) (PageState[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has || s.key != key {
		return PageState[T]{}, false
	}
	return s.state.clone(), true
}

// CurrentKey returns the filter of the current state, if any.
func (s *Store[T]) CurrentKey() (FilterKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.has
}

// supersededLocked is the answer to a load whose state was replaced. The
// replacement is returned when it is for the same filter. s.mu must be held.
func (s *Store[T]) supersededLocked(key FilterKey) (PageState[T], error) {
	if s.has && s.key == key {
		return s.state.clone(), nil
	}
	return PageState[T]{}, fmt.Errorf("%w: %s", ErrSuperseded, key.CacheName(s.opts.pageSize))
}

// Close cancels background prefetches, waits for them and releases the
// store. No prefetch starts after Close.
func (s *Store[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Store[T]) prefetch(key FilterKey) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	metrics.RecordPagePrefetch(s.name)
	go func() {
		defer s.wg.Done()
		// failures are logged by LoadNextPage; the visible state is unaffected
		_, _ = s.LoadNextPage(s.bg, key, true)
	}()
}

func (s *Store[T]) cacheKey(key FilterKey) cache.Key {
	return cache.K(s.category, key.CacheName(s.opts.pageSize))
}

func decode[T any](docs []docstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
