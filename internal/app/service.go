// Package service wires the cache, the paginated feeds, the scorer and the
// change pipeline into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pitch/internal/adapters/cache"
	"github.com/okian/pitch/internal/adapters/docstore"
	eventqueue "github.com/okian/pitch/internal/adapters/mq/queue"
	workerpool "github.com/okian/pitch/internal/adapters/mq/worker"
	"github.com/okian/pitch/internal/adapters/notify"
	"github.com/okian/pitch/internal/adapters/pagination"
	"github.com/okian/pitch/internal/domain/dedupe"
	"github.com/okian/pitch/internal/domain/feed"
	"github.com/okian/pitch/internal/domain/geo"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/internal/domain/similarity"
	"github.com/okian/pitch/pkg/logger"
	"github.com/okian/pitch/pkg/metrics"
)

// Feed names.
const (
	FeedExperiences = "experiences"
	FeedFriends     = "friends"
	FeedGroups      = "groups"
	FeedUsers       = "users"
)

const (
	defaultWorkerCount  = 2
	defaultQueueSize    = 1024
	defaultDedupeSize   = 4096
	defaultSimilarLimit = 6
)

// Service owns one session's feeds.
type Service struct {
	mu sync.RWMutex

	docs      docstore.Fetcher
	cache     *cache.Cache
	scorer    *similarity.Scorer
	assembler *feed.Assembler
	subject   SubjectProvider
	notifier  notify.Notifier
	locator   geo.Locator

	experiences *pagination.Store[model.Experience]
	friends     *pagination.Store[model.Friendship]
	groups      *pagination.Store[model.Group]
	users       *pagination.Store[model.User]

	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	workerCount  int
	queueSize    int
	dedupeSize   int
	pageSizes    map[string]int
	prefetch     bool
	radiusKm     float64
	similarLimit int
	subjectID    string

	started bool

	logger logger.Logger
}

// New creates a Service reading from docs and caching into c.
func New(docs docstore.Fetcher, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		docs:         docs,
		cache:        c,
		workerCount:  defaultWorkerCount,
		queueSize:    defaultQueueSize,
		dedupeSize:   defaultDedupeSize,
		pageSizes:    map[string]int{},
		radiusKm:     feed.DefaultRadiusKm,
		similarLimit: defaultSimilarLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.scorer == nil {
		s.scorer = similarity.NewScorer()
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(nil)
	}
	if s.subject == nil && s.subjectID != "" {
		s.subject = NewStaticSubject(s.subjectID, s)
	}
	s.assembler = feed.NewAssembler(s.scorer, feed.WithRadius(s.radiusKm))

	s.experiences = pagination.New[model.Experience](FeedExperiences, docs, c, cache.Experiences,
		func(pagination.FilterKey) docstore.Query {
			return docstore.Query{Collection: model.CollectionExperiences}
		}, s.storeOptions(FeedExperiences)...)
	s.friends = pagination.New[model.Friendship](FeedFriends, docs, c, cache.Friends,
		func(k pagination.FilterKey) docstore.Query {
			return docstore.Query{
				Collection: model.CollectionFriendships,
				Where:      []docstore.Condition{{Field: "userIds", Op: docstore.OpContains, Value: k.Subject}},
			}
		}, s.storeOptions(FeedFriends)...)
	s.groups = pagination.New[model.Group](FeedGroups, docs, c, cache.Groups,
		func(k pagination.FilterKey) docstore.Query {
			return docstore.Query{
				Collection: model.CollectionGroups,
				Where:      []docstore.Condition{{Field: "members", Op: docstore.OpContains, Value: k.Subject}},
			}
		}, s.storeOptions(FeedGroups)...)
	s.users = pagination.New[model.User](FeedUsers, docs, c, cache.UserProfiles,
		func(pagination.FilterKey) docstore.Query {
			return docstore.Query{Collection: model.CollectionUsers}
		}, s.storeOptions(FeedUsers)...)

	return s
}

func (s *Service) storeOptions(name string) []pagination.Option {
	opts := []pagination.Option{pagination.WithPrefetch(s.prefetch)}
	if n, ok := s.pageSizes[name]; ok {
		opts = append(opts, pagination.WithPageSize(n))
	}
	return opts
}

// Start launches the change workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting feed service...")

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s, s.deduper)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "feed service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains pending change events and releases the feeds.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping feed service...")

	err := s.workerPool.Shutdown(ctx)

	s.experiences.Close()
	s.friends.Close()
	s.groups.Close()
	s.users.Close()

	s.started = false
	s.logger.Info(ctx, "feed service stopped")
	return err
}

// Preload resets every feed for the current subject in parallel. A feed
// that fails to load is reported and does not stop the others.
func (s *Service) Preload(ctx context.Context) error {
	subj, err := s.currentSubject(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range []string{FeedExperiences, FeedFriends, FeedGroups, FeedUsers} {
		g.Go(func() error {
			key := pagination.FilterKey{Mode: string(feed.ModeAll), Subject: subj.ID}
			if err := s.reset(gctx, name, key); err != nil && !errors.Is(err, pagination.ErrSuperseded) {
				s.fetchFault(gctx, name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// reset runs ResetAndLoad on the named feed.
func (s *Service) reset(ctx context.Context, name string, key pagination.FilterKey) error {
	var err error
	switch name {
	case FeedExperiences:
		_, err = s.experiences.ResetAndLoad(ctx, key)
	case FeedFriends:
		_, err = s.friends.ResetAndLoad(ctx, key)
	case FeedGroups:
		_, err = s.groups.ResetAndLoad(ctx, key)
	case FeedUsers:
		_, err = s.users.ResetAndLoad(ctx, key)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFeed, name)
	}
	return err
}

func (s *Service) currentSubject(ctx context.Context) (model.Subject, error) {
	if s.subject == nil {
		return model.Subject{}, ErrNoSubject
	}
	return s.subject.CurrentSubject(ctx)
}

// fetchFault tells the user a load failed. Already loaded items stay visible.
func (s *Service) fetchFault(ctx context.Context, feedName string, err error) {
	metrics.RecordErrorByComponent("service", "fetch")
	s.logger.Warn(ctx, "feed load failed", logger.String("feed", feedName), logger.Error(err))
	s.notifier.Notify(ctx, "Could not load more "+feedName+". Please try again.", notify.SeverityError)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feeds := map[string]any{}
	addFeed := func(name string, pageSize int, key pagination.FilterKey, has bool, loaded int, hasMore bool) {
		st := map[string]any{"pageSize": pageSize, "active": has}
		if has {
			st["filter"] = key.CacheName(pageSize)
			st["loaded"] = loaded
			st["hasMore"] = hasMore
		}
		feeds[name] = st
	}
	feedStats(s.experiences, addFeed)
	feedStats(s.friends, addFeed)
	feedStats(s.groups, addFeed)
	feedStats(s.users, addFeed)

	ttls := map[string]string{}
	for _, c := range cache.Categories() {
		ttls[string(c)] = s.cache.TTL(c).String()
	}

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"feeds":       feeds,
		"cacheTTLs":   ttls,
		"threshold":   s.scorer.Threshold(),
	}
	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["seenEvents"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

func feedStats[T any](st *pagination.Store[T], add func(string, int, pagination.FilterKey, bool, int, bool)) {
	key, has := st.CurrentKey()
	var loaded int
	var hasMore bool
	if has {
		if cur, ok := st.CurrentState(key); ok {
			loaded = len(cur.Items)
			hasMore = cur.HasMore
		}
	}
	add(st.Name(), st.PageSize(), key, has, loaded, hasMore)
}
