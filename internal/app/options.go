package service

import (
	"github.com/okian/pitch/internal/adapters/notify"
	"github.com/okian/pitch/internal/domain/geo"
	"github.com/okian/pitch/internal/domain/similarity"
	"github.com/okian/pitch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of change workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the change queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many change event IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPageSize sets the page size of one feed.
func WithPageSize(feed string, n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSizes[feed] = n
		}
	}
}

// WithPrefetch enables loading the second page in the background after a reset.
func WithPrefetch(enabled bool) Option {
	return func(s *Service) {
		s.prefetch = enabled
	}
}

// WithScorer replaces the default similarity scorer.
func WithScorer(sc *similarity.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithNearbyRadius sets the default nearby radius in km.
func WithNearbyRadius(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.radiusKm = km
		}
	}
}

// WithSimilarUsersLimit caps the similar users list.
func WithSimilarUsersLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.similarLimit = n
		}
	}
}

// WithSubjectID resolves the current subject from the profile of id.
func WithSubjectID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.subjectID = id
		}
	}
}

// WithSubjectProvider sets how the current subject is resolved. It takes
// precedence over WithSubjectID.
func WithSubjectProvider(p SubjectProvider) Option {
	return func(s *Service) {
		if p != nil {
			s.subject = p
		}
	}
}

// WithNotifier sets where user-facing messages go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLocator sets the fallback origin for nearby feeds.
func WithLocator(l geo.Locator) Option {
	return func(s *Service) {
		if l != nil {
			s.locator = l
		}
	}
}
