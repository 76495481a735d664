package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitch/internal/adapters/cache"
	"github.com/okian/pitch/internal/adapters/mq/queue"
	"github.com/okian/pitch/internal/adapters/pagination"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/pkg/logger"
)

type changeTarget struct {
	group cache.Group
	feed  string
}

var changeTargets = map[string]changeTarget{ //nolint:gochecknoglobals // fixed table
	model.CollectionExperiences: {group: cache.ExperiencesChanged, feed: FeedExperiences},
	model.CollectionFriendships: {group: cache.FriendsChanged, feed: FeedFriends},
	model.CollectionGroups:      {group: cache.GroupsChanged, feed: FeedGroups},
	model.CollectionUsers:       {group: cache.UsersChanged, feed: FeedUsers},
}

// NotifyChanged queues a change of collection for the workers. An empty
// eventID gets a generated one. It returns the ID used.
func (s *Service) NotifyChanged(ctx context.Context, collection, docID, eventID string) (string, error) {
	if _, ok := changeTargets[collection]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFeed, collection)
	}

	s.mu.RLock()
	q, started := s.eventQueue, s.started
	s.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}

	if eventID == "" {
		eventID = uuid.NewString()
	}
	e := queue.Event{EventID: eventID, Collection: collection, DocID: docID, TS: time.Now()}
	if !q.Enqueue(ctx, e) {
		return "", ErrQueueFull
	}
	s.logger.Debug(ctx, "change queued",
		logger.String("eventID", eventID),
		logger.String("collection", collection),
	)
	return eventID, nil
}

// ApplyChange clears the cache group of the changed collection and reloads
// its feed if one is active.
func (s *Service) ApplyChange(ctx context.Context, e queue.Event) error {
	target, ok := changeTargets[e.Collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeed, e.Collection)
	}

	if err := s.cache.ClearGroup(ctx, target.group); err != nil {
		return err
	}
	if e.Collection == model.CollectionUsers {
		s.cache.Clear(ctx, cache.K(cache.AllUsersBasic, ""))
	}

	key, active := s.currentKey(target.feed)
	if !active {
		return nil
	}
	err := s.reset(ctx, target.feed, key)
	if errors.Is(err, pagination.ErrSuperseded) {
		// a newer reset of the feed already reads fresh data
		return nil
	}
	if err != nil {
		s.fetchFault(ctx, target.feed, err)
		return err
	}
	s.logger.Info(ctx, "feed reloaded after change",
		logger.String("feed", target.feed),
		logger.String("collection", e.Collection),
		logger.String("doc", e.DocID),
	)
	return nil
}

func (s *Service) currentKey(name string) (key pagination.FilterKey, ok bool) {
	switch name {
	case FeedExperiences:
		return s.experiences.CurrentKey()
	case FeedFriends:
		return s.friends.CurrentKey()
	case FeedGroups:
		return s.groups.CurrentKey()
	case FeedUsers:
		return s.users.CurrentKey()
	}
	return key, false
}
