package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pitch/internal/adapters/cache"
	"github.com/okian/pitch/internal/adapters/docstore"
	"github.com/okian/pitch/internal/domain/model"
)

const (
	profileFanOut = 8
	scanPageSize  = 100
)

func profileKey(id string) cache.Key { return cache.K(cache.UserProfiles, "USER_"+id) }

// Profile returns the profile of user id, from cache when fresh.
func (s *Service) Profile(ctx context.Context, id string) (model.User, bool, error) {
	var u model.User
	if s.cache.Lookup(ctx, profileKey(id), &u) {
		return u, true, nil
	}

	doc, ok, err := s.docs.FetchByID(ctx, model.CollectionUsers, id)
	if err != nil {
		return model.User{}, false, fmt.Errorf("fetch profile %s: %w", id, err)
	}
	if !ok {
		return model.User{}, false, nil
	}
	if err := doc.Decode(&u); err != nil {
		return model.User{}, false, fmt.Errorf("decode profile %s: %w", id, err)
	}
	if u.ID == "" {
		u.ID = doc.ID
	}
	s.cache.Set(ctx, profileKey(id), u)
	return u, true, nil
}

// Profiles looks up several profiles concurrently. Missing users are
// absent from the result; the first failure is returned along with
// every profile that did load.
func (s *Service) Profiles(ctx context.Context, ids []string) (map[string]model.User, error) {
	var mu sync.Mutex
	out := make(map[string]model.User, len(ids))

	var g errgroup.Group
	g.SetLimit(profileFanOut)
	for _, id := range ids {
		g.Go(func() error {
			u, ok, err := s.Profile(ctx, id)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			out[id] = u
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return out, err
}

// scan reads every document of q in order, page by page.
func scan[T any](ctx context.Context, docs docstore.Fetcher, q docstore.Query) ([]T, error) {
	q.PageSize = scanPageSize
	var (
		out   []T
		after *docstore.Cursor
	)
	for {
		page, err := docs.FetchPage(ctx, q, after)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		for _, d := range page.Documents {
			var v T
			if err := d.Decode(&v); err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, d.ID, err)
			}
			out = append(out, v)
		}
		if page.Count < q.PageSize || page.LastCursor == nil {
			return out, nil
		}
		after = page.LastCursor
	}
}

// allUsers returns the basic list of every user.
func (s *Service) allUsers(ctx context.Context) ([]model.User, error) {
	key := cache.K(cache.AllUsersBasic, "")
	var users []model.User
	if s.cache.Lookup(ctx, key, &users) {
		return users, nil
	}
	users, err := scan[model.User](ctx, s.docs, docstore.Query{Collection: model.CollectionUsers})
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, users)
	return users, nil
}

// friendIDs returns the IDs of the subject's friends.
func (s *Service) friendIDs(ctx context.Context, subjectID string) ([]string, error) {
	key := cache.K(cache.Friends, "IDS_"+subjectID)
	var ids []string
	if s.cache.Lookup(ctx, key, &ids) {
		return ids, nil
	}
	links, err := scan[model.Friendship](ctx, s.docs, docstore.Query{
		Collection: model.CollectionFriendships,
		Where:      []docstore.Condition{{Field: "userIds", Op: docstore.OpContains, Value: subjectID}},
	})
	if err != nil {
		return nil, err
	}
	ids = make([]string, 0, len(links))
	for _, f := range links {
		if other := f.Other(subjectID); other != "" {
			ids = append(ids, other)
		}
	}
	s.cache.Set(ctx, key, ids)
	return ids, nil
}

// experiencesBy returns every experience posted by userID, cached per user.
func (s *Service) experiencesBy(ctx context.Context, userID string) ([]model.Experience, error) {
	key := cache.K(cache.Experiences, "USER_"+userID)
	var items []model.Experience
	if s.cache.Lookup(ctx, key, &items) {
		return items, nil
	}
	items, err := scan[model.Experience](ctx, s.docs, docstore.Query{
		Collection: model.CollectionExperiences,
		Where:      []docstore.Condition{{Field: "userId", Op: docstore.OpEqual, Value: userID}},
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, items)
	return items, nil
}
