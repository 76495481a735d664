package service

import (
	"context"
	"errors"

	"github.com/okian/pitch/internal/adapters/notify"
	"github.com/okian/pitch/internal/adapters/pagination"
	"github.com/okian/pitch/internal/domain/feed"
	"github.com/okian/pitch/internal/domain/geo"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/pkg/logger"
)

// FeedRequest selects a view of the experiences feed.
type FeedRequest struct {
	Mode     feed.Mode
	Search   string
	Origin   *geo.Point
	RadiusKm float64
}

// FeedView is an assembled page of the experiences feed.
type FeedView struct {
	Mode    feed.Mode    `json:"mode"`
	Entries []feed.Entry `json:"entries"`
	Loaded  int          `json:"loaded"`
	HasMore bool         `json:"hasMore"`
	// Degraded is set when the last load failed and older data is shown.
	Degraded bool `json:"degraded,omitempty"`
}

// ListView is a raw page state of one of the secondary feeds.
type ListView struct {
	Feed     string `json:"feed"`
	Items    any    `json:"items"`
	Loaded   int    `json:"loaded"`
	HasMore  bool   `json:"hasMore"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Feed resets the experiences feed to req and returns the first assembled view.
func (s *Service) Feed(ctx context.Context, req FeedRequest) (FeedView, error) {
	subj, err := s.currentSubject(ctx)
	if err != nil {
		return FeedView{}, err
	}
	key := feedKey(req, subj)

	st, err := s.experiences.ResetAndLoad(ctx, key)
	degraded := false
	if err != nil {
		if !errors.Is(err, pagination.ErrFetch) {
			return FeedView{}, err
		}
		s.fetchFault(ctx, FeedExperiences, err)
		degraded = true
	}
	return s.assemble(ctx, req, subj, st, degraded)
}

// NextPage appends the next page to the experiences feed for req. When req
// is not the current filter the feed is reset first.
func (s *Service) NextPage(ctx context.Context, req FeedRequest) (FeedView, error) {
	subj, err := s.currentSubject(ctx)
	if err != nil {
		return FeedView{}, err
	}
	key := feedKey(req, subj)

	st, err := s.experiences.LoadNextPage(ctx, key, false)
	switch {
	case errors.Is(err, pagination.ErrUnknownFilter):
		return s.Feed(ctx, req)
	case errors.Is(err, pagination.ErrSuperseded):
		return FeedView{}, err
	}
	degraded := false
	if err != nil {
		s.fetchFault(ctx, FeedExperiences, err)
		degraded = true
	}
	return s.assemble(ctx, req, subj, st, degraded)
}

func feedKey(req FeedRequest, subj model.Subject) pagination.FilterKey {
	mode := req.Mode
	if mode == "" {
		mode = feed.ModeAll
	}
	return pagination.FilterKey{Mode: string(mode), Search: req.Search, Subject: subj.ID}
}

func (s *Service) assemble(ctx context.Context, req FeedRequest, subj model.Subject, st pagination.PageState[model.Experience], degraded bool) (FeedView, error) {
	mode := req.Mode
	if mode == "" {
		mode = feed.ModeAll
	}
	fc := feed.Context{
		Subject: &subj,
		Search:  req.Search,
		Origin:  req.Origin,
		Radius:  req.RadiusKm,
	}

	switch mode {
	case feed.ModeSimilar, feed.ModeTopRated:
		fc.AuthorFactors = s.authorFactors(ctx, st.Items)
	case feed.ModeNearby:
		if fc.Origin == nil && subj.Location == nil && s.locator != nil {
			p, err := s.locator.Locate(ctx)
			if err != nil {
				s.logger.Warn(ctx, "geolocation failed", logger.Error(err))
				s.notifier.Notify(ctx, "Could not determine your location.", notify.SeverityWarning)
			} else {
				fc.Origin = &p
			}
		}
	}

	entries, err := s.assembler.Apply(st.Items, mode, fc)
	if err != nil {
		return FeedView{}, err
	}
	return FeedView{
		Mode:     mode,
		Entries:  entries,
		Loaded:   len(st.Items),
		HasMore:  st.HasMore,
		Degraded: degraded,
	}, nil
}

// authorFactors resolves the adjustment factors of the authors of items.
// Authors whose profile cannot be read or whose factor is unusable are left out.
func (s *Service) authorFactors(ctx context.Context, items []model.Experience) map[string]float64 {
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.UserID]; ok || it.UserID == "" {
			continue
		}
		seen[it.UserID] = struct{}{}
		ids = append(ids, it.UserID)
	}

	profiles, err := s.Profiles(ctx, ids)
	if err != nil {
		s.logger.Warn(ctx, "some author profiles could not be loaded", logger.Error(err))
	}
	factors := make(map[string]float64, len(profiles))
	for id, u := range profiles {
		if u.AdjustmentFactor == nil || s.scorer.ValidateFactor(*u.AdjustmentFactor) != nil {
			continue
		}
		factors[id] = *u.AdjustmentFactor
	}
	return factors
}

// List returns the current state of a secondary feed, loading the next
// page when next is set. The feed is reset when it has no state for the
// current subject.
func (s *Service) List(ctx context.Context, name string, next bool) (ListView, error) {
	subj, err := s.currentSubject(ctx)
	if err != nil {
		return ListView{}, err
	}
	key := pagination.FilterKey{Mode: string(feed.ModeAll), Subject: subj.ID}

	switch name {
	case FeedFriends:
		return listOf(ctx, s, s.friends, key, next)
	case FeedGroups:
		return listOf(ctx, s, s.groups, key, next)
	case FeedUsers:
		return listOf(ctx, s, s.users, key, next)
	case FeedExperiences:
		return listOf(ctx, s, s.experiences, key, next)
	}
	return ListView{}, ErrUnknownFeed
}

func listOf[T any](ctx context.Context, s *Service, st *pagination.Store[T], key pagination.FilterKey, next bool) (ListView, error) {
	cur, ok := st.CurrentState(key)
	var err error
	switch {
	case !ok:
		cur, err = st.ResetAndLoad(ctx, key)
	case next:
		cur, err = st.LoadNextPage(ctx, key, false)
	}
	degraded := false
	if err != nil {
		if !errors.Is(err, pagination.ErrFetch) {
			return ListView{}, err
		}
		s.fetchFault(ctx, st.Name(), err)
		degraded = true
	}
	items := cur.Items
	if items == nil {
		items = []T{}
	}
	return ListView{
		Feed:     st.Name(),
		Items:    items,
		Loaded:   len(cur.Items),
		HasMore:  cur.HasMore,
		Degraded: degraded,
	}, nil
}
