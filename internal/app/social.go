package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pitch/internal/adapters/cache"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/internal/domain/similarity"
	"github.com/okian/pitch/pkg/logger"
)

// SimilarUser is a ranked match for the subject.
type SimilarUser struct {
	User  model.User `json:"user"`
	Score float64    `json:"score"`
}

// Recommendation is a place friends rated that the subject has not.
type Recommendation struct {
	Experience     model.Experience `json:"experience"`
	PredictedScore float64          `json:"predictedScore"`
	Confidence     float64          `json:"confidence"`
	RatingCount    int              `json:"ratingCount"`
}

// SimilarUsers ranks other users by personality similarity to the subject.
// Friends and users without a factor are left out.
func (s *Service) SimilarUsers(ctx context.Context) ([]SimilarUser, error) {
	subj, factor, err := s.subjectWithFactor(ctx)
	if err != nil {
		return nil, err
	}

	key := cache.K(cache.SimilarUsers, subj.ID)
	var out []SimilarUser
	if s.cache.Lookup(ctx, key, &out) {
		return out, nil
	}

	var (
		users   []model.User
		friends []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.allUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		friends, err = s.friendIDs(gctx, subj.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(friends)+1)
	excluded[subj.ID] = struct{}{}
	for _, id := range friends {
		excluded[id] = struct{}{}
	}

	byID := make(map[string]model.User, len(users))
	candidates := make([]similarity.Candidate, 0, len(users))
	for _, u := range users {
		if _, skip := excluded[u.ID]; skip || u.AdjustmentFactor == nil {
			continue
		}
		if err := s.scorer.ValidateFactor(*u.AdjustmentFactor); err != nil {
			s.logger.Debug(ctx, "skipping user with invalid factor", logger.String("user", u.ID))
			continue
		}
		byID[u.ID] = u
		candidates = append(candidates, similarity.Candidate{ID: u.ID, Factor: *u.AdjustmentFactor})
	}

	ranked, err := s.scorer.RankCandidates(factor, candidates)
	if err != nil {
		return nil, err
	}
	if len(ranked) > s.similarLimit {
		ranked = ranked[:s.similarLimit]
	}
	out = make([]SimilarUser, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, SimilarUser{User: byID[r.ID], Score: r.Score})
	}

	s.cache.Set(ctx, key, out)
	return out, nil
}

// Recommendations predicts how the subject would rate the places their
// friends rated and the subject has not. Ratings of one place are
// averaged; the best predicted score weighted by confidence comes first.
func (s *Service) Recommendations(ctx context.Context) ([]Recommendation, error) {
	subj, factor, err := s.subjectWithFactor(ctx)
	if err != nil {
		return nil, err
	}

	key := cache.K(cache.Recommendations, subj.ID)
	var out []Recommendation
	if s.cache.Lookup(ctx, key, &out) {
		return out, nil
	}

	friends, err := s.friendIDs(ctx, subj.ID)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		rated []model.Experience
	)
	byFriend := make(map[string][]model.Experience, len(friends))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profileFanOut)
	g.Go(func() (err error) {
		rated, err = s.experiencesBy(gctx, subj.ID)
		return err
	})
	for _, id := range friends {
		g.Go(func() error {
			items, err := s.experiencesBy(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			byFriend[id] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profiles, err := s.Profiles(ctx, friends)
	if err != nil {
		s.logger.Warn(ctx, "some friend profiles could not be loaded", logger.Error(err))
	}

	visited := make(map[string]struct{}, len(rated))
	for _, e := range rated {
		visited[placeKey(e)] = struct{}{}
	}

	type agg struct {
		first      model.Experience
		score      float64
		confidence float64
		count      int
	}
	places := map[string]*agg{}
	for _, id := range friends {
		author, ok := profiles[id]
		if !ok || author.AdjustmentFactor == nil {
			continue
		}
		for _, e := range byFriend[id] {
			k := placeKey(e)
			if _, seen := visited[k]; seen {
				continue
			}
			p, err := s.scorer.PredictRating(factor, *author.AdjustmentFactor, e.Rating, e.SocialIntensity)
			if err != nil {
				s.logger.Debug(ctx, "skipping unscorable rating", logger.String("experience", e.ID), logger.Error(err))
				continue
			}
			a := places[k]
			if a == nil {
				a = &agg{first: e}
				places[k] = a
			}
			a.score += p.Prediction * p.Confidence
			a.confidence += p.Confidence
			a.count++
		}
	}

	out = make([]Recommendation, 0, len(places))
	for _, a := range places {
		out = append(out, Recommendation{
			Experience:     a.first,
			PredictedScore: a.score / float64(a.count),
			Confidence:     a.confidence / float64(a.count),
			RatingCount:    a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		wi := out[i].PredictedScore * out[i].Confidence
		wj := out[j].PredictedScore * out[j].Confidence
		if wi != wj {
			return wi > wj
		}
		return placeKey(out[i].Experience) < placeKey(out[j].Experience)
	})

	s.cache.Set(ctx, key, out)
	return out, nil
}

func placeKey(e model.Experience) string {
	return strings.ToLower(strings.TrimSpace(e.Name))
}

func (s *Service) subjectWithFactor(ctx context.Context) (model.Subject, float64, error) {
	subj, err := s.currentSubject(ctx)
	if err != nil {
		return model.Subject{}, 0, err
	}
	if subj.AdjustmentFactor == nil {
		return model.Subject{}, 0, fmt.Errorf("%w: subject %s has no adjustment factor", similarity.ErrInvalidInput, subj.ID)
	}
	if err := s.scorer.ValidateFactor(*subj.AdjustmentFactor); err != nil {
		return model.Subject{}, 0, fmt.Errorf("subject %s: %w", subj.ID, err)
	}
	return subj, *subj.AdjustmentFactor, nil
}
