package service

import (
	"context"
	"fmt"

	"github.com/okian/pitch/internal/domain/model"
)

// SubjectProvider resolves the user feeds are assembled for.
type SubjectProvider interface {
	CurrentSubject(ctx context.Context) (model.Subject, error)
}

// ProfileLookup finds a user profile by ID.
type ProfileLookup interface {
	Profile(ctx context.Context, id string) (model.User, bool, error)
}

// StaticSubject is always the same user. A missing profile yields a
// subject without an adjustment factor.
type StaticSubject struct {
	id       string
	profiles ProfileLookup
}

// NewStaticSubject creates a StaticSubject for id.
func NewStaticSubject(id string, profiles ProfileLookup) *StaticSubject {
	return &StaticSubject{id: id, profiles: profiles}
}

// CurrentSubject implements SubjectProvider.
func (s *StaticSubject) CurrentSubject(ctx context.Context) (model.Subject, error) {
	if s.id == "" {
		return model.Subject{}, ErrNoSubject
	}
	u, ok, err := s.profiles.Profile(ctx, s.id)
	if err != nil {
		return model.Subject{}, fmt.Errorf("resolve subject %s: %w", s.id, err)
	}
	if !ok {
		return model.Subject{ID: s.id}, nil
	}
	return model.SubjectFromUser(u), nil
}
