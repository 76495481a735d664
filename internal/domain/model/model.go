// Package model contains domain records passed between layers.
package model

import (
	"time"

	"github.com/okian/pitch/internal/domain/geo"
)

// Collection names in the document store.
const (
	CollectionExperiences = "experiences"
	CollectionUsers       = "users"
	CollectionGroups      = "groups"
	CollectionFriendships = "friends"
)

// Experience is a rated activity posted by a user.
type Experience struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	Location        string     `json:"location"`
	Description     string     `json:"description,omitempty"`
	Rating          float64    `json:"rating"`          // 1..10
	SocialIntensity float64    `json:"socialIntensity"` // >= 0
	Coordinates     *geo.Point `json:"coordinates,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// User is a member profile.
type User struct {
	ID               string     `json:"id"`
	DisplayName      string     `json:"displayName"`
	Username         string     `json:"username,omitempty"`
	AdjustmentFactor *float64   `json:"adjustmentFactor,omitempty"`
	Location         *geo.Point `json:"location,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Group is a set of members planning together.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Admin       string    `json:"admin"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Friendship links two users. UserIDs always holds both ends.
type Friendship struct {
	ID        string    `json:"id"`
	UserIDs   []string  `json:"userIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// Other returns the end of the friendship that is not id, or "" if id is not part of it.
func (f Friendship) Other(id string) string {
	if len(f.UserIDs) != 2 {
		return ""
	}
	switch id {
	case f.UserIDs[0]:
		return f.UserIDs[1]
	case f.UserIDs[1]:
		return f.UserIDs[0]
	}
	return ""
}

// Subject is the user on whose behalf feeds are assembled.
type Subject struct {
	ID               string
	AdjustmentFactor *float64
	Location         *geo.Point
}

// SubjectFromUser builds a Subject from a stored profile.
func SubjectFromUser(u User) Subject {
	return Subject{ID: u.ID, AdjustmentFactor: u.AdjustmentFactor, Location: u.Location}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
