package cache

import (
	"sort"
	"time"
)

// Category is a family of cached artifacts sharing one TTL.
type Category string

// Known categories.
const (
	Friends         Category = "FRIENDS"
	Groups          Category = "GROUPS"
	FriendRequests  Category = "FRIEND_REQUESTS"
	SimilarUsers    Category = "SIMILAR_USERS"
	UserProfiles    Category = "USER_PROFILES"
	Experiences     Category = "EXPERIENCES"
	Locations       Category = "LOCATIONS"
	Activities      Category = "ACTIVITIES"
	Recommendations Category = "RECOMMENDATIONS"
	FriendStatuses  Category = "FRIEND_STATUSES"
	AllUsersBasic   Category = "ALL_USERS_BASIC"
)

// fallbackTTL applies to categories without a configured duration.
const fallbackTTL = 5 * time.Minute

// DefaultTTLs returns a fresh copy of the default per-category durations.
func DefaultTTLs() map[Category]time.Duration {
	return map[Category]time.Duration{
		Friends:         10 * time.Minute,
		Groups:          15 * time.Minute,
		FriendRequests:  5 * time.Minute,
		SimilarUsers:    10 * time.Minute,
		UserProfiles:    30 * time.Minute,
		Experiences:     60 * time.Minute,
		Locations:       10 * time.Minute,
		Activities:      30 * time.Minute,
		Recommendations: 15 * time.Minute,
		FriendStatuses:  2 * time.Minute,
		AllUsersBasic:   5 * time.Minute,
	}
}

// Categories lists every known category in name order.
func Categories() []Category {
	ttls := DefaultTTLs()
	out := make([]Category, 0, len(ttls))
	for c := range ttls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Group names a fixed set of categories cleared together.
type Group string

// Invalidation groups.
const (
	FriendsChanged     Group = "friendsChanged"
	ExperiencesChanged Group = "experiencesChanged"
	GroupsChanged      Group = "groupsChanged"
	UsersChanged       Group = "usersChanged"
)

var groupCategories = map[Group][]Category{ //nolint:gochecknoglobals // fixed table
	FriendsChanged:     {Friends, SimilarUsers, FriendRequests, AllUsersBasic},
	ExperiencesChanged: {Experiences, Activities, Recommendations},
	GroupsChanged:      {Groups},
	UsersChanged:       {SimilarUsers, UserProfiles},
}

// GroupCategories returns the categories cleared by g.
func GroupCategories(g Group) ([]Category, bool) {
	cats, ok := groupCategories[g]
	if !ok {
		return nil, false
	}
	return append([]Category(nil), cats...), true
}
