package seed

import (
	"fmt"
	"time"

	"github.com/okian/pitch/internal/domain/geo"
)

// Config holds the shape of the generated dataset.
type Config struct {
	Users              int       // number of user profiles
	ExperiencesPerUser int       // experiences posted by each user
	FriendsPerUser     int       // friendships initiated by each user
	Groups             int       // number of groups
	GroupSize          int       // members per group, admin included
	Workers            int       // concurrent writers
	Seed               uint64    // seeds the generator; equal seeds give equal datasets
	Center             geo.Point // users and experiences are scattered around it
	SpreadDeg          float64   // max offset from Center in degrees
	Now                time.Time // newest createdAt; defaults to time.Now
}

// Default dataset shape.
const (
	DefaultUsers              = 50
	DefaultExperiencesPerUser = 8
	DefaultFriendsPerUser     = 3
	DefaultGroups             = 10
	DefaultGroupSize          = 4
	DefaultWorkers            = 8
	DefaultSpreadDeg          = 0.5
)

// DefaultCenter is Waterloo, Ontario.
var DefaultCenter = geo.Point{Lat: 43.4643, Lng: -80.5204}

// DefaultConfig returns the config used by cmd/seed when no flags are given.
func DefaultConfig() Config {
	return Config{
		Users:              DefaultUsers,
		ExperiencesPerUser: DefaultExperiencesPerUser,
		FriendsPerUser:     DefaultFriendsPerUser,
		Groups:             DefaultGroups,
		GroupSize:          DefaultGroupSize,
		Workers:            DefaultWorkers,
		Center:             DefaultCenter,
		SpreadDeg:          DefaultSpreadDeg,
	}
}

// Validate rejects shapes that cannot be generated.
func (c Config) Validate() error {
	switch {
	case c.Users < 1:
		return fmt.Errorf("%w: users must be positive", ErrInvalidConfig)
	case c.ExperiencesPerUser < 0, c.FriendsPerUser < 0, c.Groups < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidConfig)
	case c.Groups > 0 && c.GroupSize < 1:
		return fmt.Errorf("%w: group size must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.SpreadDeg < 0:
		return fmt.Errorf("%w: spread must not be negative", ErrInvalidConfig)
	}
	if err := c.Center.Validate(); err != nil {
		return fmt.Errorf("%w: center: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Stats summarizes one run.
type Stats struct {
	Users       int
	Experiences int
	Friendships int
	Groups      int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}

// Documents is the total number of documents written.
func (s Stats) Documents() int {
	return s.Users + s.Experiences + s.Friendships + s.Groups
}
