// Package seed generates synthetic users, experiences, friendships and groups
// and writes them to a document store.
package seed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pitch/internal/domain/geo"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/pkg/logger"
)

// Rating bands, picked uniformly, on the 1..10 scale.
var ratingBands = [...]struct{ min, span float64 }{
	{4.0, 3.0}, // average, most common
	{7.0, 2.0}, // high
	{1.0, 3.0}, // low
	{9.0, 1.0}, // elite
	{1.0, 1.0}, // very low
	{6.0, 2.0}, // mid-high
	{3.0, 2.0}, // mid-low
	{1.0, 9.0}, // anything
}

const (
	noFactorPercent   = 10
	noLocationPercent = 20
	maxSocial         = 5.0
	maxAge            = 30 * 24 * time.Hour
)

var places = [...]struct{ name, category string }{
	{"Riverside Park", "outdoors"},
	{"Old Town Market", "food"},
	{"City Museum", "culture"},
	{"Climbing Gym", "sport"},
	{"Jazz Cellar", "music"},
	{"Board Game Cafe", "social"},
	{"Botanical Garden", "outdoors"},
	{"Ramen Bar", "food"},
	{"Escape Room", "social"},
	{"Art House Cinema", "culture"},
	{"Lakeside Trail", "outdoors"},
	{"Karaoke Lounge", "music"},
}

var firstNames = [...]string{
	"Ada", "Ben", "Cleo", "Dev", "Emil", "Fay", "Gus", "Hana",
	"Ivo", "June", "Kai", "Lena", "Milo", "Nia", "Omar", "Pia",
}

// Dataset is everything one run writes.
type Dataset struct {
	Users       []model.User       `json:"users"`
	Experiences []model.Experience `json:"experiences"`
	Friendships []model.Friendship `json:"friendships"`
	Groups      []model.Group      `json:"groups"`
}

type generator struct {
	cfg Config
	src *rand.ChaCha8
	rng *rand.Rand
	now time.Time
}

// Generate builds a dataset for cfg. The same Seed always yields the same dataset.
func Generate(ctx context.Context, cfg Config) (Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return Dataset{}, err
	}
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], cfg.Seed)
	src := rand.NewChaCha8(key)
	g := &generator{cfg: cfg, src: src, rng: rand.New(src), now: cfg.Now}
	if g.now.IsZero() {
		g.now = time.Now().UTC()
	}

	var ds Dataset
	var err error
	if ds.Users, err = g.users(); err != nil {
		return Dataset{}, err
	}
	if err := ctx.Err(); err != nil {
		return Dataset{}, fmt.Errorf("generation cancelled: %w", err)
	}
	if ds.Experiences, err = g.experiences(ds.Users); err != nil {
		return Dataset{}, err
	}
	if ds.Friendships, err = g.friendships(ds.Users); err != nil {
		return Dataset{}, err
	}
	if ds.Groups, err = g.groups(ds.Users); err != nil {
		return Dataset{}, err
	}

	logger.Get().Named("seed").Info(ctx, "generated dataset",
		logger.Int("users", len(ds.Users)),
		logger.Int("experiences", len(ds.Experiences)),
		logger.Int("friendships", len(ds.Friendships)),
		logger.Int("groups", len(ds.Groups)))
	return ds, nil
}

func (g *generator) id() (string, error) {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func (g *generator) percent(p int) bool { return g.rng.IntN(100) < p }

func (g *generator) createdAt() time.Time {
	return g.now.Add(-time.Duration(g.rng.Int64N(int64(maxAge)))).Truncate(time.Second)
}

func (g *generator) point() geo.Point {
	jitter := func() float64 { return (g.rng.Float64()*2 - 1) * g.cfg.SpreadDeg }
	return geo.Point{
		Lat: round(g.cfg.Center.Lat+jitter(), 5),
		Lng: round(g.cfg.Center.Lng+jitter(), 5),
	}
}

func (g *generator) users() ([]model.User, error) {
	out := make([]model.User, g.cfg.Users)
	for i := range out {
		id, err := g.id()
		if err != nil {
			return nil, err
		}
		name := firstNames[i%len(firstNames)]
		u := model.User{
			ID:          id,
			DisplayName: fmt.Sprintf("%s %d", name, i),
			Username:    fmt.Sprintf("%s%d", strings.ToLower(name), i),
			CreatedAt:   g.createdAt(),
		}
		if !g.percent(noFactorPercent) {
			u.AdjustmentFactor = model.Float(round(g.rng.Float64()*2-1, 2))
		}
		if !g.percent(noLocationPercent) {
			p := g.point()
			u.Location = &p
		}
		out[i] = u
	}
	return out, nil
}

func (g *generator) experiences(users []model.User) ([]model.Experience, error) {
	out := make([]model.Experience, 0, len(users)*g.cfg.ExperiencesPerUser)
	for _, u := range users {
		for range g.cfg.ExperiencesPerUser {
			id, err := g.id()
			if err != nil {
				return nil, err
			}
			place := places[g.rng.IntN(len(places))]
			band := ratingBands[g.rng.IntN(len(ratingBands))]
			p := g.point()
			out = append(out, model.Experience{
				ID:              id,
				UserID:          u.ID,
				Name:            place.name,
				Category:        place.category,
				Location:        "Waterloo",
				Rating:          round(band.min+g.rng.Float64()*band.span, 1),
				SocialIntensity: round(g.rng.Float64()*maxSocial, 1),
				Coordinates:     &p,
				CreatedAt:       g.createdAt(),
			})
		}
	}
	return out, nil
}

func (g *generator) friendships(users []model.User) ([]model.Friendship, error) {
	n := len(users)
	per := min(g.cfg.FriendsPerUser, n-1)
	seen := make(map[[2]int]struct{})
	var out []model.Friendship
	for i := range users {
		made := 0
		for attempt := 0; made < per && attempt < per*4; attempt++ {
			j := g.rng.IntN(n)
			if j == i {
				continue
			}
			pair := [2]int{min(i, j), max(i, j)}
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			id, err := g.id()
			if err != nil {
				return nil, err
			}
			out = append(out, model.Friendship{
				ID:        id,
				UserIDs:   []string{users[i].ID, users[j].ID},
				CreatedAt: g.createdAt(),
			})
			made++
		}
	}
	return out, nil
}

func (g *generator) groups(users []model.User) ([]model.Group, error) {
	size := min(g.cfg.GroupSize, len(users))
	out := make([]model.Group, g.cfg.Groups)
	for i := range out {
		id, err := g.id()
		if err != nil {
			return nil, err
		}
		members := make([]string, size)
		for k, idx := range g.rng.Perm(len(users))[:size] {
			members[k] = users[idx].ID
		}
		place := places[g.rng.IntN(len(places))]
		out[i] = model.Group{
			ID:          id,
			Name:        fmt.Sprintf("%s crew %d", place.name, i),
			Description: "Plans for " + place.name,
			Admin:       members[0],
			Members:     members,
			CreatedAt:   g.createdAt(),
		}
	}
	return out, nil
}

func round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
