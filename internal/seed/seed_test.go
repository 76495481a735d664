package seed

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/pitch/internal/adapters/docstore"
	"github.com/okian/pitch/internal/domain/geo"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Users = 12
	cfg.ExperiencesPerUser = 3
	cfg.FriendsPerUser = 2
	cfg.Groups = 4
	cfg.GroupSize = 3
	cfg.Workers = 4
	cfg.Seed = 42
	cfg.Now = fixedNow
	return cfg
}

type failingWriter struct{}

func (failingWriter) Put(context.Context, string, docstore.Document) error {
	return errors.New("disk full")
}

func (failingWriter) Delete(context.Context, string, string) error { return nil }

func countDocs(store docstore.Fetcher, collection string) int {
	p, err := store.FetchPage(context.Background(), docstore.Query{Collection: collection, PageSize: 10000}, nil)
	if err != nil {
		return -1
	}
	return p.Count
}

func TestGenerate(t *testing.T) {
	Convey("Given a small dataset shape", t, func() {
		ctx := context.Background()
		cfg := smallConfig()

		Convey("When generated twice with the same seed", func() {
			a, err := Generate(ctx, cfg)
			So(err, ShouldBeNil)
			b, err := Generate(ctx, cfg)
			So(err, ShouldBeNil)

			Convey("Then both datasets are identical", func() {
				So(a, ShouldResemble, b)
			})
		})

		Convey("When generated with different seeds", func() {
			a, _ := Generate(ctx, cfg)
			cfg.Seed = 43
			b, _ := Generate(ctx, cfg)

			Convey("Then the ids differ", func() {
				So(a.Users[0].ID, ShouldNotEqual, b.Users[0].ID)
			})
		})

		Convey("When generated", func() {
			ds, err := Generate(ctx, cfg)
			So(err, ShouldBeNil)

			Convey("Then it has the requested counts", func() {
				So(len(ds.Users), ShouldEqual, 12)
				So(len(ds.Experiences), ShouldEqual, 36)
				So(len(ds.Groups), ShouldEqual, 4)
				So(len(ds.Friendships), ShouldBeGreaterThan, 0)
				So(len(ds.Friendships), ShouldBeLessThanOrEqualTo, 24)
			})

			Convey("Then users carry valid factors and locations", func() {
				ids := map[string]bool{}
				for _, u := range ds.Users {
					ids[u.ID] = true
					if u.AdjustmentFactor != nil {
						So(*u.AdjustmentFactor, ShouldBeBetweenOrEqual, -1, 1)
					}
					if u.Location != nil {
						So(u.Location.Validate(), ShouldBeNil)
						So(geo.Distance(*u.Location, DefaultCenter), ShouldBeLessThan, 100)
					}
				}
				So(len(ids), ShouldEqual, len(ds.Users))
			})

			Convey("Then experiences belong to users and stay in range", func() {
				ids := map[string]bool{}
				for _, u := range ds.Users {
					ids[u.ID] = true
				}
				for _, e := range ds.Experiences {
					So(ids[e.UserID], ShouldBeTrue)
					So(e.Rating, ShouldBeBetweenOrEqual, 1, 10)
					So(e.SocialIntensity, ShouldBeBetweenOrEqual, 0, maxSocial)
					So(e.Coordinates, ShouldNotBeNil)
					So(e.CreatedAt.After(fixedNow), ShouldBeFalse)
					So(e.CreatedAt.Before(fixedNow.Add(-maxAge)), ShouldBeFalse)
				}
			})

			Convey("Then friendships are distinct pairs of different users", func() {
				pairs := map[string]bool{}
				for _, f := range ds.Friendships {
					So(len(f.UserIDs), ShouldEqual, 2)
					So(f.UserIDs[0], ShouldNotEqual, f.UserIDs[1])
					lo, hi := min(f.UserIDs[0], f.UserIDs[1]), max(f.UserIDs[0], f.UserIDs[1])
					key := lo + "|" + hi
					So(pairs[key], ShouldBeFalse)
					pairs[key] = true
				}
			})

			Convey("Then groups have distinct members led by the admin", func() {
				for _, g := range ds.Groups {
					So(len(g.Members), ShouldEqual, 3)
					So(g.Admin, ShouldEqual, g.Members[0])
					seen := map[string]bool{}
					for _, m := range g.Members {
						So(seen[m], ShouldBeFalse)
						seen[m] = true
					}
				}
			})
		})

		Convey("When the group size exceeds the user count", func() {
			cfg.Users = 2
			cfg.GroupSize = 5
			cfg.FriendsPerUser = 5
			ds, err := Generate(ctx, cfg)
			So(err, ShouldBeNil)

			Convey("Then groups and friendships are capped", func() {
				So(len(ds.Groups[0].Members), ShouldEqual, 2)
				So(len(ds.Friendships), ShouldBeLessThanOrEqualTo, 1)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := Generate(cctx, cfg)

			Convey("Then generation stops", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given invalid dataset shapes", t, func() {
		mutations := map[string]func(*Config){
			"no users":          func(c *Config) { c.Users = 0 },
			"negative count":    func(c *Config) { c.ExperiencesPerUser = -1 },
			"empty groups":      func(c *Config) { c.GroupSize = 0 },
			"no workers":        func(c *Config) { c.Workers = 0 },
			"negative spread":   func(c *Config) { c.SpreadDeg = -1 },
			"impossible center": func(c *Config) { c.Center = geo.Point{Lat: 91} },
		}
		for name, mutate := range mutations {
			cfg := DefaultConfig()
			mutate(&cfg)
			Convey("Then "+name+" is rejected", func() {
				So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
			})
		}

		Convey("Then the defaults are accepted", func() {
			So(DefaultConfig().Validate(), ShouldBeNil)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given an in-memory document store", t, func() {
		ctx := context.Background()
		store := docstore.NewMemory()

		Convey("When the seed runs", func() {
			ds, stats, err := Run(ctx, store, smallConfig())
			So(err, ShouldBeNil)

			Convey("Then every generated document is stored", func() {
				So(countDocs(store, model.CollectionUsers), ShouldEqual, len(ds.Users))
				So(countDocs(store, model.CollectionExperiences), ShouldEqual, len(ds.Experiences))
				So(countDocs(store, model.CollectionFriendships), ShouldEqual, len(ds.Friendships))
				So(countDocs(store, model.CollectionGroups), ShouldEqual, len(ds.Groups))
				So(stats.Documents(), ShouldEqual, len(ds.Users)+len(ds.Experiences)+len(ds.Friendships)+len(ds.Groups))
			})

			Convey("Then stored documents decode back to the generated records", func() {
				doc, ok, err := store.FetchByID(ctx, model.CollectionUsers, ds.Users[0].ID)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				var u model.User
				So(doc.Decode(&u), ShouldBeNil)
				So(u.DisplayName, ShouldEqual, ds.Users[0].DisplayName)
				So(doc.CreatedAt.Equal(ds.Users[0].CreatedAt), ShouldBeTrue)
			})
		})

		Convey("When the store rejects writes", func() {
			_, _, err := Run(ctx, failingWriter{}, smallConfig())

			Convey("Then the run fails with ErrWrite", func() {
				So(errors.Is(err, ErrWrite), ShouldBeTrue)
			})
		})

		Convey("When the config is invalid", func() {
			cfg := smallConfig()
			cfg.Users = 0
			_, _, err := Run(ctx, store, cfg)

			Convey("Then nothing is written", func() {
				So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
				So(countDocs(store, model.CollectionUsers), ShouldEqual, 0)
			})
		})
	})
}

func TestSaveDataset(t *testing.T) {
	Convey("Given a generated dataset", t, func() {
		ctx := context.Background()
		ds, err := Generate(ctx, smallConfig())
		So(err, ShouldBeNil)

		Convey("When saved under a nested directory", func() {
			path := filepath.Join(t.TempDir(), "out", "seed.json")
			got, err := SaveDataset(ctx, path, ds)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, path)

			Convey("Then the file holds the dataset", func() {
				raw, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				var back Dataset
				So(json.Unmarshal(raw, &back), ShouldBeNil)
				So(len(back.Users), ShouldEqual, len(ds.Users))
				So(back.Groups[0].Members, ShouldResemble, ds.Groups[0].Members)
			})
		})
	})
}

func TestShowHelp(t *testing.T) {
	Convey("Given the help text", t, func() {
		var b strings.Builder
		ShowHelp(&b)

		Convey("Then it documents every flag", func() {
			for _, flag := range []string{"-db", "-users", "-experiences", "-friends", "-groups", "-group-size", "-workers", "-seed", "-output", "-log-format"} {
				So(b.String(), ShouldContainSubstring, flag)
			}
		})
	})
}
