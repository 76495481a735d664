package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/pitch/internal/adapters/docstore"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run generates a dataset and writes every document to store.
func Run(ctx context.Context, store docstore.Writer, cfg Config) (Dataset, Stats, error) {
	stats := Stats{StartTime: time.Now()}
	log := logger.Get().Named("seed")
	log.Info(ctx, "starting seed",
		logger.Int("users", cfg.Users),
		logger.Int("experiencesPerUser", cfg.ExperiencesPerUser),
		logger.Int("friendsPerUser", cfg.FriendsPerUser),
		logger.Int("groups", cfg.Groups),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	ds, err := Generate(ctx, cfg)
	if err != nil {
		return Dataset{}, stats, fmt.Errorf("generate dataset: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	putAll(gctx, g, store, model.CollectionUsers, ds.Users, func(u model.User) (string, time.Time) { return u.ID, u.CreatedAt })
	putAll(gctx, g, store, model.CollectionExperiences, ds.Experiences, func(e model.Experience) (string, time.Time) { return e.ID, e.CreatedAt })
	putAll(gctx, g, store, model.CollectionFriendships, ds.Friendships, func(f model.Friendship) (string, time.Time) { return f.ID, f.CreatedAt })
	putAll(gctx, g, store, model.CollectionGroups, ds.Groups, func(gr model.Group) (string, time.Time) { return gr.ID, gr.CreatedAt })
	if err := g.Wait(); err != nil {
		return Dataset{}, stats, err
	}

	stats.Users = len(ds.Users)
	stats.Experiences = len(ds.Experiences)
	stats.Friendships = len(ds.Friendships)
	stats.Groups = len(ds.Groups)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return ds, stats, nil
}

// putAll schedules one Put per item. Scheduling stops once the group fails.
func putAll[T any](ctx context.Context, g *errgroup.Group, store docstore.Writer, collection string, items []T, key func(T) (string, time.Time)) {
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		g.Go(func() error {
			id, created := key(item)
			doc, err := docstore.NewDocument(id, created, item)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrWrite, err)
			}
			if err := store.Put(ctx, collection, doc); err != nil {
				return fmt.Errorf("%w: %s/%s: %w", ErrWrite, collection, id, err)
			}
			return nil
		})
	}
}

// SaveDataset writes ds as indented JSON. An empty path picks a timestamped name.
func SaveDataset(ctx context.Context, path string, ds Dataset) (string, error) {
	if path == "" {
		path = "seed_" + time.Now().Format("20060102_150405") + ".json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal dataset: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return "", fmt.Errorf("failed to write dataset: %w", err)
	}
	logger.Get().Named("seed").Info(ctx, "dataset saved to file", logger.String("filename", path))
	return path, nil
}

func displayFinalStats(ctx context.Context, stats Stats) {
	var docsPerSecond float64
	if stats.Duration > 0 {
		docsPerSecond = float64(stats.Documents()) / stats.Duration.Seconds()
	}
	logger.Get().Named("seed").Info(ctx, "final statistics",
		logger.Int("users", stats.Users),
		logger.Int("experiences", stats.Experiences),
		logger.Int("friendships", stats.Friendships),
		logger.Int("groups", stats.Groups),
		logger.Duration("duration", stats.Duration),
		logger.Float64("documentsPerSecond", docsPerSecond))
}
