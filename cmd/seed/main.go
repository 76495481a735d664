package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/pitch/internal/adapters/docstore"
	"github.com/okian/pitch/internal/seed"
	"github.com/okian/pitch/pkg/logger"
)

const (
	defaultDBPath  = "pitch-docs.db"
	defaultSeed    = 1
	defaultTimeout = 10 * time.Minute
)

func main() {
	def := seed.DefaultConfig()
	var (
		dbPath      = flag.String("db", defaultDBPath, "SQLite document store path")
		users       = flag.Int("users", def.Users, "Number of users")
		experiences = flag.Int("experiences", def.ExperiencesPerUser, "Experiences per user")
		friends     = flag.Int("friends", def.FriendsPerUser, "Friendships initiated per user")
		groups      = flag.Int("groups", def.Groups, "Number of groups")
		groupSize   = flag.Int("group-size", def.GroupSize, "Members per group")
		workers     = flag.Int("workers", def.Workers, "Concurrent writers")
		seedValue   = flag.Uint64("seed", defaultSeed, "Generator seed")
		output      = flag.String("output", "", "Also save the dataset as JSON to this file")
		logFormat   = flag.String("log-format", "text", "text or json")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp(os.Stdout)
		return
	}

	if err := logger.InitWith(logger.Options{Format: *logFormat}); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cfg := def
	cfg.Users = *users
	cfg.ExperiencesPerUser = *experiences
	cfg.FriendsPerUser = *friends
	cfg.Groups = *groups
	cfg.GroupSize = *groupSize
	cfg.Workers = *workers
	cfg.Seed = *seedValue

	if err := run(ctx, *dbPath, *output, cfg); err != nil {
		logger.Get().Error(ctx, "seed failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, dbPath, output string, cfg seed.Config) error {
	store, err := docstore.OpenSQLite(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close document store", logger.Error(err))
		}
	}()

	ds, _, err := seed.Run(ctx, store, cfg)
	if err != nil {
		return err
	}
	if output != "" {
		if _, err := seed.SaveDataset(ctx, output, ds); err != nil {
			logger.Get().Warn(ctx, "failed to save dataset", logger.Error(err))
		}
	}
	logger.Get().Info(ctx, "seed completed", logger.String("db", dbPath))
	return nil
}
