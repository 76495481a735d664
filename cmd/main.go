package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pitch/internal/adapters/cache"
	"github.com/okian/pitch/internal/adapters/docstore"
	"github.com/okian/pitch/internal/adapters/http/api"
	"github.com/okian/pitch/internal/adapters/http/swagger"
	"github.com/okian/pitch/internal/adapters/kvstore"
	"github.com/okian/pitch/internal/adapters/notify"
	app "github.com/okian/pitch/internal/app"
	"github.com/okian/pitch/internal/config"
	"github.com/okian/pitch/internal/domain/geo"
	"github.com/okian/pitch/internal/domain/similarity"
	"github.com/okian/pitch/pkg/logger"
	"github.com/okian/pitch/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if cfg.LogFormat != "" {
		if err := logger.InitWith(logger.Options{Format: cfg.LogFormat}); err != nil {
			os.Stderr.WriteString("invalid log_format: " + err.Error() + "\n")
			return
		}
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	deps, err := build(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to build service", logger.Error(err))
		return
	}
	defer deps.Close()

	if err := deps.svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	if cfg.SubjectID != "" {
		if err := deps.svc.Preload(ctx); err != nil {
			log.Warn(ctx, "preload failed", logger.Error(err))
		}
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, deps.svc)

	mux := http.NewServeMux()
	api.NewServer(deps.svc).Register(ctx, mux)
	swagger.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := deps.svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// components holds what build opened so it can be released in order.
type components struct {
	svc     *app.Service
	closers []io.Closer
}

// Close releases storage handles in reverse order of opening.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
}

// build opens the configured storage and wires the service.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}

	kv, err := kvstore.Open(ctx, cfg.StorageBackend, cfg.StoragePath, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("open cache storage: %w", err)
	}
	c.closers = append(c.closers, kv)

	var docs docstore.Fetcher = docstore.NewMemory()
	if cfg.DocstorePath != "" {
		db, err := docstore.OpenSQLite(ctx, cfg.DocstorePath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open document store: %w", err)
		}
		c.closers = append(c.closers, db)
		docs = db
	}

	opts := []app.Option{
		app.WithWorkerCount(cfg.ChangeWorkerCount),
		app.WithQueueSize(cfg.ChangeQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithPageSize(app.FeedExperiences, cfg.FeedPageSize),
		app.WithPageSize(app.FeedFriends, cfg.FriendsPageSize),
		app.WithPageSize(app.FeedGroups, cfg.GroupsPageSize),
		app.WithPageSize(app.FeedUsers, cfg.UsersPageSize),
		app.WithPrefetch(cfg.Prefetch),
		app.WithScorer(similarity.NewScorer(similarity.WithThreshold(cfg.SimilarityThreshold))),
		app.WithNearbyRadius(cfg.NearbyRadiusKm),
		app.WithSimilarUsersLimit(cfg.SimilarUsersLimit),
		app.WithSubjectID(cfg.SubjectID),
		app.WithNotifier(notify.NewLogNotifier(nil)),
	}
	if home, ok := cfg.Home(); ok {
		opts = append(opts, app.WithLocator(geo.NewCachedLocator(geo.StaticLocator{Point: home},
			geo.WithTimeout(cfg.GeolocateTimeout()),
			geo.WithMaxAge(cfg.GeolocateMaxAge()),
		)))
	}

	store := cache.New(kv, cache.WithTTLs(cfg.CacheTTLs()))
	fetcher := docstore.NewRateLimited(docs, cfg.FetchRatePerSec, cfg.FetchBurst)
	c.svc = app.New(fetcher, store, opts...)
	return c, nil
}

// startSystemMetricsUpdater periodically refreshes runtime metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater periodically refreshes queue metrics from the service.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	if workers, ok := stats["workerCount"].(int); ok && stats["started"] == true {
		metrics.UpdateWorkerActiveCount(workers)
	}
}
