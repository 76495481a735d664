package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/pitch/internal/adapters/cache"
	"github.com/okian/pitch/internal/adapters/docstore"
	"github.com/okian/pitch/internal/adapters/http/api"
	"github.com/okian/pitch/internal/adapters/http/swagger"
	"github.com/okian/pitch/internal/adapters/kvstore"
	app "github.com/okian/pitch/internal/app"
	"github.com/okian/pitch/internal/config"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestBuild(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)

		convey.Convey("When the components are built", func() {
			deps, err := build(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer deps.Close()

			convey.Convey("Then the service starts and stops", func() {
				convey.So(deps.svc.Start(ctx), convey.ShouldBeNil)
				convey.So(deps.svc.GetStats(ctx)["started"], convey.ShouldEqual, true)
				convey.So(deps.svc.Stop(ctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given SQLite storage with seeded documents", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		cfg := config.New(ctx)
		cfg.StorageBackend = config.BackendSQLite
		cfg.StoragePath = filepath.Join(dir, "cache.db")
		cfg.DocstorePath = filepath.Join(dir, "docs.db")
		cfg.SubjectID = "u1"
		lat, lng := 43.4643, -80.5204
		cfg.HomeLat, cfg.HomeLng = &lat, &lng

		db, err := docstore.OpenSQLite(ctx, cfg.DocstorePath)
		convey.So(err, convey.ShouldBeNil)
		for i, id := range []string{"u1", "u2"} {
			doc, err := docstore.NewDocument(id, time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC),
				model.User{ID: id, DisplayName: id, AdjustmentFactor: model.Float(0.1 * float64(i+1))})
			convey.So(err, convey.ShouldBeNil)
			convey.So(db.Put(ctx, model.CollectionUsers, doc), convey.ShouldBeNil)
		}
		convey.So(db.Close(), convey.ShouldBeNil)

		convey.Convey("When the API is served over the built service", func() {
			deps, err := build(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer deps.Close()

			mux := http.NewServeMux()
			api.NewServer(deps.svc).Register(ctx, mux)
			swagger.Register(ctx, mux)

			req := httptest.NewRequest(http.MethodGet, "/lists/users", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			convey.Convey("Then the users list comes from the document store", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var view struct {
					Loaded int `json:"loaded"`
				}
				convey.So(json.NewDecoder(w.Body).Decode(&view), convey.ShouldBeNil)
				convey.So(view.Loaded, convey.ShouldEqual, 2)
			})

			convey.Convey("And the API document is served next to it", func() {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})

	convey.Convey("Given an unreachable redis backend", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.StorageBackend = config.BackendRedis
		cfg.RedisAddr = "127.0.0.1:1"

		convey.Convey("Then build fails", func() {
			deps, err := build(ctx, cfg)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(deps, convey.ShouldBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		ctx := context.Background()
		deps, err := build(ctx, config.New(ctx))
		convey.So(err, convey.ShouldBeNil)
		defer deps.Close()

		convey.Convey("Then single updates do not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(ctx, deps.svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loops return when the context ends", func() {
			tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(tctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(tctx, deps.svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestServiceOptionsFromConfig(t *testing.T) {
	convey.Convey("Given a service built from extreme options", t, func() {
		svc := app.New(docstore.NewMemory(), cache.New(kvstore.NewMemory()),
			app.WithWorkerCount(0),
			app.WithQueueSize(0),
			app.WithDedupeSize(0),
		)

		convey.Convey("Then defaults are kept", func() {
			stats := svc.GetStats(context.Background())
			convey.So(stats["workerCount"], convey.ShouldEqual, 2)
			convey.So(stats["queueSize"], convey.ShouldEqual, 1024)
			convey.So(stats["dedupeSize"], convey.ShouldEqual, 4096)
		})
	})
}
