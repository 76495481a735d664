package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/pitch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StorageBackend, convey.ShouldEqual, "memory")
				convey.So(cfg.ChangeQueueSize, convey.ShouldEqual, 1024)
				convey.So(cfg.ChangeWorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PITCH_ADDR", ":8080")
			_ = os.Setenv("PITCH_STORAGE_BACKEND", "sqlite")
			_ = os.Setenv("PITCH_FEED_PAGE_SIZE", "25")
			_ = os.Setenv("PITCH_SIMILARITY_THRESHOLD", "0.35")
			_ = os.Setenv("PITCH_SUBJECT_ID", "u42")
			_ = os.Setenv("PITCH_PREFETCH", "true")
			_ = os.Setenv("PITCH_HOME_LAT", "43.4643")
			_ = os.Setenv("PITCH_HOME_LNG", "-80.5204")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StorageBackend, convey.ShouldEqual, config.BackendSQLite)
				convey.So(cfg.FeedPageSize, convey.ShouldEqual, 25)
				convey.So(cfg.SimilarityThreshold, convey.ShouldEqual, 0.35)
				convey.So(cfg.SubjectID, convey.ShouldEqual, "u42")
				convey.So(cfg.Prefetch, convey.ShouldBeTrue)

				home, ok := cfg.Home()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(home.Lat, convey.ShouldEqual, 43.4643)
				convey.So(home.Lng, convey.ShouldEqual, -80.5204)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
storage_backend: redis
redis_addr: "cache:6379"
users_page_size: 20
cache_ttl_ms:
  FRIENDS: 60000
  GROUPS: 1000
`)
			_ = os.Setenv("PITCH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StorageBackend, convey.ShouldEqual, config.BackendRedis)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "cache:6379")
				convey.So(cfg.UsersPageSize, convey.ShouldEqual, 20)
				convey.So(cfg.FeedPageSize, convey.ShouldEqual, 10)
				convey.So(cfg.CacheTTLs()["FRIENDS"], convey.ShouldEqual, time.Minute)
				convey.So(cfg.CacheTTLs()["GROUPS"], convey.ShouldEqual, time.Second)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
change_worker_count: 4
dedupe_size: 100
`)
			_ = os.Setenv("PITCH_CONFIG", tmpFile)
			_ = os.Setenv("PITCH_CHANGE_WORKER_COUNT", "8")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ChangeWorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When loading config with an invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("PITCH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-existent file", func() {
			_ = os.Setenv("PITCH_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("PITCH_FEED_PAGE_SIZE", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When validation fails", func() {
			cases := map[string]string{
				"PITCH_ADDR":                 "",
				"PITCH_STORAGE_BACKEND":      "floppy",
				"PITCH_GROUPS_PAGE_SIZE":     "0",
				"PITCH_SIMILARITY_THRESHOLD": "1.5",
				"PITCH_FETCH_RATE_PER_SEC":   "-1",
				"PITCH_HOME_LAT":             "43",
			}
			for key, val := range cases {
				clearConfigEnvVars()
				_ = os.Setenv(key, val)

				cfg, err := config.Load(ctx)

				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			}
			clearConfigEnvVars()
		})

		convey.Convey("When the home position is out of range", func() {
			_ = os.Setenv("PITCH_HOME_LAT", "95")
			_ = os.Setenv("PITCH_HOME_LNG", "10")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pitch-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PITCH_") {
			_ = os.Unsetenv(name)
		}
	}
}
