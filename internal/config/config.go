// Package config defines process configuration and how it is loaded.
package config

import (
	"context"
	"time"

	"github.com/okian/pitch/internal/domain/geo"
)

// Storage backends for the cache.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StorageBackend selects where cache entries live: memory, sqlite or redis.
	StorageBackend string `koanf:"storage_backend"`
	StoragePath    string `koanf:"storage_path"`
	RedisAddr      string `koanf:"redis_addr"`

	// DocstorePath is the SQLite file holding the document collections.
	// Empty keeps documents in memory.
	DocstorePath string `koanf:"docstore_path"`

	// SubjectID is the user feeds are assembled for.
	SubjectID string `koanf:"subject_id"`

	FeedPageSize    int  `koanf:"feed_page_size"`
	FriendsPageSize int  `koanf:"friends_page_size"`
	GroupsPageSize  int  `koanf:"groups_page_size"`
	UsersPageSize   int  `koanf:"users_page_size"`
	Prefetch        bool `koanf:"prefetch"`

	// CacheTTLMS overrides category TTLs in milliseconds, keyed by category name.
	CacheTTLMS map[string]int `koanf:"cache_ttl_ms"`

	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	SimilarUsersLimit   int     `koanf:"similar_users_limit"`
	NearbyRadiusKm      float64 `koanf:"nearby_radius_km"`

	GeolocateTimeoutMS int      `koanf:"geolocate_timeout_ms"`
	GeolocateMaxAgeMS  int      `koanf:"geolocate_max_age_ms"`
	HomeLat            *float64 `koanf:"home_lat"`
	HomeLng            *float64 `koanf:"home_lng"`

	// FetchRatePerSec bounds document store reads; 0 disables the limit.
	FetchRatePerSec float64 `koanf:"fetch_rate_per_sec"`
	FetchBurst      int     `koanf:"fetch_burst"`

	ChangeQueueSize   int `koanf:"change_queue_size"`
	ChangeWorkerCount int `koanf:"change_worker_count"`
	DedupeSize        int `koanf:"dedupe_size"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StorageBackend:      BackendMemory,
		StoragePath:         "pitch-cache.db",
		RedisAddr:           "localhost:6379",
		FeedPageSize:        10,
		FriendsPageSize:     10,
		GroupsPageSize:      10,
		UsersPageSize:       10,
		SimilarityThreshold: 0.1,
		SimilarUsersLimit:   6,
		NearbyRadiusKm:      50,
		GeolocateTimeoutMS:  10_000,
		GeolocateMaxAgeMS:   300_000,
		FetchRatePerSec:     20,
		FetchBurst:          5,
		ChangeQueueSize:     1024,
		ChangeWorkerCount:   2,
		DedupeSize:          4096,
	}
}

// CacheTTLs returns the TTL overrides as durations.
func (c *Config) CacheTTLs() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.CacheTTLMS))
	for name, ms := range c.CacheTTLMS {
		out[name] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// Home returns the configured fallback position, if both coordinates are set.
func (c *Config) Home() (geo.Point, bool) {
	if c.HomeLat == nil || c.HomeLng == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *c.HomeLat, Lng: *c.HomeLng}, true
}

// GeolocateTimeout returns the geolocation timeout.
func (c *Config) GeolocateTimeout() time.Duration {
	return time.Duration(c.GeolocateTimeoutMS) * time.Millisecond
}

// GeolocateMaxAge returns how old a cached position may be.
func (c *Config) GeolocateMaxAge() time.Duration {
	return time.Duration(c.GeolocateMaxAgeMS) * time.Millisecond
}
