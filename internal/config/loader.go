package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PITCH_CONFIG is set
//  3. env (prefix PITCH_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("PITCH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// PITCH_FEED_PAGE_SIZE -> feed_page_size; underscores are kept to match the koanf tags.
	envProvider := env.Provider("PITCH_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "pitch_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.FeedPageSize < 1 || c.FriendsPageSize < 1 || c.GroupsPageSize < 1 || c.UsersPageSize < 1:
		return fmt.Errorf("%w: page sizes must be positive", ErrInvalidConfig)
	case c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1:
		return fmt.Errorf("%w: similarity_threshold %v outside [0, 1]", ErrInvalidConfig, c.SimilarityThreshold)
	case c.FetchRatePerSec < 0:
		return fmt.Errorf("%w: fetch_rate_per_sec must not be negative", ErrInvalidConfig)
	}

	switch c.StorageBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}

	for name, ms := range c.CacheTTLMS {
		if ms < 0 {
			return fmt.Errorf("%w: cache_ttl_ms.%s must not be negative", ErrInvalidConfig, name)
		}
	}

	if (c.HomeLat == nil) != (c.HomeLng == nil) {
		return fmt.Errorf("%w: home_lat and home_lng must be set together", ErrInvalidConfig)
	}
	if p, ok := c.Home(); ok {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: home: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
