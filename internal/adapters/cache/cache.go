// Package cache is a TTL read cache over a string key/value store with
// named invalidation groups.
//
// Entries are stored as {"timestamp": <ms>, "data": <payload>} under
// "cache_<CATEGORY>" or "cache_<CATEGORY>:<name>". Storage and
// serialization failures are logged and counted, and read as misses.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/pitch/internal/adapters/kvstore"
	"github.com/okian/pitch/pkg/logger"
	"github.com/okian/pitch/pkg/metrics"
)

const keyPrefix = "cache_"

// Key identifies one cached artifact. An empty Name addresses the
// category's base entry.
type Key struct {
	Category Category
	Name     string
}

// K is shorthand for Key{Category: c, Name: name}.
func K(c Category, name string) Key { return Key{Category: c, Name: name} }

func (k Key) String() string {
	if k.Name == "" {
		return keyPrefix + string(k.Category)
	}
	return keyPrefix + string(k.Category) + ":" + k.Name
}

type entry struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Cache is safe for concurrent use.
type Cache struct {
	storage kvstore.Storage
	lister  kvstore.Lister // nil when the backend cannot enumerate
	ttls    map[Category]time.Duration
	now     func() time.Time
	logger  logger.Logger
	flight  singleflight.Group

	mu    sync.Mutex
	named map[Category]map[string]struct{}
}

// New creates a Cache over storage.
func New(storage kvstore.Storage, opts ...Option) *Cache {
	c := &Cache{
		storage: storage,
		ttls:    DefaultTTLs(),
		now:     time.Now,
		logger:  logger.Get().Named("cache"),
		named:   make(map[Category]map[string]struct{}),
	}
	if l, ok := storage.(kvstore.Lister); ok {
		c.lister = l
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured duration for category.
func (c *Cache) TTL(category Category) time.Duration {
	if ttl, ok := c.ttls[category]; ok {
		return ttl
	}
	return fallbackTTL
}

// Get decodes the payload for key into dst and returns true iff an entry
// exists and is younger than ttl.
func (c *Cache) Get(ctx context.Context, key Key, ttl time.Duration, dst any) bool {
	cat := string(key.Category)

	raw, ok, err := c.storage.Read(ctx, key.String())
	if err != nil {
		c.fault(ctx, key, "read", err)
		metrics.RecordCacheMiss(cat)
		return false
	}
	if !ok {
		metrics.RecordCacheMiss(cat)
		return false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.fault(ctx, key, "decode", err)
		metrics.RecordCacheMiss(cat)
		return false
	}

	age := time.Duration(c.now().UnixMilli()-e.Timestamp) * time.Millisecond
	if age >= ttl {
		metrics.RecordCacheMiss(cat)
		return false
	}

	if dst != nil {
		if err := json.Unmarshal(e.Data, dst); err != nil {
			c.fault(ctx, key, "decode", err)
			metrics.RecordCacheMiss(cat)
			return false
		}
	}
	metrics.RecordCacheHit(cat)
	return true
}

// Lookup is Get with the category's configured TTL.
func (c *Cache) Lookup(ctx context.Context, key Key, dst any) bool {
	return c.Get(ctx, key, c.TTL(key.Category), dst)
}

// Set stores payload under key stamped with the current time.
func (c *Cache) Set(ctx context.Context, key Key, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.fault(ctx, key, "encode", err)
		return
	}
	raw, err := json.Marshal(entry{Timestamp: c.now().UnixMilli(), Data: data})
	if err != nil {
		c.fault(ctx, key, "encode", err)
		return
	}
	if err := c.storage.Write(ctx, key.String(), string(raw)); err != nil {
		c.fault(ctx, key, "write", err)
		return
	}

	if key.Name != "" {
		c.mu.Lock()
		names, ok := c.named[key.Category]
		if !ok {
			names = make(map[string]struct{})
			c.named[key.Category] = names
		}
		names[key.Name] = struct{}{}
		c.mu.Unlock()
	}
	metrics.RecordCacheWrite(string(key.Category))
}

// Clear removes one entry. Missing entries are ignored.
func (c *Cache) Clear(ctx context.Context, key Key) {
	c.remove(ctx, key.String(), key)
	if key.Name != "" {
		c.mu.Lock()
		delete(c.named[key.Category], key.Name)
		c.mu.Unlock()
	}
}

// ClearCategory removes the base entry and every named entry of category.
// It returns the number of keys removed.
func (c *Cache) ClearCategory(ctx context.Context, category Category) int {
	return c.clearCategories(ctx, []Category{category})
}

// ClearGroup clears every category of group in one pass. Concurrent calls
// for the same group share the in-flight pass instead of starting another,
// so a key written after that pass listed its keys survives until the next
// call. Calls for other groups run independently.
func (c *Cache) ClearGroup(ctx context.Context, group Group) error {
	cats, ok := GroupCategories(group)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}

	ran := false
	_, _, _ = c.flight.Do(string(group), func() (any, error) {
		ran = true
		n := c.clearCategories(ctx, cats)
		metrics.RecordCacheInvalidation(string(group))
		c.logger.Debug(ctx, "invalidation group cleared",
			logger.String("group", string(group)),
			logger.Int("keys", n),
		)
		return n, nil
	})
	if !ran {
		metrics.RecordCacheInvalidationJoined()
	}
	return nil
}

// ClearAll clears every known category and any category with a registered name.
func (c *Cache) ClearAll(ctx context.Context) {
	seen := make(map[Category]struct{})
	cats := Categories()
	for _, cat := range cats {
		seen[cat] = struct{}{}
	}
	c.mu.Lock()
	for cat := range c.named {
		if _, ok := seen[cat]; !ok {
			cats = append(cats, cat)
		}
	}
	c.mu.Unlock()

	_, _, _ = c.flight.Do("*", func() (any, error) {
		return c.clearCategories(ctx, cats), nil
	})
}

func (c *Cache) clearCategories(ctx context.Context, cats []Category) int {
	keys := make(map[string]Key)
	for _, cat := range cats {
		base := Key{Category: cat}
		keys[base.String()] = base

		c.mu.Lock()
		for name := range c.named[cat] {
			k := Key{Category: cat, Name: name}
			keys[k.String()] = k
		}
		delete(c.named, cat)
		c.mu.Unlock()

		if c.lister != nil {
			prefix := base.String() + ":"
			listed, err := c.lister.Keys(ctx, prefix)
			if err != nil {
				c.fault(ctx, base, "list", err)
				continue
			}
			for _, sk := range listed {
				keys[sk] = Key{Category: cat, Name: strings.TrimPrefix(sk, prefix)}
			}
		}
	}

	removed := 0
	for sk, k := range keys {
		if c.remove(ctx, sk, k) {
			removed++
		}
	}
	metrics.RecordCacheKeysCleared(removed)
	return removed
}

func (c *Cache) remove(ctx context.Context, storageKey string, key Key) bool {
	if err := c.storage.Remove(ctx, storageKey); err != nil {
		c.fault(ctx, key, "remove", err)
		return false
	}
	return true
}

func (c *Cache) fault(ctx context.Context, key Key, op string, err error) {
	metrics.RecordCacheFault(string(key.Category), op)
	c.logger.Warn(ctx, "cache operation failed",
		logger.String("key", key.String()),
		logger.String("op", op),
		logger.Error(err),
	)
}
