// Package respcache stores encoded query responses. Datasets never change
// after they are indexed, so entries only expire by TTL.
package respcache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/kproj6/featureserver/internal/cache"
)

// Cache is safe to use as a nil pointer, which caches nothing.
type Cache struct {
	store cache.Interface
	ttl   time.Duration
	log   *slog.Logger
}

func New(store cache.Interface, ttl time.Duration, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{store: store, ttl: ttl, log: log}
}

// Load decodes the entry at key into v. Any failure counts as a miss.
func (c *Cache) Load(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("response cache read failed", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.log.Warn("response cache entry undecodable", "key", key, "err", err)
		return false
	}
	return true
}

// Save encodes v at key. Failures are logged and dropped.
func (c *Cache) Save(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("response cache encode failed", "key", key, "err", err)
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("response cache write failed", "key", key, "err", err)
	}
}
