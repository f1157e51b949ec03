// Package ragcache provides an optional Redis-backed cache for retrieval
// results, so repeated identical queries (a user re-asking the same
// question, or a hot conversation replaying its memory lookups) don't pay
// for embedding plus a vector store round trip every time.
package ragcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache wraps a Redis client. A nil *Cache (or one built around a nil
// client) is always a clean miss, so callers can treat caching as purely
// optional without a feature flag at every call site.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Cache. ttl defaults to 5 minutes when <= 0.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Key derives a stable cache key from a namespace (e.g. "docs", "memory")
// plus the parameters that make a retrieval call distinct.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("ragcache:%s:%s", namespace, hex.EncodeToString(h.Sum(nil)))
}

// Get unmarshals a cached value into dest. Returns false on a miss, a
// transport error, or a nil cache.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("ragcache: get failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("ragcache: unmarshal failed")
		return false
	}
	return true
}

// Set stores value under key with the cache's configured TTL. Failures are
// logged and swallowed; a cache miss on the next call is the only visible
// consequence.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("ragcache: marshal failed")
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("ragcache: set failed")
	}
}

// Close closes the underlying Redis client, if any.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
