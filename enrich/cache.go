package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache remembers the images harvested from a detail page URL.
type Cache interface {
	Get(ctx context.Context, pageURL string) ([]string, bool)
	Set(ctx context.Context, pageURL string, images []string)
}

// LRUCache is an in-process cache with per-entry expiry.
type LRUCache struct {
	lru *expirable.LRU[string, []string]
}

// NewLRUCache builds a cache holding up to size pages for ttl. A zero ttl
// disables expiry.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 512
	}
	return &LRUCache{lru: expirable.NewLRU[string, []string](size, nil, ttl)}
}

// Get returns the cached images for pageURL until the entry expires.
func (c *LRUCache) Get(_ context.Context, pageURL string) ([]string, bool) {
	return c.lru.Get(pageURL)
}

// Set stores images for pageURL, evicting the oldest entry when full.
func (c *LRUCache) Set(_ context.Context, pageURL string, images []string) {
	c.lru.Add(pageURL, images)
}

// RedisClient is the subset of the go-redis client used by RedisCache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

const redisKeyPrefix = "ringcrawler:detail:"

// RedisCache shares detail-page harvests across runs. Redis failures are
// logged and behave as misses.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisCache wraps client with the given entry ttl.
func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get reads the images for pageURL. Redis errors and undecodable values
// are misses.
func (c *RedisCache) Get(ctx context.Context, pageURL string) ([]string, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+pageURL).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("detail cache get failed", slog.String("url", pageURL), slog.Any("error", err))
		}
		return nil, false
	}
	var images []string
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return nil, false
	}
	return images, true
}

// Set writes images for pageURL with the cache TTL. Failures are logged.
func (c *RedisCache) Set(ctx context.Context, pageURL string, images []string) {
	payload, err := json.Marshal(images)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+pageURL, payload, c.ttl).Err(); err != nil {
		slog.Warn("detail cache set failed", slog.String("url", pageURL), slog.Any("error", err))
	}
}

// Tiered checks each cache in order and fills earlier tiers on a later hit.
type Tiered []Cache

// Get returns the first hit and copies it into the tiers before it.
func (t Tiered) Get(ctx context.Context, pageURL string) ([]string, bool) {
	for i, c := range t {
		if images, ok := c.Get(ctx, pageURL); ok {
			for _, earlier := range t[:i] {
				earlier.Set(ctx, pageURL, images)
			}
			return images, true
		}
	}
	return nil, false
}

// Set writes images to every tier.
func (t Tiered) Set(ctx context.Context, pageURL string, images []string) {
	for _, c := range t {
		c.Set(ctx, pageURL, images)
	}
}
