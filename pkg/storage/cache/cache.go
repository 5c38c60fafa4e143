// Package cache keeps a presence cache of file versions in front of the
// repository. A version never leaves the Present state, so entries are
// never invalidated; TTLs only bound memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/storage"
)

// ErrCacheMiss is returned by Get when neither tier holds the version
var ErrCacheMiss = errors.New("cache miss")

// VersionCache is a two tier (LRU, then Redis) cache of stored versions
type VersionCache struct {
	l1    *lru.LRU[collab.VersionRef, collab.FileVersion]
	redis *redis.Client
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats returns cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	ItemCount int64   `json:"item_count"`
	HitRate   float64 `json:"hit_rate"`
}

// New creates a cache. redisClient may be nil for an L1-only cache.
func New(size int, ttl time.Duration, redisClient *redis.Client) *VersionCache {
	if size < 10 {
		size = 10
	}
	return &VersionCache{
		l1:    lru.NewLRU[collab.VersionRef, collab.FileVersion](size, nil, ttl),
		redis: redisClient,
		ttl:   ttl,
	}
}

// NewRedisClient creates and pings a Redis client from storage config
func NewRedisClient(config storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func redisKey(file collab.FileID, hash collab.ContentHash) string {
	return "collab:version:" + collab.VersionKey(file, hash)
}

// Layer names the cache level that served a hit
type Layer string

const (
	LayerL1    Layer = "l1"
	LayerRedis Layer = "redis"
)

// Get returns the cached version or ErrCacheMiss
func (c *VersionCache) Get(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, error) {
	v, _, err := c.Lookup(ctx, file, hash)
	return v, err
}

// Lookup is Get that also reports which layer served the hit. Redis hits
// are promoted into L1.
func (c *VersionCache) Lookup(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, Layer, error) {
	key := collab.VersionRef{File: file, Hash: hash}
	if v, ok := c.l1.Get(key); ok {
		c.hits.Add(1)
		return &v, LayerL1, nil
	}

	if c.redis == nil {
		c.misses.Add(1)
		return nil, "", ErrCacheMiss
	}

	data, err := c.redis.Get(ctx, redisKey(file, hash)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, "", ErrCacheMiss
	} else if err != nil {
		c.misses.Add(1)
		return nil, "", fmt.Errorf("redis get failed: %w", err)
	}

	var v collab.FileVersion
	if err := json.Unmarshal(data, &v); err != nil {
		c.redis.Del(ctx, redisKey(file, hash))
		c.misses.Add(1)
		return nil, "", fmt.Errorf("failed to unmarshal version: %w", err)
	}

	c.hits.Add(1)
	c.l1.Add(key, v)
	return &v, LayerRedis, nil
}

// Set stores v in both tiers
func (c *VersionCache) Set(ctx context.Context, v *collab.FileVersion) error {
	c.l1.Add(collab.VersionRef{File: v.File, Hash: v.Hash}, *v)

	if c.redis == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal version: %w", err)
	}
	return c.redis.Set(ctx, redisKey(v.File, v.Hash), data, c.ttl).Err()
}

// Stats returns hit/miss counters and the L1 item count
func (c *VersionCache) Stats() Stats {
	stats := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: int64(c.l1.Len()),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Redis returns the L2 client, nil when running L1 only
func (c *VersionCache) Redis() *redis.Client {
	return c.redis
}

// Close releases resources
func (c *VersionCache) Close() error {
	c.l1.Purge()
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
