package ranking

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/common/metrics"
)

// Entry is a cached ranking outcome.
type Entry struct {
	Score       int    `json:"score"`
	Description string `json:"description"`
}

// Cache stores ranking outcomes keyed by the filled prompt. Implementations
// must be safe for concurrent use; a miss and a broken cache look the same.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, e Entry)
}

// CacheKey hashes everything that influences a ranking call.
func CacheKey(template, query, memory, description string) string {
	sum := md5.Sum([]byte(template + "\x00" + query + "\x00" + memory + "\x00" + description))
	return hex.EncodeToString(sum[:])
}

type lruEntry struct {
	entry    Entry
	storedAt time.Time
}

// LRUCache is the in-process tier.
type LRUCache struct {
	cache *lru.Cache[string, lruEntry]
	ttl   time.Duration
}

func NewLRUCache(size int, ttl time.Duration) (*LRUCache, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: c, ttl: ttl}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (Entry, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return Entry{}, false
	}
	if c.ttl > 0 && time.Since(v.storedAt) > c.ttl {
		c.cache.Remove(key)
		return Entry{}, false
	}
	return v.entry, true
}

func (c *LRUCache) Set(_ context.Context, key string, e Entry) {
	c.cache.Add(key, lruEntry{entry: e, storedAt: time.Now()})
}

const redisKeyPrefix = "nlweb:rank:"

// RedisCache shares ranking outcomes between server replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger.ForComponent(log, "ranking-cache")}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("ranking cache read failed", map[string]interface{}{"error": err})
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (c *RedisCache) Set(ctx context.Context, key string, e Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("ranking cache write failed", map[string]interface{}{"error": err})
	}
}

// TieredCache reads through its tiers in order and backfills the faster ones.
type TieredCache struct {
	tiers []Cache
}

func NewTieredCache(tiers ...Cache) *TieredCache {
	var ts []Cache
	for _, t := range tiers {
		if t != nil {
			ts = append(ts, t)
		}
	}
	return &TieredCache{tiers: ts}
}

func (c *TieredCache) Get(ctx context.Context, key string) (Entry, bool) {
	for i, t := range c.tiers {
		if e, ok := t.Get(ctx, key); ok {
			for _, faster := range c.tiers[:i] {
				faster.Set(ctx, key, e)
			}
			metrics.RankingCacheLookups.WithLabelValues("hit").Inc()
			return e, true
		}
	}
	metrics.RankingCacheLookups.WithLabelValues("miss").Inc()
	return Entry{}, false
}

func (c *TieredCache) Set(ctx context.Context, key string, e Entry) {
	for _, t := range c.tiers {
		t.Set(ctx, key, e)
	}
}
