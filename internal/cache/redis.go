package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/redis"
)

// RedisCache is a Store shared between processes. Entries carry a Redis
// expiry equal to the ttl and are also checked against their timestamp so
// both stores agree on freshness.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger
}

// NewRedisCache creates a cache whose keys live under prefix
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *logrus.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "specialties"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func (c *RedisCache) redisKey(key string) string {
	return c.prefix + ":search:" + key
}

// Get returns the fresh entry stored under key
func (c *RedisCache) Get(ctx context.Context, key string) (*models.CacheEntry, bool) {
	var entry models.CacheEntry
	found, err := c.client.GetJSON(ctx, c.redisKey(key), &entry)
	if err != nil {
		c.logger.Warnf("Cache lookup failed for %s: %v", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	if expired(&entry, c.now(), c.ttl) {
		if err := c.client.Del(ctx, c.redisKey(key)).Err(); err != nil {
			c.logger.Debugf("Failed to delete expired cache entry %s: %v", key, err)
		}
		return nil, false
	}
	return &entry, true
}

// Put stores outcome under key
func (c *RedisCache) Put(ctx context.Context, key string, outcome *models.SearchOutcome) {
	if outcome == nil {
		return
	}
	entry := newEntry(key, outcome, c.now())
	if err := c.client.SetJSON(ctx, c.redisKey(key), entry, c.ttl); err != nil {
		c.logger.Warnf("Cache store failed for %s: %v", key, err)
	}
}

// Clear removes every search entry under the prefix
func (c *RedisCache) Clear(ctx context.Context) error {
	n, err := c.client.DeleteByPattern(ctx, c.prefix+":search:*")
	if err != nil {
		return err
	}
	c.logger.Debugf("Cleared %d cached search pages", n)
	return nil
}
