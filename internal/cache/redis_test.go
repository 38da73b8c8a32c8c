package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/redis"
	"github.com/joaohlviana/99novo-sub001/internal/testutil"
)

func setupRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *fakeClock) {
	t.Helper()

	client := redis.NewClient(testutil.SetupTestRedis(t))
	clock := newFakeClock()

	c := NewRedisCache(client, "test", ttl, testutil.SetupTestLogger(t))
	c.now = clock.Now
	return c, clock
}

func TestRedisCache_PutGet(t *testing.T) {
	c, clock := setupRedisCache(t, DefaultTTL)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Put(ctx, "k", sampleOutcome("a", "c"))

	entry, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Count)
	assert.Equal(t, "view", entry.Source)
	assert.True(t, clock.Now().Equal(entry.Timestamp))
	assert.Equal(t, []string{"a", "c"}, []string{entry.Data[0].ID, entry.Data[1].ID})

	ttl, err := c.client.TTL(ctx, c.redisKey("k")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisCache_TimestampExpiry(t *testing.T) {
	c, clock := setupRedisCache(t, time.Hour)
	ctx := context.Background()

	c.Put(ctx, "k", sampleOutcome("a"))
	clock.Advance(time.Hour)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	exists, err := c.client.Exists(ctx, c.redisKey("k")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestRedisCache_Clear(t *testing.T) {
	c, _ := setupRedisCache(t, DefaultTTL)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Put(ctx, Key(modelsFilters(i)), sampleOutcome("a"))
	}
	require.NoError(t, c.client.Set(ctx, "other:key", "keep", 0).Err())

	require.NoError(t, c.Clear(ctx))

	for i := 0; i < 5; i++ {
		_, ok := c.Get(ctx, Key(modelsFilters(i)))
		assert.False(t, ok)
	}

	val, err := c.client.Get(ctx, "other:key").Result()
	require.NoError(t, err)
	assert.Equal(t, "keep", val)
}

func modelsFilters(offset int) models.SearchFilters {
	return models.SearchFilters{Specialties: []string{"yoga"}, Limit: 10, Offset: offset}
}
