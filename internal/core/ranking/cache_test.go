package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/common/logger"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheKey_DependsOnEveryInput(t *testing.T) {
	base := CacheKey("RankingPrompt@Recipe", "q", "none", "d")

	assert.Equal(t, base, CacheKey("RankingPrompt@Recipe", "q", "none", "d"))
	assert.NotEqual(t, base, CacheKey("RankingPrompt@Movie", "q", "none", "d"))
	assert.NotEqual(t, base, CacheKey("RankingPrompt@Recipe", "q2", "none", "d"))
	assert.NotEqual(t, base, CacheKey("RankingPrompt@Recipe", "q", "vegetarian", "d"))
	assert.NotEqual(t, base, CacheKey("RankingPrompt@Recipe", "q", "none", "d2"))
}

func TestLRUCache_Expiry(t *testing.T) {
	c, err := NewLRUCache(8, 20*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "k", Entry{Score: 55, Description: "fine"})
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 55, got.Score)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_RoundTripWithTTL(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewRedisCache(client, 5*time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", Entry{Score: 91, Description: "Classic Neapolitan pie."})
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, Entry{Score: 91, Description: "Classic Neapolitan pie."}, got)
	assert.Equal(t, 5*time.Minute, mr.TTL(redisKeyPrefix+"k"))

	mr.FastForward(6 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_ErrorsAreMisses(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	mock.ExpectGet(redisKeyPrefix + "k").SetErr(errors.New("connection reset"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	mock.ExpectGet(redisKeyPrefix + "bad").SetVal("not json")
	_, ok = c.Get(ctx, "bad")
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTieredCache_BackfillsFasterTier(t *testing.T) {
	_, client := setupRedis(t)
	local, err := NewLRUCache(8, time.Minute)
	require.NoError(t, err)
	shared := NewRedisCache(client, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	shared.Set(ctx, "k", Entry{Score: 42, Description: "d"})
	tiered := NewTieredCache(local, nil, shared)

	got, ok := tiered.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 42, got.Score)

	got, ok = local.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 42, got.Score)

	tiered.Set(ctx, "k2", Entry{Score: 7})
	_, ok = shared.Get(ctx, "k2")
	assert.True(t, ok)
}
