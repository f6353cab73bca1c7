package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

func setupTestRedis(t *testing.T) (*redisCache, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		URL:          mr.Addr(),
		Password:     "",
		DB:           0,
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	logger := zaptest.NewLogger(t)

	c, err := NewRedisCache(cfg, logger)
	require.NoError(t, err)

	rc := c.(*redisCache)

	cleanup := func() {
		c.Close()
		mr.Close()
	}

	return rc, mr, cleanup
}

func TestNewRedisCache(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		c, _, cleanup := setupTestRedis(t)
		defer cleanup()

		assert.NotNil(t, c)
		assert.NotNil(t, c.client)
		assert.NotNil(t, c.logger)
	})

	t.Run("nil logger", func(t *testing.T) {
		cfg := &config.RedisConfig{URL: "localhost:6379"}
		_, err := NewRedisCache(cfg, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("nil config", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		_, err := NewRedisCache(nil, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis config is required")
	})

	t.Run("connection failure", func(t *testing.T) {
		cfg := &config.RedisConfig{
			URL:         "localhost:9999",
			DialTimeout: 100 * time.Millisecond,
		}
		logger := zaptest.NewLogger(t)

		_, err := NewRedisCache(cfg, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis connection failed")
	})
}

func TestRedisCache_GetSet(t *testing.T) {
	c, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("set and get value", func(t *testing.T) {
		err := c.Set(ctx, QueryResultPrefix+"abc", "payload", time.Minute)
		require.NoError(t, err)

		got, err := c.Get(ctx, QueryResultPrefix+"abc")
		require.NoError(t, err)
		assert.Equal(t, "payload", got)
	})

	t.Run("missing key returns typed error", func(t *testing.T) {
		_, err := c.Get(ctx, "tab:query:missing")
		require.Error(t, err)
		assert.IsType(t, ErrCacheKeyNotFound{}, err)
	})
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	// Stored value must be returned unchanged inside the TTL window
	// and disappear once the TTL elapses.
	err := c.Set(ctx, "tab:query:ttl", "v", 10*time.Second)
	require.NoError(t, err)

	got, err := c.Get(ctx, "tab:query:ttl")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	mr.FastForward(9 * time.Second)
	got, err = c.Get(ctx, "tab:query:ttl")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	mr.FastForward(2 * time.Second)
	_, err = c.Get(ctx, "tab:query:ttl")
	assert.IsType(t, ErrCacheKeyNotFound{}, err)
}

func TestRedisCache_JSON(t *testing.T) {
	c, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	type payload struct {
		Metric string    `json:"metric"`
		Values []float64 `json:"values"`
	}

	in := payload{Metric: "latency_ms", Values: []float64{1.5, 2.5, 3.5}}

	err := c.SetJSON(ctx, "tab:query:json", in, time.Minute)
	require.NoError(t, err)

	var out payload
	err = c.GetJSON(ctx, "tab:query:json", &out)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRedisCache_DeleteExists(t *testing.T) {
	c, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "tab:schema:events", "{}", time.Minute))

	exists, err := c.Exists(ctx, "tab:schema:events")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "tab:schema:events"))

	exists, err = c.Exists(ctx, "tab:schema:events")
	require.NoError(t, err)
	assert.False(t, exists)
}
