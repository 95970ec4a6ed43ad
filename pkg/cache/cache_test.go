package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/operion-dust/pkg/models"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)

	return args.Get(0).(*redis.StringCmd)
}

func (m *mockRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)

	return args.Get(0).(*redis.StatusCmd)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "operion-dust:options:getAgents:ws-1", Key("getAgents", "ws-1"))
}

func TestRedisOptionsCache_GetHit(t *testing.T) {
	ctx := context.Background()
	client := &mockRedis{}
	client.On("Get", ctx, "k").
		Return(redis.NewStringResult(`[{"name":"Alpha","value":"a1"}]`, nil))

	c := newRedisOptionsCache(client, time.Minute, nil)

	options, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []models.NodeOption{{Name: "Alpha", Value: "a1"}}, options)
	client.AssertExpectations(t)
}

func TestRedisOptionsCache_GetMiss(t *testing.T) {
	ctx := context.Background()
	client := &mockRedis{}
	client.On("Get", ctx, "k").Return(redis.NewStringResult("", redis.Nil))

	c := newRedisOptionsCache(client, time.Minute, nil)

	options, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, options)
}

func TestRedisOptionsCache_GetError(t *testing.T) {
	ctx := context.Background()
	client := &mockRedis{}
	client.On("Get", ctx, "k").Return(redis.NewStringResult("", errors.New("connection refused")))

	c := newRedisOptionsCache(client, time.Minute, nil)

	_, ok, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisOptionsCache_GetCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	client := &mockRedis{}
	client.On("Get", ctx, "k").Return(redis.NewStringResult("{not json", nil))

	c := newRedisOptionsCache(client, time.Minute, nil)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisOptionsCache_Set(t *testing.T) {
	ctx := context.Background()
	client := &mockRedis{}
	client.On("Set", ctx, "k", []byte(`[{"name":"Alpha","value":"a1"}]`), 2*time.Minute).
		Return(redis.NewStatusResult("OK", nil))

	c := newRedisOptionsCache(client, 2*time.Minute, nil)

	err := c.Set(ctx, "k", []models.NodeOption{{Name: "Alpha", Value: "a1"}})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestRedisOptionsCache_DefaultTTL(t *testing.T) {
	c := newRedisOptionsCache(&mockRedis{}, 0, nil)
	assert.Equal(t, DefaultTTL, c.ttl)
}
