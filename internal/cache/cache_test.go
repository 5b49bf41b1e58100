package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mimanitas/settlement/internal/cache"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

func TestMarkEventSeen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	first, err := rc.MarkEventSeen(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := rc.MarkEventSeen(ctx, "evt_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := rc.MarkEventSeen(ctx, "evt_2", time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestClearEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	_, err := rc.MarkEventSeen(ctx, "evt_retry", time.Minute)
	require.NoError(t, err)
	require.NoError(t, rc.ClearEvent(ctx, "evt_retry"))

	first, err := rc.MarkEventSeen(ctx, "evt_retry", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMarkEventSeen_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	_, err := rc.MarkEventSeen(ctx, "evt_ttl", time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	first, err := rc.MarkEventSeen(ctx, "evt_ttl", time.Second)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("caller-1")

	for i := int64(1); i <= 3; i++ {
		n, err := rc.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "webhook:event:evt_1", cache.EventKey("evt_1"))
	assert.Equal(t, "ratelimit:abc", cache.RateLimitKey("abc"))
}
