//go:build integration

package statscache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	platformredis "flowledger/internal/platform/redis"
	"flowledger/pkg/testutil/containers"
)

func TestCacheIntegration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	client := &platformredis.Client{Client: rc.Client}
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		cache := New(client, time.Minute)

		_, found := cache.GetRegion(ctx, 840)
		require.False(t, found)

		require.NoError(t, cache.SetRegion(ctx, 840, 17))

		count, found := cache.GetRegion(ctx, 840)
		require.True(t, found)
		require.Equal(t, uint64(17), count)
	})

	t.Run("region and tier keys do not collide", func(t *testing.T) {
		cache := New(client, time.Minute)

		require.NoError(t, cache.SetRegion(ctx, 3, 100))
		require.NoError(t, cache.SetTier(ctx, 3, 200))

		regionCount, found := cache.GetRegion(ctx, 3)
		require.True(t, found)
		require.Equal(t, uint64(100), regionCount)

		tierCount, found := cache.GetTier(ctx, 3)
		require.True(t, found)
		require.Equal(t, uint64(200), tierCount)
	})

	t.Run("invalidate drops every stats key", func(t *testing.T) {
		cache := New(client, time.Minute)

		require.NoError(t, cache.SetRegion(ctx, 250, 5))
		require.NoError(t, cache.SetTier(ctx, 7, 9))

		require.NoError(t, cache.Invalidate(ctx))

		_, found := cache.GetRegion(ctx, 250)
		require.False(t, found)
		_, found = cache.GetTier(ctx, 7)
		require.False(t, found)
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		cache := New(client, 50*time.Millisecond)

		require.NoError(t, cache.SetTier(ctx, 42, 1))
		time.Sleep(100 * time.Millisecond)

		_, found := cache.GetTier(ctx, 42)
		require.False(t, found)
	})
}

func TestCacheDisabled(t *testing.T) {
	ctx := context.Background()

	var nilCache *Cache
	require.False(t, nilCache.Enabled())

	cache := New(nil, time.Minute)
	require.False(t, cache.Enabled())

	// All operations are no-ops without a backend.
	require.NoError(t, cache.SetRegion(ctx, 1, 1))
	_, found := cache.GetRegion(ctx, 1)
	require.False(t, found)
	require.NoError(t, cache.Invalidate(ctx))
}
