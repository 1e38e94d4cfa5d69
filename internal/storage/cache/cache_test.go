package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"supportbot/internal/models"
	"supportbot/internal/storage"
	"supportbot/internal/storage/storagetest"
	"supportbot/internal/storage/stubs"
)

// setupRedis starts a Redis container shared by the subtests
func setupRedis(t *testing.T) *redis.Client {
	ctx := context.Background()

	container, err := redisTC.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, Ping(ctx, rdb))
	return rdb
}

func TestCached(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	rdb := setupRedis(t)

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		require.NoError(t, rdb.FlushDB(context.Background()).Err())
		return New(stubs.NewMockDB(), rdb, "test", time.Minute, zap.NewNop())
	})
}

func TestCached_ServesFromRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	rdb := setupRedis(t)
	ctx := context.Background()

	inner := stubs.NewMockDB()
	cached := New(inner, rdb, "test", time.Minute, zap.NewNop())

	require.NoError(t, cached.SaveUser(ctx, &models.TgUser{UserID: 1, FullName: "Cached", ThreadID: 10}))

	// A change made behind the cache stays invisible until invalidation
	require.NoError(t, inner.SaveUser(ctx, &models.TgUser{UserID: 1, FullName: "Behind", ThreadID: 10}))

	user, err := cached.GetUserByThread(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Cached", user.FullName)

	require.NoError(t, cached.SetBan(ctx, 1, true, false))
	user, err = cached.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Behind", user.FullName)
	assert.True(t, user.Banned)

	// Bots sharing Redis do not see each other's keys
	other := New(stubs.NewMockDB(), rdb, "other", time.Minute, zap.NewNop())
	_, err = other.GetUser(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// racingStore lets a reader in just before each ban or thread change reaches the store
type racingStore struct {
	*stubs.MockDB
	beforeWrite func()
}

func (r *racingStore) SetBan(ctx context.Context, userID int64, banned, shadowBanned bool) error {
	r.beforeWrite()
	return r.MockDB.SetBan(ctx, userID, banned, shadowBanned)
}

func (r *racingStore) ClearThread(ctx context.Context, userID int64) error {
	r.beforeWrite()
	return r.MockDB.ClearThread(ctx, userID)
}

func TestCached_ReadDuringWrite(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	rdb := setupRedis(t)
	ctx := context.Background()

	inner := &racingStore{MockDB: stubs.NewMockDB()}
	cached := New(inner, rdb, "test", time.Minute, zap.NewNop())
	reads := 0
	inner.beforeWrite = func() {
		_, err := cached.GetUser(ctx, 7)
		require.NoError(t, err)
		reads++
	}

	require.NoError(t, cached.SaveUser(ctx, &models.TgUser{UserID: 7, FullName: "Jane", ThreadID: 70}))

	require.NoError(t, cached.SetBan(ctx, 7, true, false))
	user, err := cached.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.True(t, user.Banned)

	require.NoError(t, cached.ClearThread(ctx, 7))
	user, err = cached.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.False(t, user.HasThread())
	_, err = cached.GetUserByThread(ctx, 70)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, 2, reads)
}

func TestCached_RedisUnavailable(t *testing.T) {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	cached := New(stubs.NewMockDB(), rdb, "test", time.Minute, zap.NewNop())

	require.NoError(t, cached.SaveUser(ctx, &models.TgUser{UserID: 3, FullName: "Fallback", ThreadID: 30}))

	user, err := cached.GetUserByThread(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.UserID)

	require.NoError(t, cached.ClearThread(ctx, 3))
	_, err = cached.GetUserByThread(ctx, 30)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Error(t, Ping(ctx, rdb))
}
