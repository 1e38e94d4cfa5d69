// Package cache keeps hot user records and the topic→user index of a Storage in Redis.
//
// Every relayed message needs one or two lookups, while writes are rare, so
// reads go to Redis first and every write invalidates the touched keys.
// Redis failures are logged and the wrapped store is used instead.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"supportbot/internal/models"
	"supportbot/internal/storage"
)

// DefaultTTL bounds how long a cached record may outlive a change made behind the cache
const DefaultTTL = 24 * time.Hour

// Cached wraps a Storage. Methods it does not override go straight to the wrapped store
type Cached struct {
	storage.Storage

	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps db. Keys are namespaced by botName so bots can share one Redis
func New(db storage.Storage, rdb redis.UniversalClient, botName string, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{
		Storage: db,
		rdb:     rdb,
		prefix:  "supportbot:" + botName + ":",
		ttl:     ttl,
		logger:  logger,
	}
}

func (c *Cached) userKey(userID int64) string {
	return c.prefix + "user:" + strconv.FormatInt(userID, 10)
}

func (c *Cached) threadKey(threadID int) string {
	return c.prefix + "thread:" + strconv.Itoa(threadID)
}

func (c *Cached) cachedUser(ctx context.Context, userID int64) (*models.TgUser, bool) {
	data, err := c.rdb.Get(ctx, c.userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Redis read failed", zap.Error(err), zap.Int64("user_id", userID))
		return nil, false
	}

	var user models.TgUser
	if err := json.Unmarshal(data, &user); err != nil {
		c.logger.Warn("Dropping malformed cache entry", zap.Error(err), zap.Int64("user_id", userID))
		c.forget(ctx, userID)
		return nil, false
	}
	return &user, true
}

func (c *Cached) remember(ctx context.Context, user *models.TgUser) {
	data, err := json.Marshal(user)
	if err != nil {
		c.logger.Warn("Failed to encode user for cache", zap.Error(err))
		return
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.userKey(user.UserID), data, c.ttl)
	if user.HasThread() {
		pipe.Set(ctx, c.threadKey(user.ThreadID), user.UserID, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Redis write failed", zap.Error(err), zap.Int64("user_id", user.UserID))
	}
}

// forget drops the user record and the index entry of its cached thread
func (c *Cached) forget(ctx context.Context, userID int64) {
	keys := []string{c.userKey(userID)}
	if data, err := c.rdb.Get(ctx, c.userKey(userID)).Bytes(); err == nil {
		var user models.TgUser
		if json.Unmarshal(data, &user) == nil && user.HasThread() {
			keys = append(keys, c.threadKey(user.ThreadID))
		}
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Redis delete failed", zap.Error(err), zap.Int64("user_id", userID))
	}
}

// GetUser serves the user from Redis when possible
func (c *Cached) GetUser(ctx context.Context, userID int64) (*models.TgUser, error) {
	if user, ok := c.cachedUser(ctx, userID); ok {
		return user, nil
	}

	user, err := c.Storage.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, user)
	return user, nil
}

// GetUserByThread resolves the topic through the cached index. An index entry
// is trusted only if the cached user still holds the thread
func (c *Cached) GetUserByThread(ctx context.Context, threadID int) (*models.TgUser, error) {
	if threadID == 0 {
		return nil, storage.ErrNotFound
	}

	userID, err := c.rdb.Get(ctx, c.threadKey(threadID)).Int64()
	switch {
	case err == nil:
		if user, ok := c.cachedUser(ctx, userID); ok && user.ThreadID == threadID {
			return user, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Redis read failed", zap.Error(err), zap.Int("thread_id", threadID))
	}

	user, err := c.Storage.GetUserByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, user)
	return user, nil
}

// SaveUser writes through and invalidates the user and a previous owner of its thread
func (c *Cached) SaveUser(ctx context.Context, user *models.TgUser) error {
	if user.HasThread() {
		if prev, err := c.rdb.Get(ctx, c.threadKey(user.ThreadID)).Int64(); err == nil && prev != user.UserID {
			c.forget(ctx, prev)
		}
	}
	if err := c.writeThrough(ctx, user.UserID, func() error {
		return c.Storage.SaveUser(ctx, user)
	}); err != nil {
		return err
	}
	c.remember(ctx, user)
	return nil
}

// ClearThread writes through and invalidates the user
func (c *Cached) ClearThread(ctx context.Context, userID int64) error {
	return c.writeThrough(ctx, userID, func() error {
		return c.Storage.ClearThread(ctx, userID)
	})
}

// SetBan writes through and invalidates the user
func (c *Cached) SetBan(ctx context.Context, userID int64, banned, shadowBanned bool) error {
	return c.writeThrough(ctx, userID, func() error {
		return c.Storage.SetBan(ctx, userID, banned, shadowBanned)
	})
}

// writeThrough forgets the user around the store write. The first pass drops
// the index of the thread the user had, the second drops a record a reader
// cached from the store while the write was in flight
func (c *Cached) writeThrough(ctx context.Context, userID int64, write func() error) error {
	c.forget(ctx, userID)
	err := write()
	c.forget(ctx, userID)
	return err
}

// Ping checks the Redis connection
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
