// Package storagetest holds behaviour tests shared by every Storage implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/models"
	"supportbot/internal/storage"
)

// Run runs the whole suite. newStore must return an empty, initialized storage
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("UserLookup", func(t *testing.T) { testUserLookup(t, newStore(t)) })
	t.Run("ThreadBelongsToOneUser", func(t *testing.T) { testThreadBelongsToOneUser(t, newStore(t)) })
	t.Run("ClearThread", func(t *testing.T) { testClearThread(t, newStore(t)) })
	t.Run("Ban", func(t *testing.T) { testBan(t, newStore(t)) })
	t.Run("StaleThreads", func(t *testing.T) { testStaleThreads(t, newStore(t)) })
	t.Run("Actions", func(t *testing.T) { testActions(t, newStore(t)) })
	t.Run("Destructions", func(t *testing.T) { testDestructions(t, newStore(t)) })
}

func testUserLookup(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	_, err := db.GetUser(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.GetUserByThread(ctx, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	user := &models.TgUser{UserID: 42, FullName: "Ann Lee", Username: "ann", ThreadID: 7}
	require.NoError(t, db.SaveUser(ctx, user))
	assert.False(t, user.CreatedAt.IsZero(), "creation time should be filled in")

	got, err := db.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", got.FullName)
	assert.Equal(t, "ann", got.Username)
	assert.Equal(t, 7, got.ThreadID)
	assert.False(t, got.Banned)

	got, err = db.GetUserByThread(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)

	// Thread 0 means "no topic" and never matches
	require.NoError(t, db.SaveUser(ctx, &models.TgUser{UserID: 43, FullName: "No Topic"}))
	_, err = db.GetUserByThread(ctx, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Update keeps the creation time
	created := got.CreatedAt
	seen := time.Now().UTC().Truncate(time.Second)
	got.FullName = "Ann Smith"
	got.Subject = "Prices"
	got.LastUserMessageAt = seen
	got.CreatedAt = time.Time{}
	require.NoError(t, db.SaveUser(ctx, got))

	again, err := db.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Ann Smith", again.FullName)
	assert.Equal(t, "Prices", again.Subject)
	assert.WithinDuration(t, created, again.CreatedAt, time.Second)
	assert.WithinDuration(t, seen, again.LastUserMessageAt, time.Second)
	assert.True(t, again.LastAdminMessageAt.IsZero())
}

func testThreadBelongsToOneUser(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	require.NoError(t, db.SaveUser(ctx, &models.TgUser{UserID: 1, FullName: "First", ThreadID: 100}))
	require.NoError(t, db.SaveUser(ctx, &models.TgUser{UserID: 2, FullName: "Second", ThreadID: 100}))

	owner, err := db.GetUserByThread(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), owner.UserID)

	first, err := db.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, first.ThreadID)
}

func testClearThread(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	require.NoError(t, db.SaveUser(ctx, &models.TgUser{UserID: 5, FullName: "Five", ThreadID: 55}))
	require.NoError(t, db.ClearThread(ctx, 5))

	user, err := db.GetUser(ctx, 5)
	require.NoError(t, err)
	assert.False(t, user.HasThread())

	_, err = db.GetUserByThread(ctx, 55)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, db.ClearThread(ctx, 999), storage.ErrNotFound)
}

func testBan(t *testing.T, db storage.Storage) {
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, db.SaveUser(ctx, &models.TgUser{UserID: id, FullName: "User"}))
	}
	require.NoError(t, db.SetBan(ctx, 2, true, false))
	require.NoError(t, db.SetBan(ctx, 3, false, true))

	users, err := db.ListUsers(ctx, false)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].UserID)

	users, err = db.ListUsers(ctx, true)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{users[0].UserID, users[1].UserID, users[2].UserID})
	assert.True(t, users[1].Banned)
	assert.True(t, users[2].ShadowBanned)

	require.NoError(t, db.SetBan(ctx, 2, false, false))
	user, err := db.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.False(t, user.Banned)

	assert.ErrorIs(t, db.SetBan(ctx, 999, true, false), storage.ErrNotFound)
}

func testStaleThreads(t *testing.T, db storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	old := now.Add(-30 * 24 * time.Hour)

	users := []*models.TgUser{
		{UserID: 1, FullName: "Old", ThreadID: 11, CreatedAt: old, LastUserMessageAt: old},
		{UserID: 2, FullName: "Admin answered recently", ThreadID: 12, CreatedAt: old, LastUserMessageAt: old, LastAdminMessageAt: now},
		{UserID: 3, FullName: "Old without topic", CreatedAt: old, LastUserMessageAt: old},
		{UserID: 4, FullName: "Fresh", ThreadID: 14, CreatedAt: now, LastUserMessageAt: now},
	}
	for _, u := range users {
		require.NoError(t, db.SaveUser(ctx, u))
	}

	stale, err := db.ListStaleThreads(ctx, now.Add(-14*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, int64(1), stale[0].UserID)
	assert.Equal(t, 11, stale[0].ThreadID)
}

func testActions(t *testing.T, db storage.Storage) {
	ctx := context.Background()
	today := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	lastWeek := today.AddDate(0, 0, -7)
	longAgo := today.AddDate(0, -2, 0)

	require.NoError(t, db.RecordAction(ctx, models.ActionUserMessage, today))
	require.NoError(t, db.RecordAction(ctx, models.ActionUserMessage, today.Add(time.Hour)))
	require.NoError(t, db.RecordAction(ctx, models.ActionUserMessage, lastWeek))
	require.NoError(t, db.RecordAction(ctx, models.ActionNewUser, lastWeek))
	require.NoError(t, db.RecordAction(ctx, models.ActionAdminMessage, longAgo))

	counts, err := db.CountActions(ctx, lastWeek, today)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.ActionUserMessage])
	assert.Equal(t, 1, counts[models.ActionNewUser])
	assert.Equal(t, 0, counts[models.ActionAdminMessage])

	counts, err = db.CountActions(ctx, today, today)
	require.NoError(t, err)
	assert.Equal(t, map[models.Action]int{models.ActionUserMessage: 2}, counts)
}

func testDestructions(t *testing.T, db storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.ScheduleDestruction(ctx, models.Destruction{ChatID: 1, MessageID: 10, DeleteAt: now.Add(-2 * time.Minute)}))
	require.NoError(t, db.ScheduleDestruction(ctx, models.Destruction{ChatID: 1, MessageID: 11, DeleteAt: now.Add(-time.Minute)}))
	require.NoError(t, db.ScheduleDestruction(ctx, models.Destruction{ChatID: 2, MessageID: 20, DeleteAt: now.Add(time.Hour)}))

	due, err := db.DueDestructions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, 10, due[0].MessageID)
	assert.Equal(t, 11, due[1].MessageID)

	due, err = db.DueDestructions(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	require.NoError(t, db.DeleteDestruction(ctx, 1, 10))
	due, err = db.DueDestructions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 11, due[0].MessageID)

	due, err = db.DueDestructions(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}
