package storage

import (
	"context"
	"errors"
	"time"

	"supportbot/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("storage: not found")

// Storage defines the interface for data storage operations of a single bot
type Storage interface {
	// User operations

	// GetUser returns the user by Telegram user ID or ErrNotFound
	GetUser(ctx context.Context, userID int64) (*models.TgUser, error)
	// GetUserByThread returns the user owning the topic or ErrNotFound
	GetUserByThread(ctx context.Context, threadID int) (*models.TgUser, error)
	// SaveUser inserts or updates the user. A non-zero ThreadID is taken away
	// from any other user holding it, so a topic always maps to one user
	SaveUser(ctx context.Context, user *models.TgUser) error
	ClearThread(ctx context.Context, userID int64) error
	SetBan(ctx context.Context, userID int64, banned, shadowBanned bool) error
	// ListUsers returns users ordered by ID. Banned and shadow banned users are
	// skipped unless includeBanned is set
	ListUsers(ctx context.Context, includeBanned bool) ([]models.TgUser, error)
	// ListStaleThreads returns users with a topic whose last activity is before the given time
	ListStaleThreads(ctx context.Context, before time.Time) ([]models.TgUser, error)

	// Statistics operations
	RecordAction(ctx context.Context, action models.Action, at time.Time) error
	// CountActions sums action counters over the days in [since, until]
	CountActions(ctx context.Context, since, until time.Time) (map[models.Action]int, error)

	// Self-destruction operations
	ScheduleDestruction(ctx context.Context, d models.Destruction) error
	DueDestructions(ctx context.Context, now time.Time, limit int) ([]models.Destruction, error)
	DeleteDestruction(ctx context.Context, chatID int64, messageID int) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Day truncates t to the UTC day it belongs to. Action counters are kept per day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
