// Package pg implements Storage on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"supportbot/internal/models"
	"supportbot/internal/storage"
	"supportbot/internal/storage/migrations"
)

const userColumns = `user_id, full_name, username, thread_id, subject, banned, shadow_banned,
	created_at, last_user_message_at, last_admin_message_at`

type DB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects to the database at url and checks the connection
func NewPostgresDB(ctx context.Context, url string) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &DB{pool: pool}, nil
}

// SQL returns a database/sql view of the pool for migration tooling.
// Its idle connections stay acquired from the pool until it is closed
func (db *DB) SQL() *sql.DB {
	return stdlib.OpenDBFromPool(db.pool)
}

// Initialize applies pending migrations
func (db *DB) Initialize(ctx context.Context) error {
	sqlDB := db.SQL()
	defer sqlDB.Close()
	return migrations.Up(ctx, sqlDB, goose.DialectPostgres)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanUser(row pgx.Row) (*models.TgUser, error) {
	var (
		user                models.TgUser
		lastUser, lastAdmin *time.Time
	)
	err := row.Scan(&user.UserID, &user.FullName, &user.Username, &user.ThreadID, &user.Subject,
		&user.Banned, &user.ShadowBanned, &user.CreatedAt, &lastUser, &lastAdmin)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if lastUser != nil {
		user.LastUserMessageAt = lastUser.UTC()
	}
	if lastAdmin != nil {
		user.LastAdminMessageAt = lastAdmin.UTC()
	}
	return &user, nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*models.TgUser, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM tgusers WHERE `+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUser returns the user by Telegram ID
func (db *DB) GetUser(ctx context.Context, userID int64) (*models.TgUser, error) {
	return db.getUser(ctx, "user_id = $1", userID)
}

// GetUserByThread returns the owner of the topic
func (db *DB) GetUserByThread(ctx context.Context, threadID int) (*models.TgUser, error) {
	if threadID == 0 {
		return nil, storage.ErrNotFound
	}
	return db.getUser(ctx, "thread_id = $1", threadID)
}

// SaveUser upserts the user and releases its thread from other users
func (db *DB) SaveUser(ctx context.Context, user *models.TgUser) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if user.ThreadID != 0 {
		_, err := tx.Exec(ctx, `UPDATE tgusers SET thread_id = 0 WHERE thread_id = $1 AND user_id <> $2`,
			user.ThreadID, user.UserID)
		if err != nil {
			return fmt.Errorf("failed to release thread: %w", err)
		}
	}

	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO tgusers (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			username = EXCLUDED.username,
			thread_id = EXCLUDED.thread_id,
			subject = EXCLUDED.subject,
			banned = EXCLUDED.banned,
			shadow_banned = EXCLUDED.shadow_banned,
			last_user_message_at = EXCLUDED.last_user_message_at,
			last_admin_message_at = EXCLUDED.last_admin_message_at
		RETURNING created_at`,
		user.UserID, user.FullName, user.Username, user.ThreadID, user.Subject,
		user.Banned, user.ShadowBanned, created,
		nullTime(user.LastUserMessageAt), nullTime(user.LastAdminMessageAt),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}
	user.CreatedAt = createdAt.UTC()
	return nil
}

func (db *DB) updateUser(ctx context.Context, query string, args ...any) error {
	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearThread forgets the user's topic
func (db *DB) ClearThread(ctx context.Context, userID int64) error {
	return db.updateUser(ctx, `UPDATE tgusers SET thread_id = 0 WHERE user_id = $1`, userID)
}

// SetBan updates ban flags
func (db *DB) SetBan(ctx context.Context, userID int64, banned, shadowBanned bool) error {
	return db.updateUser(ctx, `UPDATE tgusers SET banned = $1, shadow_banned = $2 WHERE user_id = $3`,
		banned, shadowBanned, userID)
}

func (db *DB) listUsers(ctx context.Context, query string, args ...any) ([]models.TgUser, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.TgUser
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// ListUsers returns users ordered by ID
func (db *DB) ListUsers(ctx context.Context, includeBanned bool) ([]models.TgUser, error) {
	query := `SELECT ` + userColumns + ` FROM tgusers`
	if !includeBanned {
		query += ` WHERE NOT banned AND NOT shadow_banned`
	}
	return db.listUsers(ctx, query+` ORDER BY user_id`)
}

// ListStaleThreads returns users with a topic and no activity since before
func (db *DB) ListStaleThreads(ctx context.Context, before time.Time) ([]models.TgUser, error) {
	// GREATEST skips NULLs
	return db.listUsers(ctx, `
		SELECT `+userColumns+` FROM tgusers
		WHERE thread_id <> 0
			AND GREATEST(created_at, last_user_message_at, last_admin_message_at) < $1
		ORDER BY user_id`, before)
}

// RecordAction increments the daily counter
func (db *DB) RecordAction(ctx context.Context, action models.Action, at time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO action_counters (day, action, count) VALUES ($1, $2, 1)
		ON CONFLICT (day, action) DO UPDATE SET count = action_counters.count + 1`,
		storage.Day(at), string(action))
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// CountActions sums counters over the period
func (db *DB) CountActions(ctx context.Context, since, until time.Time) (map[models.Action]int, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT action, SUM(count) FROM action_counters
		WHERE day BETWEEN $1 AND $2
		GROUP BY action`, storage.Day(since), storage.Day(until))
	if err != nil {
		return nil, fmt.Errorf("failed to count actions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Action]int)
	for rows.Next() {
		var (
			action string
			n      int64
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan action count: %w", err)
		}
		counts[models.Action(action)] = int(n)
	}
	return counts, rows.Err()
}

// ScheduleDestruction remembers a message to delete later
func (db *DB) ScheduleDestruction(ctx context.Context, d models.Destruction) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO destructions (chat_id, message_id, delete_at) VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET delete_at = EXCLUDED.delete_at`,
		d.ChatID, d.MessageID, d.DeleteAt)
	if err != nil {
		return fmt.Errorf("failed to schedule destruction: %w", err)
	}
	return nil
}

// DueDestructions returns messages whose time has come, oldest first
func (db *DB) DueDestructions(ctx context.Context, now time.Time, limit int) ([]models.Destruction, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT chat_id, message_id, delete_at FROM destructions
		WHERE delete_at <= $1
		ORDER BY delete_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list destructions: %w", err)
	}
	defer rows.Close()

	var due []models.Destruction
	for rows.Next() {
		var d models.Destruction
		if err := rows.Scan(&d.ChatID, &d.MessageID, &d.DeleteAt); err != nil {
			return nil, fmt.Errorf("failed to scan destruction: %w", err)
		}
		d.DeleteAt = d.DeleteAt.UTC()
		due = append(due, d)
	}
	return due, rows.Err()
}

// DeleteDestruction forgets a scheduled message
func (db *DB) DeleteDestruction(ctx context.Context, chatID int64, messageID int) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM destructions WHERE chat_id = $1 AND message_id = $2`,
		chatID, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete destruction: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}
