// Package sqlite implements Storage on an SQLite file, the default store of a bot.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"supportbot/internal/models"
	"supportbot/internal/storage"
	"supportbot/internal/storage/migrations"
)

const dayLayout = "2006-01-02"

const userColumns = `user_id, full_name, username, thread_id, subject, banned, shadow_banned,
	created_at, last_user_message_at, last_admin_message_at`

type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
// ":memory:" gives a private in-memory database
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps
	// an in-memory database alive and shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return &DB{db: db}, nil
}

// SQL exposes the underlying handle for migration tooling
func (s *DB) SQL() *sql.DB {
	return s.db
}

// Initialize applies pending migrations
func (s *DB) Initialize(ctx context.Context) error {
	return migrations.Up(ctx, s.db, goose.DialectSQLite3)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.TgUser, error) {
	var (
		user                         models.TgUser
		created, lastUser, lastAdmin int64
	)
	err := row.Scan(&user.UserID, &user.FullName, &user.Username, &user.ThreadID, &user.Subject,
		&user.Banned, &user.ShadowBanned, &created, &lastUser, &lastAdmin)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = fromUnix(created)
	user.LastUserMessageAt = fromUnix(lastUser)
	user.LastAdminMessageAt = fromUnix(lastAdmin)
	return &user, nil
}

func (s *DB) getUser(ctx context.Context, where string, arg any) (*models.TgUser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM tgusers WHERE `+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUser returns the user by Telegram ID
func (s *DB) GetUser(ctx context.Context, userID int64) (*models.TgUser, error) {
	return s.getUser(ctx, "user_id = ?", userID)
}

// GetUserByThread returns the owner of the topic
func (s *DB) GetUserByThread(ctx context.Context, threadID int) (*models.TgUser, error) {
	if threadID == 0 {
		return nil, storage.ErrNotFound
	}
	return s.getUser(ctx, "thread_id = ?", threadID)
}

// SaveUser upserts the user and releases its thread from other users
func (s *DB) SaveUser(ctx context.Context, user *models.TgUser) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if user.ThreadID != 0 {
		_, err := tx.ExecContext(ctx, `UPDATE tgusers SET thread_id = 0 WHERE thread_id = ? AND user_id <> ?`,
			user.ThreadID, user.UserID)
		if err != nil {
			return fmt.Errorf("failed to release thread: %w", err)
		}
	}

	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	var createdAt int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tgusers (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name,
			username = excluded.username,
			thread_id = excluded.thread_id,
			subject = excluded.subject,
			banned = excluded.banned,
			shadow_banned = excluded.shadow_banned,
			last_user_message_at = excluded.last_user_message_at,
			last_admin_message_at = excluded.last_admin_message_at
		RETURNING created_at`,
		user.UserID, user.FullName, user.Username, user.ThreadID, user.Subject,
		user.Banned, user.ShadowBanned, created.Unix(),
		toUnix(user.LastUserMessageAt), toUnix(user.LastAdminMessageAt),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}
	user.CreatedAt = fromUnix(createdAt)
	return nil
}

func (s *DB) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearThread forgets the user's topic
func (s *DB) ClearThread(ctx context.Context, userID int64) error {
	return s.updateUser(ctx, `UPDATE tgusers SET thread_id = 0 WHERE user_id = ?`, userID)
}

// SetBan updates ban flags
func (s *DB) SetBan(ctx context.Context, userID int64, banned, shadowBanned bool) error {
	return s.updateUser(ctx, `UPDATE tgusers SET banned = ?, shadow_banned = ? WHERE user_id = ?`,
		banned, shadowBanned, userID)
}

func (s *DB) listUsers(ctx context.Context, query string, args ...any) ([]models.TgUser, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *DB) ListUsers(ctx context.Context, includeBanned bool) ([]models.TgUser, error) {
	query := `SELECT ` + userColumns + ` FROM tgusers`
	if !includeBanned {
		query += ` WHERE banned = 0 AND shadow_banned = 0`
	}
	return s.listUsers(ctx, query+` ORDER BY user_id`)
}

// ListStaleThreads returns users with a topic and no activity since before
func (s *DB) ListStaleThreads(ctx context.Context, before time.Time) ([]models.TgUser, error) {
	return s.listUsers(ctx, `
		SELECT `+userColumns+` FROM tgusers
		WHERE thread_id <> 0
			AND MAX(created_at, last_user_message_at, last_admin_message_at) < ?
		ORDER BY user_id`, before.Unix())
}

// RecordAction increments the daily counter
func (s *DB) RecordAction(ctx context.Context, action models.Action, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_counters (day, action, count) VALUES (?, ?, 1)
		ON CONFLICT (day, action) DO UPDATE SET count = count + 1`,
		storage.Day(at).Format(dayLayout), string(action))
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// CountActions sums counters over the period
func (s *DB) CountActions(ctx context.Context, since, until time.Time) (map[models.Action]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, SUM(count) FROM action_counters
		WHERE day >= ? AND day <= ?
		GROUP BY action`,
		storage.Day(since).Format(dayLayout), storage.Day(until).Format(dayLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to count actions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Action]int)
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan action count: %w", err)
		}
		counts[models.Action(action)] = n
	}
	return counts, rows.Err()
}

// ScheduleDestruction remembers a message to delete later
func (s *DB) ScheduleDestruction(ctx context.Context, d models.Destruction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO destructions (chat_id, message_id, delete_at) VALUES (?, ?, ?)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET delete_at = excluded.delete_at`,
		d.ChatID, d.MessageID, d.DeleteAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to schedule destruction: %w", err)
	}
	return nil
}

// DueDestructions returns messages whose time has come, oldest first
func (s *DB) DueDestructions(ctx context.Context, now time.Time, limit int) ([]models.Destruction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, message_id, delete_at FROM destructions
		WHERE delete_at <= ?
		ORDER BY delete_at
		LIMIT ?`, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list destructions: %w", err)
	}
	defer rows.Close()

	var due []models.Destruction
	for rows.Next() {
		var (
			d        models.Destruction
			deleteAt int64
		)
		if err := rows.Scan(&d.ChatID, &d.MessageID, &deleteAt); err != nil {
			return nil, fmt.Errorf("failed to scan destruction: %w", err)
		}
		d.DeleteAt = fromUnix(deleteAt)
		due = append(due, d)
	}
	return due, rows.Err()
}

// DeleteDestruction forgets a scheduled message
func (s *DB) DeleteDestruction(ctx context.Context, chatID int64, messageID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM destructions WHERE chat_id = ? AND message_id = ?`,
		chatID, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete destruction: %w", err)
	}
	return nil
}

// Close closes the database
func (s *DB) Close() error {
	return s.db.Close()
}
