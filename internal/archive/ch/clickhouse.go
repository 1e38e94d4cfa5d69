// Package ch archives messages in ClickHouse.
package ch

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"

	"supportbot/internal/archive"
	"supportbot/internal/storage/migrations"
)

// Config holds connection settings
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseTLS   bool
}

func (c Config) options() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", c.Host, c.Port)},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.User,
			Password: c.Password,
		},
	}
	if c.UseTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}
	return options
}

// Archive writes entries to the messages table
type Archive struct {
	cfg  Config
	conn clickhouse.Conn
}

// New connects to ClickHouse and checks the connection
func New(ctx context.Context, cfg Config) (*Archive, error) {
	conn, err := clickhouse.Open(cfg.options())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Archive{cfg: cfg, conn: conn}, nil
}

// SQL opens a database/sql handle for migration tooling. The caller closes it
func (a *Archive) SQL() *sql.DB {
	return clickhouse.OpenDB(a.cfg.options())
}

// Initialize applies pending migrations
func (a *Archive) Initialize(ctx context.Context) error {
	db := a.SQL()
	defer db.Close()
	return migrations.Up(ctx, db, goose.DialectClickHouse)
}

// Save inserts the entry
func (a *Archive) Save(ctx context.Context, e archive.Entry) error {
	err := a.conn.Exec(ctx, `
		INSERT INTO messages (id, bot, at, direction, type, user_id, thread_id, who, to_whom,
			text, filename, forwarded, subject, new_user)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Bot, e.At, string(e.Direction), string(e.Type), e.UserID, int32(e.ThreadID),
		e.Who, e.ToWhom, e.Text, e.Filename, e.Forwarded, e.Subject, e.Highlight)
	if err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// CountByDirection returns the number of archived messages of the bot since the given time
func (a *Archive) CountByDirection(ctx context.Context, bot string, since time.Time) (map[archive.Direction]int, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT direction, count() FROM messages
		WHERE bot = ? AND at >= ?
		GROUP BY direction`, bot, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[archive.Direction]int)
	for rows.Next() {
		var (
			direction string
			n         uint64
		)
		if err := rows.Scan(&direction, &n); err != nil {
			return nil, fmt.Errorf("failed to scan message count: %w", err)
		}
		counts[archive.Direction(direction)] = int(n)
	}
	return counts, rows.Err()
}

// Close closes the connection
func (a *Archive) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
