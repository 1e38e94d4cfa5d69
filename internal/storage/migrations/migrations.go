// Package migrations embeds the SQL schema of every store and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql clickhouse/*.sql
var FS embed.FS

var dirs = map[goose.Dialect]string{
	goose.DialectSQLite3:    "sqlite",
	goose.DialectPostgres:   "postgres",
	goose.DialectClickHouse: "clickhouse",
}

// Dir returns the directory holding migrations of the dialect, relative to this package
func Dir(dialect goose.Dialect) (string, error) {
	dir, ok := dirs[dialect]
	if !ok {
		return "", fmt.Errorf("no migrations for dialect %q", dialect)
	}
	return dir, nil
}

// NewProvider returns a goose provider over the embedded migrations of the dialect
func NewProvider(db *sql.DB, dialect goose.Dialect) (*goose.Provider, error) {
	dir, err := Dir(dialect)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(FS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s migrations: %w", dir, err)
	}
	return goose.NewProvider(dialect, db, sub)
}

// Up applies all pending migrations
func Up(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	provider, err := NewProvider(db, dialect)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run %s migrations: %w", dialect, err)
	}
	return nil
}
