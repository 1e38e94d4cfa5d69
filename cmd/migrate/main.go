package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"

	"supportbot/internal/archive/ch"
	"supportbot/internal/config"
	"supportbot/internal/storage/migrations"
	"supportbot/internal/storage/pg"
	"supportbot/internal/storage/sqlite"
)

const usage = `Usage:
  migrate [up|down|status|version] [BOT_NAME|clickhouse]
  migrate create <sqlite|postgres|clickhouse> <migration_name>`

// target is one database with its migrations
type target struct {
	name    string
	dialect goose.Dialect
	db      *sql.DB
	close   func() error
}

func main() {
	// Load .env file if it exists
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	// Get command from arguments (default to "up")
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "create" {
		if len(os.Args) < 4 {
			log.Fatal(usage)
		}
		create(os.Args[2], os.Args[3])
		return
	}

	only := ""
	if len(os.Args) > 2 {
		only = os.Args[2]
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	targets, err := openTargets(ctx, cfg, only)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		for _, t := range targets {
			t.close()
		}
	}()
	if len(targets) == 0 {
		log.Fatalf("Nothing to migrate for %q", only)
	}

	for _, t := range targets {
		if err := run(ctx, command, t); err != nil {
			log.Fatalf("%s: %v", t.name, err)
		}
	}
}

// openTargets connects to the SQL stores of the bots and to ClickHouse. Memory
// stores have nothing to migrate
func openTargets(ctx context.Context, cfg *config.Config, only string) ([]target, error) {
	var targets []target
	for _, bc := range cfg.Bots {
		if only != "" && only != bc.Name {
			continue
		}
		switch bc.DBEngine {
		case config.EngineSQLite:
			if err := os.MkdirAll(bc.Dir, 0o755); err != nil {
				return targets, err
			}
			db, err := sqlite.Open(bc.DBURL)
			if err != nil {
				return targets, fmt.Errorf("%s: %w", bc.Name, err)
			}
			targets = append(targets, target{bc.Name, goose.DialectSQLite3, db.SQL(), db.Close})
		case config.EnginePostgres:
			db, err := pg.NewPostgresDB(ctx, bc.DBURL)
			if err != nil {
				return targets, fmt.Errorf("%s: %w", bc.Name, err)
			}
			sqlDB := db.SQL()
			targets = append(targets, target{bc.Name, goose.DialectPostgres, sqlDB, func() error {
				sqlDB.Close()
				return db.Close()
			}})
		}
	}

	c := cfg.ClickHouse
	if c.Enabled() && (only == "" || only == "clickhouse") {
		arch, err := ch.New(ctx, ch.Config{
			Host:     c.Host,
			Port:     c.Port,
			Database: c.Database,
			User:     c.User,
			Password: c.Password,
			UseTLS:   c.UseTLS,
		})
		if err != nil {
			return targets, err
		}
		db := arch.SQL()
		targets = append(targets, target{"clickhouse", goose.DialectClickHouse, db, func() error {
			db.Close()
			return arch.Close()
		}})
	}
	return targets, nil
}

func run(ctx context.Context, command string, t target) error {
	provider, err := migrations.NewProvider(t.db, t.dialect)
	if err != nil {
		return err
	}

	log.Printf("Running migrations on %s: %s", t.name, command)
	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Printf("Migrations completed successfully (%d applied)", len(results))
	case "down":
		if _, err := provider.Down(ctx); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		log.Println("Rollback completed successfully")
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		for _, s := range statuses {
			log.Printf("  %-30s %s", filepath.Base(s.Source.Path), s.State)
		}
	case "version":
		version, err := provider.GetDBVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		log.Printf("Current migration version: %d", version)
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
	return nil
}

// create writes an empty SQL migration into the source tree
func create(dialect, name string) {
	dirs := map[string]goose.Dialect{
		"sqlite":     goose.DialectSQLite3,
		"postgres":   goose.DialectPostgres,
		"clickhouse": goose.DialectClickHouse,
	}
	d, ok := dirs[dialect]
	if !ok {
		log.Fatal(usage)
	}
	dir, err := migrations.Dir(d)
	if err != nil {
		log.Fatal(err)
	}

	// Set migrations directory
	migrationsDir := filepath.Join("internal", "storage", "migrations", dir)
	if err := goose.Create(nil, migrationsDir, name, "sql"); err != nil {
		log.Fatalf("Failed to create migration: %v", err)
	}
	log.Printf("Created migration: %s", name)
}
