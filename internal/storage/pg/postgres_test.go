package pg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgresTC "github.com/testcontainers/testcontainers-go/modules/postgres"

	"supportbot/internal/storage"
	"supportbot/internal/storage/storagetest"
)

// setupTestDB starts one Postgres container for the whole test and returns a
// constructor of clean, migrated databases
func setupTestDB(t *testing.T) func(t *testing.T) storage.Storage {
	ctx := context.Background()

	container, err := postgresTC.Run(ctx,
		"postgres:16-alpine",
		postgresTC.WithDatabase("supportbot"),
		postgresTC.WithUsername("supportbot"),
		postgresTC.WithPassword("supportbot"),
		postgresTC.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start Postgres container")
	t.Cleanup(func() { container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return func(t *testing.T) storage.Storage {
		db, err := NewPostgresDB(ctx, url)
		require.NoError(t, err, "Failed to connect to Postgres")
		t.Cleanup(func() { db.Close() })

		require.NoError(t, db.Initialize(ctx), "Failed to run migrations")
		_, err = db.pool.Exec(ctx, `TRUNCATE tgusers, action_counters, destructions`)
		require.NoError(t, err)
		return db
	}
}

func TestPostgresDB(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	storagetest.Run(t, setupTestDB(t))
}

func TestPostgresDB_InitializeReleasesConnections(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()
	db := setupTestDB(t)(t).(*DB)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Initialize(ctx))
	}
	assert.Zero(t, db.pool.Stat().AcquiredConns())

	_, err := db.GetUser(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
