package ch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"supportbot/internal/archive"
	"supportbot/internal/models"
)

// setupTestArchive creates a test ClickHouse instance using testcontainers
func setupTestArchive(t *testing.T) (*Archive, func()) {
	ctx := context.Background()

	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	a, err := New(ctx, Config{Host: host, Port: port.Int(), Database: "default", User: "default"})
	require.NoError(t, err, "Failed to connect to ClickHouse")

	require.NoError(t, a.Initialize(ctx), "Failed to run migrations")

	cleanup := func() {
		a.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return a, cleanup
}

func TestArchive_SaveAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	a, cleanup := setupTestArchive(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	userMsg := archive.NewEntry("SUPPORT", now, archive.FromUser)
	userMsg.Type = models.MsgRegular
	userMsg.UserID = 42
	userMsg.ThreadID = 7
	userMsg.Who = "<b>Jane</b> (id 42)"
	userMsg.ToWhom = "support bot"
	userMsg.Text = "Hello"
	userMsg.Highlight = true
	require.NoError(t, a.Save(ctx, userMsg))

	reply := archive.NewEntry("SUPPORT", now, archive.FromAdmin)
	reply.Type = models.MsgDocument
	reply.UserID = 42
	reply.Filename = "invoice.pdf"
	require.NoError(t, a.Save(ctx, reply))

	// Another bot sharing the table
	other := archive.NewEntry("OTHER", now, archive.FromUser)
	require.NoError(t, a.Save(ctx, other))

	counts, err := a.CountByDirection(ctx, "SUPPORT", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[archive.Direction]int{archive.FromUser: 1, archive.FromAdmin: 1}, counts)

	counts, err = a.CountByDirection(ctx, "SUPPORT", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestArchive_InitializeTwice(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	a, cleanup := setupTestArchive(t)
	defer cleanup()

	assert.NoError(t, a.Initialize(context.Background()))
}
