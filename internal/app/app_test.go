package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"supportbot/internal/config"
)

func TestNew_BadRedisURL(t *testing.T) {
	cfg := &config.Config{Port: "0", RedisURL: "bad://"}

	var err error
	require.NotPanics(t, func() {
		_, err = New(context.Background(), cfg, zap.NewNop())
	})
	assert.ErrorContains(t, err, "invalid REDIS_URL")
}

func TestNew_BrokenMenu(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "menu.toml"), []byte("[faq\nlabel ="), 0o644))

	cfg := &config.Config{
		Port: "0",
		Bots: []config.BotConfig{{
			Name:     "SUPPORT",
			Dir:      dir,
			Token:    "123:abc",
			DBEngine: config.EngineMemory,
		}},
	}

	var (
		a   *App
		err error
	)
	require.NotPanics(t, func() {
		a, err = New(context.Background(), cfg, zap.NewNop())
	})
	assert.ErrorContains(t, err, "bot SUPPORT")
	assert.Nil(t, a)
}
