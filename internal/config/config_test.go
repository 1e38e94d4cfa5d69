package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setMinimalEnv configures one valid bot named SUPPORT
func setMinimalEnv(t *testing.T) {
	t.Setenv("BOTS_ENABLED", "SUPPORT")
	t.Setenv("SHARED_DIR", "/data")
	t.Setenv("SUPPORT_TOKEN", "123:abc")
	t.Setenv("SUPPORT_ADMIN_GROUP_ID", "-1001234567890")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.SharedDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join("/data", "support_bot.log"), cfg.LogFile)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.WebhookMode)
	assert.False(t, cfg.ClickHouse.Enabled())
	assert.Empty(t, cfg.RedisURL)

	require.Len(t, cfg.Bots, 1)
	bc := cfg.Bots[0]
	assert.Equal(t, "SUPPORT", bc.Name)
	assert.Equal(t, filepath.Join("/data", "SUPPORT"), bc.Dir)
	assert.Equal(t, int64(-1001234567890), bc.AdminGroupID)
	assert.Equal(t, defaultHelloMsg+defaultHelloPS, bc.HelloMsg)
	assert.Equal(t, defaultFirstReply, bc.FirstReply)
	assert.Equal(t, EngineSQLite, bc.DBEngine)
	assert.Equal(t, filepath.Join("/data", "SUPPORT", "db.sqlite"), bc.DBURL)
	assert.Equal(t, filepath.Join("/data", "SUPPORT", "menu.toml"), bc.MenuFile())
	assert.False(t, bc.GSheetsEnabled())
	assert.Zero(t, bc.DestructUserMessages)
	assert.Zero(t, bc.DestructBotMessages)
	assert.Equal(t, defaultStatsSchedule, bc.StatsSchedule)
	assert.Equal(t, 7*24*time.Hour, bc.StatsPeriod)
}

func TestLoadFromEnv_FullBot(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("BOTS_ENABLED", " SUPPORT, ,SALES ")
	t.Setenv("SALES_TOKEN", "456:def")
	t.Setenv("SALES_ADMIN_GROUP_ID", "-100987")
	t.Setenv("SALES_HELLO_MSG", "Hi")
	t.Setenv("SALES_HELLO_PS", "")
	t.Setenv("SALES_DB_ENGINE", "postgres")
	t.Setenv("SALES_DB_URL", "postgres://u:p@db/sales")
	t.Setenv("SALES_SAVE_MESSAGES_GSHEETS_CRED_FILE", "cred.json")
	t.Setenv("SALES_SAVE_MESSAGES_GSHEETS_FILENAME", "Sales log")
	t.Setenv("SALES_DESTRUCT_USER_MESSAGES_FOR_USER", "1")
	t.Setenv("SALES_DESTRUCT_BOT_MESSAGES_FOR_USER", "47")
	t.Setenv("SALES_STATS_SCHEDULE", "off")
	t.Setenv("LOG_FILE", "-")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CLICKHOUSE_HOST", "ch")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.Bots, 2)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.True(t, cfg.ClickHouse.Enabled())
	assert.Equal(t, 9000, cfg.ClickHouse.Port)
	assert.Equal(t, "default", cfg.ClickHouse.Database)

	bc, ok := cfg.Bot("SALES")
	require.True(t, ok)
	assert.Equal(t, "Hi", bc.HelloMsg)
	assert.Equal(t, EnginePostgres, bc.DBEngine)
	assert.Equal(t, "postgres://u:p@db/sales", bc.DBURL)
	assert.True(t, bc.GSheetsEnabled())
	assert.Equal(t, filepath.Join("/data", "SALES", "cred.json"), bc.GSheetsCredFile)
	assert.Equal(t, time.Hour, bc.DestructUserMessages)
	assert.Equal(t, 47*time.Hour, bc.DestructBotMessages)
	assert.Empty(t, bc.StatsSchedule)

	_, ok = cfg.Bot("MISSING")
	assert.False(t, ok)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no bots", map[string]string{"BOTS_ENABLED": " , "}},
		{"no token", map[string]string{"SUPPORT_TOKEN": ""}},
		{"no admin group", map[string]string{"SUPPORT_ADMIN_GROUP_ID": ""}},
		{"bad admin group", map[string]string{"SUPPORT_ADMIN_GROUP_ID": "group"}},
		{"unknown engine", map[string]string{"SUPPORT_DB_ENGINE": "mongo"}},
		{"postgres without url", map[string]string{"SUPPORT_DB_ENGINE": "postgres"}},
		{"destruct too long", map[string]string{"SUPPORT_DESTRUCT_USER_MESSAGES_FOR_USER": "48"}},
		{"destruct zero", map[string]string{"SUPPORT_DESTRUCT_BOT_MESSAGES_FOR_USER": "0"}},
		{"destruct not a number", map[string]string{"SUPPORT_DESTRUCT_BOT_MESSAGES_FOR_USER": "day"}},
		{"bad cron", map[string]string{"SUPPORT_STATS_SCHEDULE": "mondays"}},
		{"bad period", map[string]string{"SUPPORT_STATS_PERIOD_DAYS": "0"}},
		{"webhook without url", map[string]string{"WEBHOOK_MODE": "true", "SUPPORT_WEBHOOK_SECRET": "s3cret"}},
		{"webhook without secret", map[string]string{"WEBHOOK_MODE": "true", "WEBHOOK_URL": "https://bots.example.com"}},
		{"bad clickhouse port", map[string]string{"CLICKHOUSE_HOST": "ch", "CLICKHOUSE_PORT": "native"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMinimalEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadFromEnv_Webhook(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("WEBHOOK_MODE", "true")
	t.Setenv("WEBHOOK_URL", "https://bots.example.com/")
	t.Setenv("SUPPORT_WEBHOOK_SECRET", "s3cret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.WebhookMode)
	assert.Equal(t, "https://bots.example.com", cfg.WebhookURL)
	assert.Equal(t, "s3cret", cfg.Bots[0].WebhookSecret)
}
