package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"supportbot/internal/scheduler"
)

// Storage engines of a bot
const (
	EngineMemory   = "memory"
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

const (
	defaultHelloMsg   = "Hello! Write your message"
	defaultHelloPS    = "\n\n<i>The bot is created by @moladzbel</i>"
	defaultFirstReply = "We have received your message. We'll get back to you as soon as we can. " +
		"Please don't delete the chat so we can send you a reply."
	defaultStatsSchedule = "0 9 * * 1"

	// Telegram lets bots delete messages younger than 48 hours
	maxDestructHours = 47
)

// Config holds the application configuration
type Config struct {
	Bots []BotConfig

	SharedDir string
	LogLevel  string
	LogFile   string // empty when file logging is disabled

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // Public base URL for webhooks (required if WebhookMode is true)
	Port        string

	RedisURL string // empty disables the Redis cache

	ClickHouse ClickHouseConfig
}

// ClickHouseConfig holds the message archive connection. An empty Host disables it
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseTLS   bool
}

// Enabled reports whether the ClickHouse archive is configured
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// BotConfig is the configuration of one bot instance, read from <NAME>_ variables
type BotConfig struct {
	Name          string
	Dir           string
	Token         string
	AdminGroupID  int64
	HelloMsg      string // with the postscript appended
	FirstReply    string
	WebhookSecret string

	DBEngine string
	DBURL    string

	GSheetsCredFile string
	GSheetsFilename string

	// zero disables destruction
	DestructUserMessages time.Duration
	DestructBotMessages  time.Duration

	StatsSchedule string // empty when the digest is off
	StatsPeriod   time.Duration
}

// GSheetsEnabled reports whether messages are saved to Google Sheets
func (b BotConfig) GSheetsEnabled() bool {
	return b.GSheetsCredFile != "" && b.GSheetsFilename != ""
}

// MenuFile returns the path of the bot's menu
func (b BotConfig) MenuFile() string {
	return filepath.Join(b.Dir, "menu.toml")
}

// LoadDotEnv loads .env into the environment unless running in Docker
func LoadDotEnv() error {
	if os.Getenv("IS_DOCKER") != "" {
		return nil
	}
	return godotenv.Load()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		SharedDir: envOr("SHARED_DIR", "./shared"),
		LogLevel:  envOr("LOG_LEVEL", "info"),
		Port:      envOr("PORT", "8080"),
		RedisURL:  os.Getenv("REDIS_URL"),
	}

	config.LogFile = envOr("LOG_FILE", filepath.Join(config.SharedDir, "support_bot.log"))
	if config.LogFile == "-" {
		config.LogFile = ""
	}

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = strings.TrimRight(os.Getenv("WEBHOOK_URL"), "/")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}

	ch, err := loadClickHouse()
	if err != nil {
		return nil, err
	}
	config.ClickHouse = ch

	names := os.Getenv("BOTS_ENABLED")
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		bc, err := loadBot(name, config.SharedDir, config.WebhookMode)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", name, err)
		}
		config.Bots = append(config.Bots, bc)
	}
	if len(config.Bots) == 0 {
		return nil, fmt.Errorf("BOTS_ENABLED is required (comma-separated list of bot names)")
	}

	return config, nil
}

// Bot returns the configuration of the named bot
func (c *Config) Bot(name string) (BotConfig, bool) {
	for _, b := range c.Bots {
		if b.Name == name {
			return b, true
		}
	}
	return BotConfig{}, false
}

func loadClickHouse() (ClickHouseConfig, error) {
	ch := ClickHouseConfig{Host: os.Getenv("CLICKHOUSE_HOST")}
	if ch.Host == "" {
		return ch, nil
	}

	portStr := os.Getenv("CLICKHOUSE_PORT")
	if portStr == "" {
		ch.Port = 9000 // Default ClickHouse native port
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return ch, fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		ch.Port = port
	}

	ch.Database = envOr("CLICKHOUSE_DATABASE", "default")
	ch.User = envOr("CLICKHOUSE_USER", "default")
	ch.Password = os.Getenv("CLICKHOUSE_PASSWORD")
	ch.UseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	return ch, nil
}

func loadBot(name, sharedDir string, webhookMode bool) (BotConfig, error) {
	env := func(key string) string {
		return os.Getenv(name + "_" + key)
	}
	envOrDefault := func(key, def string) string {
		if v, ok := os.LookupEnv(name + "_" + key); ok {
			return v
		}
		return def
	}

	bc := BotConfig{
		Name:          name,
		Dir:           filepath.Join(sharedDir, name),
		Token:         env("TOKEN"),
		FirstReply:    envOrDefault("FIRST_REPLY", defaultFirstReply),
		WebhookSecret: env("WEBHOOK_SECRET"),
		DBEngine:      envOrDefault("DB_ENGINE", EngineSQLite),
	}
	bc.HelloMsg = envOrDefault("HELLO_MSG", defaultHelloMsg) + envOrDefault("HELLO_PS", defaultHelloPS)

	if bc.Token == "" {
		return bc, fmt.Errorf("%s_TOKEN is required", name)
	}
	if webhookMode && bc.WebhookSecret == "" {
		return bc, fmt.Errorf("%s_WEBHOOK_SECRET is required when WEBHOOK_MODE is true", name)
	}

	groupStr := env("ADMIN_GROUP_ID")
	if groupStr == "" {
		return bc, fmt.Errorf("%s_ADMIN_GROUP_ID is required", name)
	}
	groupID, err := strconv.ParseInt(strings.TrimSpace(groupStr), 10, 64)
	if err != nil {
		return bc, fmt.Errorf("invalid %s_ADMIN_GROUP_ID: %s", name, groupStr)
	}
	bc.AdminGroupID = groupID

	switch bc.DBEngine {
	case EngineMemory:
	case EngineSQLite:
		bc.DBURL = envOrDefault("DB_URL", filepath.Join(bc.Dir, "db.sqlite"))
	case EnginePostgres:
		bc.DBURL = env("DB_URL")
		if bc.DBURL == "" {
			return bc, fmt.Errorf("%s_DB_URL is required for the postgres engine", name)
		}
	default:
		return bc, fmt.Errorf("unknown %s_DB_ENGINE: %s", name, bc.DBEngine)
	}

	if cred := env("SAVE_MESSAGES_GSHEETS_CRED_FILE"); cred != "" {
		bc.GSheetsCredFile = filepath.Join(bc.Dir, cred)
	}
	bc.GSheetsFilename = env("SAVE_MESSAGES_GSHEETS_FILENAME")

	if bc.DestructUserMessages, err = destructHours(name, "DESTRUCT_USER_MESSAGES_FOR_USER"); err != nil {
		return bc, err
	}
	if bc.DestructBotMessages, err = destructHours(name, "DESTRUCT_BOT_MESSAGES_FOR_USER"); err != nil {
		return bc, err
	}

	bc.StatsSchedule = envOrDefault("STATS_SCHEDULE", defaultStatsSchedule)
	if bc.StatsSchedule == "off" {
		bc.StatsSchedule = ""
	} else if err := scheduler.Validate(bc.StatsSchedule); err != nil {
		return bc, fmt.Errorf("invalid %s_STATS_SCHEDULE: %w", name, err)
	}

	days, err := strconv.Atoi(envOrDefault("STATS_PERIOD_DAYS", "7"))
	if err != nil || days < 1 {
		return bc, fmt.Errorf("invalid %s_STATS_PERIOD_DAYS: must be a positive number of days", name)
	}
	bc.StatsPeriod = time.Duration(days) * 24 * time.Hour

	return bc, nil
}

func destructHours(name, key string) (time.Duration, error) {
	v := os.Getenv(name + "_" + key)
	if v == "" {
		return 0, nil
	}
	hours, err := strconv.Atoi(v)
	if err != nil || hours < 1 || hours > maxDestructHours {
		return 0, fmt.Errorf("%s_%s must be between 1 and %d (hours)", name, key, maxDestructHours)
	}
	return time.Duration(hours) * time.Hour, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
