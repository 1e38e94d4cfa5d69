package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"supportbot/internal/archive"
	"supportbot/internal/archive/ch"
	"supportbot/internal/archive/gsheets"
	"supportbot/internal/bot"
	"supportbot/internal/config"
	"supportbot/internal/logging"
	"supportbot/internal/menu"
	"supportbot/internal/scheduler"
	"supportbot/internal/storage"
	"supportbot/internal/storage/cache"
	"supportbot/internal/storage/pg"
	"supportbot/internal/storage/sqlite"
	"supportbot/internal/storage/stubs"
)

// instance is one running bot with the resources it owns
type instance struct {
	cfg    config.BotConfig
	bot    *bot.Bot
	db     storage.Storage
	sheets *gsheets.Sheets
	logger *zap.Logger
}

// App represents the application
type App struct {
	config    *config.Config
	logger    *zap.Logger
	bots      []*instance
	scheduler *scheduler.Scheduler
	redis     *redis.Client
	archive   *ch.Archive // shared by all bots
	server    *http.Server
}

// New creates and initializes every configured bot. Resources opened before a
// failure are released
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{
		config:    cfg,
		logger:    logger,
		scheduler: scheduler.New(logger),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	logger.Info("Starting support bots", zap.Int("bots", len(cfg.Bots)))

	if err := a.initRedis(ctx); err != nil {
		return nil, err
	}
	if err := a.initClickHouse(ctx); err != nil {
		return nil, err
	}

	for _, bc := range cfg.Bots {
		inst, err := a.initBot(ctx, bc)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", bc.Name, err)
		}
		a.bots = append(a.bots, inst)
	}

	a.initHTTPServer()
	return a, nil
}

func (a *App) initRedis(ctx context.Context) error {
	if a.config.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.config.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	a.redis = redis.NewClient(opts)
	if err := cache.Ping(ctx, a.redis); err != nil {
		return err
	}
	a.logger.Info("Redis cache enabled", zap.String("addr", opts.Addr))
	return nil
}

func (a *App) initClickHouse(ctx context.Context) error {
	c := a.config.ClickHouse
	if !c.Enabled() {
		return nil
	}

	tlsStatus := "without TLS"
	if c.UseTLS {
		tlsStatus = "with TLS"
	}
	a.logger.Info("Connecting to ClickHouse",
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
		zap.String("database", c.Database),
		zap.String("tls", tlsStatus),
	)

	arch, err := ch.New(ctx, ch.Config{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
		UseTLS:   c.UseTLS,
	})
	if err != nil {
		return err
	}
	a.archive = arch
	if err := arch.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}
	return nil
}

// openStorage opens the store of the bot's engine and applies migrations
func openStorage(ctx context.Context, bc config.BotConfig) (storage.Storage, error) {
	var db storage.Storage
	switch bc.DBEngine {
	case config.EngineMemory:
		db = stubs.NewMockDB()
	case config.EngineSQLite:
		if err := os.MkdirAll(bc.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bot directory: %w", err)
		}
		sqliteDB, err := sqlite.Open(bc.DBURL)
		if err != nil {
			return nil, err
		}
		db = sqliteDB
	case config.EnginePostgres:
		pgDB, err := pg.NewPostgresDB(ctx, bc.DBURL)
		if err != nil {
			return nil, err
		}
		db = pgDB
	default:
		return nil, fmt.Errorf("unknown storage engine %q", bc.DBEngine)
	}

	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func (a *App) initBot(ctx context.Context, bc config.BotConfig) (_ *instance, err error) {
	logger := logging.ForBot(a.logger, bc.Name)
	inst := &instance{cfg: bc, logger: logger}
	defer func() {
		if err != nil {
			inst.close()
		}
	}()

	db, err := openStorage(ctx, bc)
	if err != nil {
		return nil, err
	}
	inst.db = db
	logger.Info("Database initialized", zap.String("engine", bc.DBEngine))

	store := db
	if a.redis != nil {
		store = cache.New(db, a.redis, bc.Name, cache.DefaultTTL, logger)
	}

	m, err := menu.Load(bc.MenuFile())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("No menu file, users get the greeting only", zap.String("path", bc.MenuFile()))
		m = nil
	case err != nil:
		return nil, err
	}

	if bc.GSheetsEnabled() {
		inst.sheets, err = gsheets.New(ctx, bc.GSheetsCredFile, bc.GSheetsFilename, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Saving messages to Google Sheets", zap.String("filename", bc.GSheetsFilename))
	}

	deps := bot.Deps{
		DB:     store,
		Menu:   m,
		Logger: logger,
	}
	var sinks []archive.Archiver
	if inst.sheets != nil {
		sinks = append(sinks, inst.sheets)
	}
	if a.archive != nil {
		sinks = append(sinks, a.archive)
		deps.Stats = a.archive
	}
	deps.Archive = archive.NewMulti(logger, sinks...)

	inst.bot, err = bot.NewBot(ctx, bc.Token, bot.Settings{
		Name:                 bc.Name,
		AdminGroupID:         bc.AdminGroupID,
		HelloMsg:             bc.HelloMsg,
		FirstReply:           bc.FirstReply,
		WebhookSecret:        bc.WebhookSecret,
		DestructUserMessages: bc.DestructUserMessages,
		DestructBotMessages:  bc.DestructBotMessages,
		StatsPeriod:          bc.StatsPeriod,
	}, deps)
	if err != nil {
		return nil, err
	}

	if err := inst.bot.RegisterJobs(a.scheduler, bc.StatsSchedule); err != nil {
		return nil, err
	}
	return inst, nil
}

// initHTTPServer initializes the HTTP server for health checks and webhooks
func (a *App) initHTTPServer() {
	relays := make([]Relay, 0, len(a.bots))
	for _, inst := range a.bots {
		relays = append(relays, inst.bot)
	}

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      NewRouter(a.config.WebhookMode, relays),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Run starts the bots and blocks until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	a.scheduler.Start()

	var wg sync.WaitGroup
	errs := make(chan error, len(a.bots))
	for _, inst := range a.bots {
		wg.Add(1)
		go func(inst *instance) {
			defer wg.Done()
			var err error
			if a.config.WebhookMode {
				inst.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
				err = inst.bot.StartWebhook(ctx, a.config.WebhookURL)
			} else {
				inst.logger.Info("Starting bot in POLLING mode")
				err = inst.bot.Start(ctx)
			}
			if err != nil {
				errs <- fmt.Errorf("bot %s: %w", inst.cfg.Name, err)
			}
		}(inst)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		a.logger.Error("Bot failed to start", zap.Error(runErr))
	}

	a.logger.Info("Shutting down...")
	cancel()
	wg.Wait()
	shutdownErr := a.Shutdown()
	return errors.Join(runErr, shutdownErr)
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("Scheduled jobs did not finish in time", zap.Error(err))
	}

	err := a.close()
	a.logger.Info("Shutdown complete")
	return err
}

// close releases what the bot owns. The shared archive is closed by the App
func (i *instance) close() error {
	var errs []error
	if i.sheets != nil {
		errs = append(errs, i.sheets.Close())
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			i.logger.Error("Error closing database", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// close releases stores and archives
func (a *App) close() error {
	var errs []error
	for _, inst := range a.bots {
		errs = append(errs, inst.close())
	}
	if a.archive != nil {
		errs = append(errs, a.archive.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
