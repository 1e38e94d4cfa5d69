package bot

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"supportbot/internal/archive"
	"supportbot/internal/menu"
	"supportbot/internal/storage"
	"supportbot/internal/telegram"
)

// Telegram allows about 30 messages per second to different chats
const defaultBroadcastRate = 25

// Deps are the collaborators of a bot besides the Telegram client
type Deps struct {
	DB      storage.Storage
	Archive archive.Archiver // optional
	Stats   MessageCounter   // optional
	Menu    *menu.Menu       // optional
	Logger  *zap.Logger
}

// NewBot creates a Telegram client for the token and a bot on top of it
func NewBot(ctx context.Context, token string, cfg Settings, deps Deps) (*Bot, error) {
	b := newBot(nil, cfg, deps)

	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(b.onUpdate),
		tgbot.WithErrorsHandler(func(err error) {
			b.logger.Error("Telegram client error", zap.Error(err))
		}),
	}
	if cfg.WebhookSecret != "" {
		opts = append(opts, tgbot.WithWebhookSecretToken(cfg.WebhookSecret))
	}

	client, err := tgbot.New(token, opts...)
	if err != nil {
		b.logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	b.api = client
	b.client = client

	if err := b.loadSelf(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func newBot(api telegram.API, cfg Settings, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	arch := deps.Archive
	if arch == nil {
		arch = archive.NewMulti(logger)
	}

	return &Bot{
		api:            api,
		db:             deps.DB,
		archive:        arch,
		stats:          deps.Stats,
		menu:           deps.Menu,
		cfg:            cfg,
		logger:         logger,
		states:         make(map[int64]*ConversationState),
		broadcastLimit: defaultBroadcastRate,
		now:            time.Now,
	}
}

// loadSelf remembers the bot's own account, needed to recognize replies and mentions
func (b *Bot) loadSelf(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot account: %w", err)
	}
	b.self = me

	b.logger.Info("Bot created",
		zap.String("bot_username", me.Username),
		zap.Int64("admin_group_id", b.cfg.AdminGroupID),
	)
	return nil
}

// Name returns the configured bot name
func (b *Bot) Name() string {
	return b.cfg.Name
}

// Username returns the bot's Telegram username
func (b *Bot) Username() string {
	if b.self == nil {
		return ""
	}
	return b.self.Username
}

func (b *Bot) newLimiter() *rate.Limiter {
	return rate.NewLimiter(b.broadcastLimit, 1)
}
