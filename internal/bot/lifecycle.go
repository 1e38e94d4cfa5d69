package bot

import (
	"context"
	"errors"
	"net/http"

	tgbot "github.com/go-telegram/bot"
	"go.uber.org/zap"
)

var errNoClient = errors.New("bot has no Telegram client")

// WebhookPath is the route receiving updates of the named bot
func WebhookPath(name string) string {
	return "/telegram-webhook/" + name
}

// Start runs the bot in polling mode until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	if b.client == nil {
		return errNoClient
	}
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	if _, err := b.client.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	b.logger.Info("Bot started successfully. Waiting for updates...")
	b.client.Start(ctx)
	return nil
}

// StartWebhook registers the webhook under baseURL and processes incoming
// updates until ctx is cancelled. Updates arrive through WebhookHandler
func (b *Bot) StartWebhook(ctx context.Context, baseURL string) error {
	if b.client == nil {
		return errNoClient
	}
	webhookURL := baseURL + WebhookPath(b.cfg.Name)
	b.logger.Info("Setting up webhook", zap.String("webhook_url", webhookURL))

	_, err := b.client.SetWebhook(ctx, &tgbot.SetWebhookParams{
		URL:            webhookURL,
		MaxConnections: 40,
		SecretToken:    b.cfg.WebhookSecret,
	})
	if err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", webhookURL))
		return err
	}

	// Get webhook info to verify
	info, err := b.client.GetWebhookInfo(ctx)
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set successfully",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}

	b.logger.Info("Bot configured for webhook mode")
	b.client.StartWebhook(ctx)
	return nil
}

// WebhookHandler returns the HTTP handler feeding webhook updates to the bot
func (b *Bot) WebhookHandler() http.HandlerFunc {
	if b.client == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
	return b.client.WebhookHandler()
}
