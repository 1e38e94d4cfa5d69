package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	dbmodels "supportbot/internal/models"
	"supportbot/internal/storage"
)

// cmdStart greets the user with the menu and registers unknown users
func (b *Bot) cmdStart(ctx context.Context, msg *models.Message) error {
	var markup models.ReplyMarkup
	if b.menu != nil && len(b.menu.Root.Buttons()) > 0 {
		markup = b.menu.Keyboard(b.menu.Root, "")
	}
	sent, err := b.sendMessageInThreadWithMarkup(ctx, msg.Chat.ID, b.cfg.HelloMsg, 0, markup)
	if err != nil {
		return err
	}

	unlock := b.userLocks.Lock(msg.From.ID)
	user, isNew, err := b.getOrNewUser(ctx, msg.From)
	if err == nil && isNew {
		err = b.db.SaveUser(ctx, user)
	}
	unlock()
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	if isNew {
		b.record(ctx, dbmodels.ActionNewUser)
	}
	b.record(ctx, dbmodels.ActionStart)
	b.archiveUserMessage(ctx, msg, user, isNew)
	b.scheduleUserMessage(ctx, msg)
	b.scheduleBotMessage(ctx, sent.Chat.ID, sent.ID)
	return nil
}

// banCommand handles /ban, /shadowban and /unban typed inside a user's topic
func (b *Bot) banCommand(ctx context.Context, msg *models.Message) error {
	if msg.MessageThreadID == 0 {
		_, err := b.sendMessageInThread(ctx, msg.Chat.ID, "Use this command inside a user's topic", 0)
		return err
	}

	user, err := b.db.GetUserByThread(ctx, msg.MessageThreadID)
	if errors.Is(err, storage.ErrNotFound) {
		_, err := b.sendMessageInThread(ctx, msg.Chat.ID, "No user is linked to this topic", msg.MessageThreadID)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to get topic owner: %w", err)
	}

	var (
		banned, shadow bool
		text           string
	)
	switch command(msg) {
	case "ban":
		banned, text = true, "🚫 The user is banned. Their messages are refused."
	case "shadowban":
		shadow, text = true, "👻 The user is shadow-banned. Their messages are silently dropped."
	default:
		text = "✅ The user is unbanned."
	}

	if err := b.db.SetBan(ctx, user.UserID, banned, shadow); err != nil {
		return fmt.Errorf("failed to update ban: %w", err)
	}
	b.logger.Info("Ban updated",
		zap.Int64("user_id", user.UserID),
		zap.Bool("banned", banned),
		zap.Bool("shadow_banned", shadow),
		zap.Int64("by", msg.From.ID),
	)

	_, err = b.sendMessageInThread(ctx, msg.Chat.ID, text, msg.MessageThreadID)
	return err
}

// sendAdminMenu shows admin actions when the bot is mentioned in the admin group
func (b *Bot) sendAdminMenu(ctx context.Context, msg *models.Message) error {
	_, err := b.sendMessageInThreadWithMarkup(ctx, msg.Chat.ID, "Choose:", msg.MessageThreadID, adminMenu())
	return err
}
