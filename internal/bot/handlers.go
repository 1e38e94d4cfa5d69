package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"supportbot/internal/menu"
	"supportbot/internal/storage"
	"supportbot/internal/telegram"
)

// Handler names, used in logs and by the error policy
const (
	actionStart            = "cmd_start"
	actionUserMessage      = "user_message"
	actionAdminMessage     = "admin_message"
	actionAddedToGroup     = "added_to_group"
	actionGroupCreated     = "group_chat_created"
	actionMention          = "mention_in_admin_group"
	actionBanCommand       = "ban_command"
	actionBroadcastMessage = "admin_broadcast_ask_confirm"
	actionUserButton       = "user_btn_handler"
	actionAdminButton      = "admin_btn_handler"
)

const (
	textUserBannedBot = "The user banned the bot"
	textNoTopicRights = "New user <b>%s</b> writes to the bot, but the bot has not enough rights to create a topic." +
		"\n\n❗ Make the bot admin, and give it a \"Manage topics\" permission."
)

func (b *Bot) onUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	b.HandleUpdate(ctx, update)
}

// HandleUpdate routes a single update to its handler
func (b *Bot) HandleUpdate(ctx context.Context, update *models.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}

	if msg.Chat.Type == models.ChatTypePrivate {
		switch {
		case !isCommand(msg):
			b.run(ctx, actionUserMessage, msg, func() error { return b.userMessage(ctx, msg) })
		case command(msg) == "start":
			b.run(ctx, actionStart, msg, func() error { return b.cmdStart(ctx, msg) })
		}
		return
	}

	if b.addedToGroup(msg) {
		b.run(ctx, actionAddedToGroup, msg, func() error { return b.groupHello(ctx, msg.Chat) })
		return
	}
	if msg.GroupChatCreated || msg.SupergroupChatCreated {
		b.run(ctx, actionGroupCreated, msg, func() error { return b.groupHello(ctx, msg.Chat) })
		return
	}

	if msg.Chat.ID != b.cfg.AdminGroupID {
		return
	}

	// Check if the admin is in a conversation
	if state, ok := b.getState(msg.From.ID); ok {
		switch {
		case state.Step == -1:
			b.clearState(msg.From.ID)
		case isCommand(msg):
			// Any command cancels an ongoing conversation
			b.clearState(msg.From.ID)
		case b.isAdminReply(msg):
			// topic replies are never taken for a broadcast
		default:
			if b.handleConversation(ctx, msg, state) {
				return
			}
		}
	}

	switch {
	case isCommand(msg):
		switch command(msg) {
		case "ban", "shadowban", "unban":
			b.run(ctx, actionBanCommand, msg, func() error { return b.banCommand(ctx, msg) })
		}
	case b.isAdminReply(msg):
		b.run(ctx, actionAdminMessage, msg, func() error { return b.adminMessage(ctx, msg) })
	case b.mentionsBot(msg):
		b.run(ctx, actionMention, msg, func() error { return b.sendAdminMenu(ctx, msg) })
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *models.CallbackQuery) {
	// Telegram drops answers to old queries, and a broadcast takes a while
	b.answerCallback(ctx, query)

	msg := query.Message.Message
	if msg == nil {
		return
	}

	switch {
	case strings.HasPrefix(query.Data, menu.CallbackPrefix) && msg.Chat.Type == models.ChatTypePrivate:
		b.run(ctx, actionUserButton, msg, func() error { return b.userButton(ctx, query, msg) })
	case strings.HasPrefix(query.Data, adminCallbackPrefix) && msg.Chat.ID == b.cfg.AdminGroupID:
		b.run(ctx, actionAdminButton, msg, func() error { return b.adminButton(ctx, query, msg) })
	}
}

// Answer the callback query to remove loading state
func (b *Bot) answerCallback(ctx context.Context, query *models.CallbackQuery) {
	_, err := b.api.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{CallbackQueryID: query.ID})
	if err != nil {
		b.logger.Debug("Failed to answer callback query", zap.Error(err))
	}
}

// run logs the handler, recovers its panics and applies the error policy
func (b *Bot) run(ctx context.Context, action string, msg *models.Message, fn func() error) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handler",
				zap.String("action", action),
				zap.Any("panic", r),
			)
		}
	}()

	b.logger.Info(action,
		zap.Int64("chat_id", msg.Chat.ID),
		zap.Int("message_id", msg.ID),
	)

	if err := fn(); err != nil {
		b.handleError(ctx, action, msg, err)
	}
}

// handleError is the single error policy of all handlers
func (b *Bot) handleError(ctx context.Context, action string, msg *models.Message, err error) {
	switch {
	case telegram.IsForbidden(err):
		b.logger.Info("report_user_ban", zap.String("action", action), zap.Error(err))
		if action != actionAdminMessage {
			return
		}
		if _, lookupErr := b.db.GetUserByThread(ctx, msg.MessageThreadID); lookupErr != nil {
			if !errors.Is(lookupErr, storage.ErrNotFound) {
				b.logger.Error("Failed to look up topic owner", zap.Error(lookupErr))
			}
			return
		}
		if _, err := b.sendMessageInThread(ctx, b.cfg.AdminGroupID, textUserBannedBot, msg.MessageThreadID); err != nil {
			b.logger.Error("Failed to report user ban", zap.Error(err))
		}

	case telegram.IsNotEnoughRightsForTopic(err):
		b.logger.Info("report_cant_create_topic", zap.String("action", action), zap.Error(err))
		who := shortUserInfo(fullName(msg.From), msg.From.Username, msg.From.ID)
		b.sendToAdmins(ctx, fmt.Sprintf(textNoTopicRights, who))

	default:
		b.logger.Error("Handler failed",
			zap.String("action", action),
			zap.Error(err),
			zap.Int64("chat_id", msg.Chat.ID),
		)
	}
}
