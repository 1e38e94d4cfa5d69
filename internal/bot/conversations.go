package bot

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	dbmodels "supportbot/internal/models"
	"supportbot/internal/telegram"
)

// BroadcastReport sums up a finished broadcast
type BroadcastReport struct {
	Sent    int
	Blocked int
	Failed  int
}

func (r BroadcastReport) String() string {
	return fmt.Sprintf("Broadcast finished ✅\n\nSent: %d\nBlocked the bot: %d\nFailed: %d", r.Sent, r.Blocked, r.Failed)
}

func (b *Bot) getState(userID int64) (*ConversationState, bool) {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()
	state, ok := b.states[userID]
	return state, ok
}

func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

func (b *Bot) clearState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}

// handleConversation continues a multi-step admin action. It reports whether
// the message was consumed
func (b *Bot) handleConversation(ctx context.Context, msg *models.Message, state *ConversationState) bool {
	switch state.Command {
	case "broadcast":
		if state.Step != 1 {
			return false
		}
		b.run(ctx, actionBroadcastMessage, msg, func() error {
			return b.askBroadcastConfirm(ctx, msg, state)
		})
		return true
	}
	return false
}

// askBroadcastConfirm remembers the message to broadcast and asks for confirmation
func (b *Bot) askBroadcastConfirm(ctx context.Context, msg *models.Message, state *ConversationState) error {
	users, err := b.db.ListUsers(ctx, false)
	if err != nil {
		b.clearState(msg.From.ID)
		return fmt.Errorf("failed to list subscribers: %w", err)
	}

	b.statesMu.Lock()
	state.Data["chat_id"] = msg.Chat.ID
	state.Data["message_id"] = msg.ID
	state.Step = 2
	b.statesMu.Unlock()

	text := fmt.Sprintf("Broadcast this message to %d subscriber(s)?", len(users))
	keyboard := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "✅ Send", CallbackData: btnBroadcastSend},
			{Text: "❌ Cancel", CallbackData: btnBroadcastCancel},
		}},
	}
	_, err = b.sendMessageInThreadWithMarkup(ctx, msg.Chat.ID, text, msg.MessageThreadID, keyboard)
	return err
}

// finishBroadcast sends or drops the pending broadcast of the admin who pressed the button
func (b *Bot) finishBroadcast(ctx context.Context, query *models.CallbackQuery, msg *models.Message) error {
	state, ok := b.getState(query.From.ID)
	if !ok || state.Command != "broadcast" || state.Step != 2 {
		_, err := b.sendMessageInThread(ctx, msg.Chat.ID, "Nothing to broadcast", msg.MessageThreadID)
		return err
	}

	b.statesMu.Lock()
	state.Step = -1 // Mark conversation as complete
	fromChat, _ := state.Data["chat_id"].(int64)
	messageID, _ := state.Data["message_id"].(int)
	b.statesMu.Unlock()
	b.clearState(query.From.ID)

	if query.Data == btnBroadcastCancel {
		return b.editOrSend(ctx, msg, "Broadcast cancelled ❌", nil)
	}

	if err := b.editOrSend(ctx, msg, "Broadcasting...", nil); err != nil {
		return err
	}
	report, err := b.Broadcast(ctx, fromChat, messageID)
	if err != nil {
		return err
	}
	_, err = b.sendMessageInThread(ctx, msg.Chat.ID, report.String(), msg.MessageThreadID)
	return err
}

// Broadcast copies a message to every subscriber who is not banned, keeping
// under the Telegram rate limit
func (b *Bot) Broadcast(ctx context.Context, fromChatID int64, messageID int) (BroadcastReport, error) {
	var report BroadcastReport

	users, err := b.db.ListUsers(ctx, false)
	if err != nil {
		return report, fmt.Errorf("failed to list subscribers: %w", err)
	}

	limiter := b.newLimiter()
	for _, user := range users {
		if err := limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("broadcast interrupted: %w", err)
		}

		copied, err := b.api.CopyMessage(ctx, &tgbot.CopyMessageParams{
			ChatID:     user.UserID,
			FromChatID: fromChatID,
			MessageID:  messageID,
		})
		switch {
		case err == nil:
			report.Sent++
			b.record(ctx, dbmodels.ActionBroadcastMessage)
			b.scheduleBotMessage(ctx, user.UserID, copied.ID)
		case telegram.IsForbidden(err):
			report.Blocked++
		default:
			report.Failed++
			b.logger.Warn("Failed to broadcast to user", zap.Error(err), zap.Int64("user_id", user.UserID))
		}
	}

	b.logger.Info("Broadcast finished",
		zap.Int("sent", report.Sent),
		zap.Int("blocked", report.Blocked),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
