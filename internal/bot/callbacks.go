package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"supportbot/internal/menu"
)

const adminCallbackPrefix = "admin:"

// Admin buttons
const (
	btnBroadcast        = adminCallbackPrefix + "broadcast"
	btnDelOldTopics     = adminCallbackPrefix + "del_old_topics"
	btnBroadcastSend    = adminCallbackPrefix + "broadcast_send"
	btnBroadcastCancel  = adminCallbackPrefix + "broadcast_cancel"
	textBroadcastPrompt = "Send here a message to broadcast, and then I'll ask for confirmation"
	textDeletingTopics  = "Deleting topics older than 2 weeks..."
)

func adminMenu() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "📢 Broadcast to all subscribers", CallbackData: btnBroadcast}},
			{{Text: "🧹 Delete topics older than 2 weeks", CallbackData: btnDelOldTopics}},
		},
	}
}

// userButton handles a press on the user menu
func (b *Bot) userButton(ctx context.Context, query *models.CallbackQuery, msg *models.Message) error {
	if b.menu == nil {
		return nil
	}
	path, code, ok := menu.DecodeCallback(query.Data)
	if !ok {
		return fmt.Errorf("malformed menu callback %q", query.Data)
	}

	if path == "" && code == "" {
		return b.editOrSend(ctx, msg, b.cfg.HelloMsg, b.menu.Keyboard(b.menu.Root, ""))
	}

	node, full, err := b.menu.Find(path, code)
	if err != nil {
		// The menu changed since the keyboard was sent
		b.logger.Info("Outdated menu button", zap.String("data", query.Data))
		return b.editOrSend(ctx, msg, b.cfg.HelloMsg, b.menu.Keyboard(b.menu.Root, ""))
	}

	switch node.Mode() {
	case menu.ModeMenu:
		return b.editOrSend(ctx, msg, node.Text(), b.menu.Keyboard(node, full))
	case menu.ModeFile:
		return b.sendMenuFile(ctx, msg.Chat.ID, node)
	case menu.ModeAnswer:
		sent, err := b.sendMessageInThread(ctx, msg.Chat.ID, node.Answer, 0)
		if err != nil {
			return err
		}
		b.scheduleBotMessage(ctx, sent.Chat.ID, sent.ID)
	}
	return nil
}

// editOrSend replaces the message with a new text and keyboard, or sends a new
// message when editing is not possible
func (b *Bot) editOrSend(ctx context.Context, msg *models.Message, text string, keyboard *models.InlineKeyboardMarkup) error {
	params := &tgbot.EditMessageTextParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	var markup models.ReplyMarkup
	if keyboard != nil {
		params.ReplyMarkup = keyboard
		markup = keyboard
	}

	_, err := b.api.EditMessageText(ctx, params)
	if err == nil {
		return nil
	}
	b.logger.Debug("Failed to edit menu message, sending a new one", zap.Error(err))

	sent, err := b.sendMessageInThreadWithMarkup(ctx, msg.Chat.ID, text, msg.MessageThreadID, markup)
	if err != nil {
		return err
	}
	if msg.Chat.Type == models.ChatTypePrivate {
		b.scheduleBotMessage(ctx, sent.Chat.ID, sent.ID)
	}
	return nil
}

func (b *Bot) sendMenuFile(ctx context.Context, chatID int64, node *menu.Node) error {
	path := b.menu.FilePath(node)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open menu file: %w", err)
	}
	defer f.Close()

	params := &tgbot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
	}
	if node.Answer != "" {
		params.Caption = node.Answer
		params.ParseMode = models.ParseModeHTML
	}

	sent, err := b.api.SendDocument(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send menu file: %w", err)
	}
	b.scheduleBotMessage(ctx, sent.Chat.ID, sent.ID)
	return nil
}

// adminButton handles a press on the admin menu or the broadcast confirmation
func (b *Bot) adminButton(ctx context.Context, query *models.CallbackQuery, msg *models.Message) error {
	switch query.Data {
	case btnBroadcast:
		b.setState(query.From.ID, &ConversationState{
			Command:         "broadcast",
			Step:            1,
			Data:            make(map[string]interface{}),
			MessageThreadID: msg.MessageThreadID,
		})
		_, err := b.sendMessageInThread(ctx, msg.Chat.ID, textBroadcastPrompt, msg.MessageThreadID)
		return err

	case btnDelOldTopics:
		if _, err := b.sendMessageInThread(ctx, msg.Chat.ID, textDeletingTopics, msg.MessageThreadID); err != nil {
			return err
		}
		n, err := b.DeleteOldTopics(ctx)
		if err != nil {
			return err
		}
		_, err = b.sendMessageInThread(ctx, msg.Chat.ID, deletedTopicsText(n), msg.MessageThreadID)
		return err

	case btnBroadcastSend, btnBroadcastCancel:
		return b.finishBroadcast(ctx, query, msg)
	}

	b.logger.Warn("Unknown admin button", zap.String("data", query.Data))
	return nil
}

func deletedTopicsText(n int) string {
	emoji := "🫡"
	if n == 0 {
		emoji = "😐"
	}
	plural := "s"
	if n == 1 {
		plural = ""
	}
	return fmt.Sprintf("Deleted %d topic%s %s", n, plural, emoji)
}
