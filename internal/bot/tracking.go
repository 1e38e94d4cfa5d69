package bot

import (
	"context"
	"strings"

	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"supportbot/internal/archive"
	dbmodels "supportbot/internal/models"
)

// record counts an action for the statistics digest
func (b *Bot) record(ctx context.Context, action dbmodels.Action) {
	if err := b.db.RecordAction(ctx, action, b.now()); err != nil {
		b.logger.Error("Failed to record action", zap.Error(err), zap.String("counter", string(action)))
	}
}

// botAddressee is how users' messages are addressed in the archive
func (b *Bot) botAddressee() string {
	name := strings.ToLower(b.cfg.Name)
	if strings.HasSuffix(name, "bot") {
		return name
	}
	return name + " bot"
}

func (b *Bot) newEntry(msg *models.Message, direction archive.Direction) archive.Entry {
	e := archive.NewEntry(b.cfg.Name, messageTime(msg), direction)
	e.Type = msgType(msg)
	e.Who = shortUserInfo(fullName(msg.From), msg.From.Username, msg.From.ID)
	e.Text = msgText(msg)
	e.Filename = msgFilename(msg)
	e.Forwarded = msg.ForwardOrigin != nil
	return e
}

func (b *Bot) saveEntry(ctx context.Context, e archive.Entry) {
	if err := b.archive.Save(ctx, e); err != nil {
		b.logger.Warn("Message was not archived", zap.Error(err), zap.String("entry_id", e.ID.String()))
	}
}

func (b *Bot) archiveUserMessage(ctx context.Context, msg *models.Message, user *dbmodels.TgUser, highlight bool) {
	e := b.newEntry(msg, archive.FromUser)
	e.ToWhom = b.botAddressee()
	e.UserID = user.UserID
	e.ThreadID = user.ThreadID
	e.Subject = user.Subject
	e.Highlight = highlight
	b.saveEntry(ctx, e)
}

func (b *Bot) archiveAdminMessage(ctx context.Context, msg *models.Message, user *dbmodels.TgUser) {
	e := b.newEntry(msg, archive.FromAdmin)
	e.ToWhom = shortUserInfo(user.FullName, user.Username, user.UserID)
	e.UserID = user.UserID
	e.ThreadID = user.ThreadID
	b.saveEntry(ctx, e)
}

// scheduleUserMessage schedules deletion of a user's message in the private chat
func (b *Bot) scheduleUserMessage(ctx context.Context, msg *models.Message) {
	if b.cfg.DestructUserMessages <= 0 {
		return
	}
	b.scheduleDestruction(ctx, dbmodels.Destruction{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		DeleteAt:  b.now().Add(b.cfg.DestructUserMessages).UTC(),
	})
}

// scheduleBotMessage schedules deletion of a message the bot sent to a user
func (b *Bot) scheduleBotMessage(ctx context.Context, chatID int64, messageID int) {
	if b.cfg.DestructBotMessages <= 0 {
		return
	}
	b.scheduleDestruction(ctx, dbmodels.Destruction{
		ChatID:    chatID,
		MessageID: messageID,
		DeleteAt:  b.now().Add(b.cfg.DestructBotMessages).UTC(),
	})
}

func (b *Bot) scheduleDestruction(ctx context.Context, d dbmodels.Destruction) {
	if err := b.db.ScheduleDestruction(ctx, d); err != nil {
		b.logger.Error("Failed to schedule message destruction",
			zap.Error(err),
			zap.Int64("chat_id", d.ChatID),
			zap.Int("message_id", d.MessageID),
		)
	}
}
