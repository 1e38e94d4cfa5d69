package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	dbmodels "supportbot/internal/models"
)

// sendMessageInThread sends an HTML message to a chat, or to a topic when messageThreadID is set
func (b *Bot) sendMessageInThread(ctx context.Context, chatID int64, text string, messageThreadID int) (*models.Message, error) {
	return b.sendMessageInThreadWithMarkup(ctx, chatID, text, messageThreadID, nil)
}

// sendMessageInThreadWithMarkup sends a message with markup to a chat or a topic
func (b *Bot) sendMessageInThreadWithMarkup(ctx context.Context, chatID int64, text string, messageThreadID int, markup models.ReplyMarkup) (*models.Message, error) {
	params := &tgbot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: tgbot.True()},
	}
	if messageThreadID != 0 {
		params.MessageThreadID = messageThreadID
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	sent, err := b.api.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return sent, nil
}

// sendToAdmins posts to the General topic of the admin group, logging failures
func (b *Bot) sendToAdmins(ctx context.Context, text string) {
	if _, err := b.sendMessageInThread(ctx, b.cfg.AdminGroupID, text, 0); err != nil {
		b.logger.Error("Failed to post to admin group", zap.Error(err))
	}
}

func isCommand(msg *models.Message) bool {
	return strings.HasPrefix(msg.Text, "/")
}

// command returns the command name of a message like "/ban@support_bot now" -> "ban"
func command(msg *models.Message) string {
	if !isCommand(msg) {
		return ""
	}
	name := strings.Fields(msg.Text)[0][1:]
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

func (b *Bot) mentionsBot(msg *models.Message) bool {
	if b.self == nil || b.self.Username == "" {
		return false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(b.self.Username))
}

func messageTime(msg *models.Message) time.Time {
	if msg.Date == 0 {
		return time.Now().UTC()
	}
	return time.Unix(int64(msg.Date), 0).UTC()
}

func fullName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// cleanHTML strips characters that could break the HTML markup of a message
func cleanHTML(s string) string {
	return strings.NewReplacer("<", "", ">", "", "/", "", `\`, "").Replace(s)
}

// shortUserInfo renders a user as "<b>Name</b> (@username, id 42)"
func shortUserInfo(name, username string, id int64) string {
	name = strings.NewReplacer("<", "", ">", "").Replace(name)
	tech := fmt.Sprintf("id %d", id)
	if username != "" {
		tech = fmt.Sprintf("@%s, id %d", username, id)
	}
	return fmt.Sprintf("<b>%s</b> (%s)", name, tech)
}

// userInfo renders the card posted at the top of a new topic
func (b *Bot) userInfo(ctx context.Context, u *models.User) string {
	username := "No username"
	if u.Username != "" {
		username = "@" + u.Username
	}
	fields := []string{
		"<b>" + cleanHTML(fullName(u)) + "</b>",
		username,
		fmt.Sprintf("<b>ID</b>: <code>%d</code>", u.ID),
	}
	if u.LanguageCode != "" {
		fields = append(fields, "Language code: "+u.LanguageCode)
	}
	if u.IsPremium {
		fields = append(fields, "Premium: True")
	}

	chat, err := b.api.GetChat(ctx, &tgbot.GetChatParams{ChatID: u.ID})
	if err != nil {
		b.logger.Warn("Failed to get user chat", zap.Error(err), zap.Int64("user_id", u.ID))
		return strings.Join(fields, "\n\n")
	}
	if chat.Bio != "" {
		fields = append(fields, "<b>Bio</b>: "+cleanHTML(chat.Bio))
	} else {
		fields = append(fields, "No bio")
	}
	if len(chat.ActiveUsernames) > 1 {
		fields = append(fields, "Active usernames: @"+strings.Join(chat.ActiveUsernames, ", @"))
	}
	return strings.Join(fields, "\n\n")
}

func msgType(msg *models.Message) dbmodels.MsgType {
	switch {
	case len(msg.Photo) > 0:
		return dbmodels.MsgPhoto
	case msg.Video != nil:
		return dbmodels.MsgVideo
	case msg.Animation != nil:
		return dbmodels.MsgAnimation
	case msg.Sticker != nil:
		return dbmodels.MsgSticker
	case msg.Audio != nil:
		return dbmodels.MsgAudio
	case msg.Voice != nil:
		return dbmodels.MsgVoice
	case msg.Document != nil:
		return dbmodels.MsgDocument
	case msg.VideoNote != nil:
		return dbmodels.MsgVideoNote
	case msg.Contact != nil:
		return dbmodels.MsgContact
	case msg.Venue != nil:
		return dbmodels.MsgVenue
	case msg.Location != nil:
		return dbmodels.MsgLocation
	case msg.Poll != nil:
		return dbmodels.MsgPoll
	case msg.Dice != nil:
		return dbmodels.MsgDice
	}
	return dbmodels.MsgRegular
}

func msgText(msg *models.Message) string {
	if msg.Poll != nil {
		return msg.Poll.Question
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func msgFilename(msg *models.Message) string {
	switch {
	case msg.Document != nil:
		return msg.Document.FileName
	case msg.Audio != nil:
		return msg.Audio.FileName
	case msg.Video != nil:
		return msg.Video.FileName
	}
	return ""
}

// topicName is the user's full name cut to the Telegram limit
func topicName(user *dbmodels.TgUser) string {
	name := strings.TrimSpace(user.FullName)
	if name == "" {
		name = fmt.Sprintf("User %d", user.UserID)
	}
	if r := []rune(name); len(r) > 128 {
		name = string(r[:128])
	}
	return name
}
