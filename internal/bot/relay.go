package bot

import (
	"context"
	"errors"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	dbmodels "supportbot/internal/models"
	"supportbot/internal/storage"
	"supportbot/internal/telegram"
)

const (
	textBlocked     = "You are blocked by the administrators."
	topicInfoFooter = "\n\n<i>Replies to any bot message in this topic will be sent to the user</i>"
)

// userMessage forwards a private message into the user's topic, creating the
// topic on first contact and recreating it when it was deleted
func (b *Bot) userMessage(ctx context.Context, msg *models.Message) error {
	from := msg.From
	unlock := b.userLocks.Lock(from.ID)
	defer unlock()

	user, isNew, err := b.getOrNewUser(ctx, from)
	if err != nil {
		return err
	}

	if user.ShadowBanned {
		b.logger.Info("Dropping message of shadow-banned user", zap.Int64("user_id", from.ID))
		return nil
	}
	if user.Banned {
		sent, err := b.sendMessageInThread(ctx, msg.Chat.ID, textBlocked, 0)
		if err != nil {
			return err
		}
		b.scheduleBotMessage(ctx, sent.Chat.ID, sent.ID)
		return nil
	}

	firstMessage := user.LastUserMessageAt.IsZero()
	user.FullName = fullName(from)
	user.Username = from.Username

	if user.HasThread() {
		err = b.forwardToTopic(ctx, msg, user.ThreadID)
		if telegram.IsThreadNotFound(err) {
			b.logger.Warn("Topic vanished, recreating",
				zap.Int64("user_id", from.ID),
				zap.Int("thread_id", user.ThreadID),
			)
			if err := b.openTopic(ctx, user, from); err != nil {
				return err
			}
			b.record(ctx, dbmodels.ActionTopicRecreated)
			err = b.forwardToTopic(ctx, msg, user.ThreadID)
		}
		if err != nil {
			return err
		}
	} else {
		if err := b.openTopic(ctx, user, from); err != nil {
			return err
		}
		b.record(ctx, dbmodels.ActionTopicCreated)
		if err := b.forwardToTopic(ctx, msg, user.ThreadID); err != nil {
			return err
		}
	}

	user.LastUserMessageAt = b.now().UTC()
	if err := b.db.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if isNew {
		b.record(ctx, dbmodels.ActionNewUser)
	}
	b.record(ctx, dbmodels.ActionUserMessage)
	b.archiveUserMessage(ctx, msg, user, isNew)
	b.scheduleUserMessage(ctx, msg)

	if firstMessage && b.cfg.FirstReply != "" {
		sent, err := b.sendMessageInThread(ctx, msg.Chat.ID, b.cfg.FirstReply, 0)
		if err != nil {
			return err
		}
		b.scheduleBotMessage(ctx, sent.Chat.ID, sent.ID)
	}
	return nil
}

func (b *Bot) getOrNewUser(ctx context.Context, from *models.User) (*dbmodels.TgUser, bool, error) {
	user, err := b.db.GetUser(ctx, from.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return &dbmodels.TgUser{
			UserID:   from.ID,
			FullName: fullName(from),
			Username: from.Username,
		}, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get user: %w", err)
	}
	return user, false, nil
}

// openTopic creates a topic for the user, persists it and posts the user card.
// The mapping is saved before anything is forwarded into the topic
func (b *Bot) openTopic(ctx context.Context, user *dbmodels.TgUser, from *models.User) error {
	topic, err := b.api.CreateForumTopic(ctx, &tgbot.CreateForumTopicParams{
		ChatID: b.cfg.AdminGroupID,
		Name:   topicName(user),
	})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	user.ThreadID = topic.MessageThreadID
	if err := b.db.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save topic of user %d: %w", user.UserID, err)
	}
	b.logger.Info("Topic created",
		zap.Int64("user_id", user.UserID),
		zap.Int("thread_id", user.ThreadID),
	)

	info := b.userInfo(ctx, from) + topicInfoFooter
	_, err = b.sendMessageInThread(ctx, b.cfg.AdminGroupID, info, user.ThreadID)
	return err
}

func (b *Bot) forwardToTopic(ctx context.Context, msg *models.Message, threadID int) error {
	_, err := b.api.ForwardMessage(ctx, &tgbot.ForwardMessageParams{
		ChatID:          b.cfg.AdminGroupID,
		MessageThreadID: threadID,
		FromChatID:      msg.Chat.ID,
		MessageID:       msg.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to forward message to topic %d: %w", threadID, err)
	}
	return nil
}

// isAdminReply reports whether the message is an admin's reply to a bot message
// inside a topic. Replies to the topic root do not count
func (b *Bot) isAdminReply(msg *models.Message) bool {
	reply := msg.ReplyToMessage
	if reply == nil || reply.From == nil || b.self == nil {
		return false
	}
	return reply.From.ID == b.self.ID &&
		reply.ID != msg.MessageThreadID &&
		msg.Chat.ID == b.cfg.AdminGroupID &&
		reply.Chat.ID == b.cfg.AdminGroupID
}

// adminMessage copies an admin reply to the user owning the topic
func (b *Bot) adminMessage(ctx context.Context, msg *models.Message) error {
	user, err := b.db.GetUserByThread(ctx, msg.MessageThreadID)
	if errors.Is(err, storage.ErrNotFound) {
		b.logger.Warn("Reply in a topic without a user", zap.Int("thread_id", msg.MessageThreadID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get topic owner: %w", err)
	}

	unlock := b.userLocks.Lock(user.UserID)
	defer unlock()

	copied, err := b.api.CopyMessage(ctx, &tgbot.CopyMessageParams{
		ChatID:     user.UserID,
		FromChatID: msg.Chat.ID,
		MessageID:  msg.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to copy reply to user %d: %w", user.UserID, err)
	}

	// Re-read under the lock, the user may have changed since the lookup
	if fresh, err := b.db.GetUser(ctx, user.UserID); err == nil {
		user = fresh
	}
	user.LastAdminMessageAt = b.now().UTC()
	if err := b.db.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	b.record(ctx, dbmodels.ActionAdminMessage)
	b.archiveAdminMessage(ctx, msg, user)
	b.scheduleBotMessage(ctx, user.UserID, copied.ID)
	return nil
}

func (b *Bot) addedToGroup(msg *models.Message) bool {
	if b.self == nil {
		return false
	}
	for _, member := range msg.NewChatMembers {
		if member.ID == b.self.ID {
			return true
		}
	}
	return false
}

// groupHello reports the chat ID to a group the bot was added to
func (b *Bot) groupHello(ctx context.Context, chat models.Chat) error {
	text := fmt.Sprintf("Hello!\nID of this chat: <code>%d</code>", chat.ID)
	if !chat.IsForum {
		text += "\n\n❗ Please enable topics in the group settings"
	}
	_, err := b.sendMessageInThread(ctx, chat.ID, text, 0)
	return err
}
