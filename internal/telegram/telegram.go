// Package telegram narrows the Bot API client down to the calls the relay makes.
package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// API is the part of *bot.Bot used by the relay. Tests substitute a fake
type API interface {
	GetMe(ctx context.Context) (*models.User, error)
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*models.Message, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	CreateForumTopic(ctx context.Context, params *bot.CreateForumTopicParams) (*models.ForumTopic, error)
	DeleteForumTopic(ctx context.Context, params *bot.DeleteForumTopicParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var _ API = (*bot.Bot)(nil)

// IsForbidden reports whether the user blocked the bot or left the chat
func IsForbidden(err error) bool {
	return errors.Is(err, bot.ErrorForbidden)
}

// IsThreadNotFound reports whether the topic the message was sent to no longer exists
func IsThreadNotFound(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) && containsFold(err.Error(), "thread not found")
}

// IsNotEnoughRightsForTopic reports whether the bot may not create topics in the group
func IsNotEnoughRightsForTopic(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) && containsFold(err.Error(), "not enough rights to create a topic")
}

// IsMessageGone reports errors of deleting a message that is too old or already deleted
func IsMessageGone(err error) bool {
	if !errors.Is(err, bot.ErrorBadRequest) {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "message to delete not found") || containsFold(msg, "message can't be deleted")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
