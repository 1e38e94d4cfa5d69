package bot

import (
	"context"
	"fmt"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	testAdminGroup = int64(-100500)
	testBotID      = int64(999)
)

// fakeAPI records calls instead of talking to Telegram
type fakeAPI struct {
	mu sync.Mutex

	nextID     int
	nextThread int

	sent      []*tgbot.SendMessageParams
	documents []*tgbot.SendDocumentParams
	edits     []*tgbot.EditMessageTextParams
	forwards  []*tgbot.ForwardMessageParams
	copies    []*tgbot.CopyMessageParams
	topics    []*tgbot.CreateForumTopicParams
	deleted   []*tgbot.DeleteMessageParams
	gone      []*tgbot.DeleteForumTopicParams
	answers   []*tgbot.AnswerCallbackQueryParams
	// copies made before each callback answer
	copiesAtAnswer []int

	// deadThreads fail forwarding with "thread not found"
	deadThreads map[int]bool
	// failForwards fails every forward with this error
	failForwards error
	// blockedUsers fail copying with "forbidden"
	blockedUsers   map[int64]bool
	noTopicRights  bool
	failEdit       bool
	failDeleteMsgs bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID:       1000,
		nextThread:   100,
		deadThreads:  make(map[int]bool),
		blockedUsers: make(map[int64]bool),
	}
}

func badRequest(desc string) error {
	return fmt.Errorf("%w, %s", tgbot.ErrorBadRequest, desc)
}

func forbidden(desc string) error {
	return fmt.Errorf("%w, %s", tgbot.ErrorForbidden, desc)
}

func chatID(v any) int64 {
	switch id := v.(type) {
	case int64:
		return id
	case int:
		return int64(id)
	}
	panic(fmt.Sprintf("unexpected chat id %v", v))
}

func (f *fakeAPI) message(chat any, threadID int) *models.Message {
	f.nextID++
	return &models.Message{ID: f.nextID, MessageThreadID: threadID, Chat: models.Chat{ID: chatID(chat)}}
}

func (f *fakeAPI) GetMe(ctx context.Context) (*models.User, error) {
	return &models.User{ID: testBotID, IsBot: true, Username: "support_bot"}, nil
}

func (f *fakeAPI) GetChat(ctx context.Context, params *tgbot.GetChatParams) (*models.ChatFullInfo, error) {
	return &models.ChatFullInfo{Bio: "Loves <tea>", ActiveUsernames: []string{"jane", "jane_doe"}}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	return f.message(params.ChatID, params.MessageThreadID), nil
}

func (f *fakeAPI) SendDocument(ctx context.Context, params *tgbot.SendDocumentParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, params)
	return f.message(params.ChatID, 0), nil
}

func (f *fakeAPI) EditMessageText(ctx context.Context, params *tgbot.EditMessageTextParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit {
		return nil, badRequest("Bad Request: message can't be edited")
	}
	f.edits = append(f.edits, params)
	return &models.Message{ID: params.MessageID, Chat: models.Chat{ID: chatID(params.ChatID)}}, nil
}

func (f *fakeAPI) ForwardMessage(ctx context.Context, params *tgbot.ForwardMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadThreads[params.MessageThreadID] {
		return nil, badRequest("Bad Request: message thread not found")
	}
	if f.failForwards != nil {
		return nil, f.failForwards
	}
	f.forwards = append(f.forwards, params)
	return f.message(params.ChatID, params.MessageThreadID), nil
}

func (f *fakeAPI) CopyMessage(ctx context.Context, params *tgbot.CopyMessageParams) (*models.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockedUsers[chatID(params.ChatID)] {
		return nil, forbidden("Forbidden: bot was blocked by the user")
	}
	f.copies = append(f.copies, params)
	f.nextID++
	return &models.MessageID{ID: f.nextID}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, params *tgbot.DeleteMessageParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, params)
	if f.failDeleteMsgs {
		return false, badRequest("Bad Request: message to delete not found")
	}
	return true, nil
}

func (f *fakeAPI) CreateForumTopic(ctx context.Context, params *tgbot.CreateForumTopicParams) (*models.ForumTopic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noTopicRights {
		return nil, badRequest("Bad Request: not enough rights to create a topic")
	}
	f.topics = append(f.topics, params)
	f.nextThread++
	return &models.ForumTopic{MessageThreadID: f.nextThread, Name: params.Name}, nil
}

func (f *fakeAPI) DeleteForumTopic(ctx context.Context, params *tgbot.DeleteForumTopicParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadThreads[params.MessageThreadID] {
		return false, badRequest("Bad Request: message thread not found")
	}
	f.gone = append(f.gone, params)
	return true, nil
}

func (f *fakeAPI) AnswerCallbackQuery(ctx context.Context, params *tgbot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, params)
	f.copiesAtAnswer = append(f.copiesAtAnswer, len(f.copies))
	return true, nil
}

// texts returns texts sent to the chat, in order
func (f *fakeAPI) texts(chat int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.sent {
		if chatID(p.ChatID) == chat {
			out = append(out, p.Text)
		}
	}
	return out
}
