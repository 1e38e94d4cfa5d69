package bot

import (
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"supportbot/internal/archive"
	"supportbot/internal/menu"
	"supportbot/internal/storage"
	"supportbot/internal/telegram"
)

// Bot is one support bot instance relaying between private chats and topics
// of its admin group
type Bot struct {
	api     telegram.API
	client  *tgbot.Bot // nil when api is a fake
	db      storage.Storage
	archive archive.Archiver
	stats   MessageCounter
	menu    *menu.Menu
	cfg     Settings
	self    *models.User
	logger  *zap.Logger

	states   map[int64]*ConversationState
	statesMu sync.RWMutex

	userLocks keyedMutex

	broadcastLimit rate.Limit
	now            func() time.Time
}

// Settings is the per-bot behaviour configuration
type Settings struct {
	Name          string
	AdminGroupID  int64
	HelloMsg      string
	FirstReply    string
	WebhookSecret string

	// zero disables destruction
	DestructUserMessages time.Duration
	DestructBotMessages  time.Duration

	StatsPeriod time.Duration
}

// ConversationState tracks the state of multi-step admin actions
type ConversationState struct {
	Command         string
	Step            int
	Data            map[string]interface{}
	MessageThreadID int // ID of the topic/thread in Telegram groups (forum mode)
}

// keyedMutex serializes work per user so one user never gets two topics
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock locks the key and returns its unlock function
func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
