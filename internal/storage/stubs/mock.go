package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"supportbot/internal/models"
	"supportbot/internal/storage"
)

type destructionKey struct {
	chatID    int64
	messageID int
}

type counterKey struct {
	day    time.Time
	action models.Action
}

// MockDB is an in-memory implementation of the Storage interface.
// Suitable for development and tests only: everything is lost on restart
type MockDB struct {
	mu           sync.RWMutex
	users        map[int64]models.TgUser
	counters     map[counterKey]int
	destructions map[destructionKey]models.Destruction
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		users:        make(map[int64]models.TgUser),
		counters:     make(map[counterKey]int),
		destructions: make(map[destructionKey]models.Destruction),
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// GetUser returns a copy of the stored user
func (m *MockDB) GetUser(ctx context.Context, userID int64) (*models.TgUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &user, nil
}

// GetUserByThread scans users for the topic owner
func (m *MockDB) GetUserByThread(ctx context.Context, threadID int) (*models.TgUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if threadID == 0 {
		return nil, storage.ErrNotFound
	}
	for _, user := range m.users {
		if user.ThreadID == threadID {
			return &user, nil
		}
	}
	return nil, storage.ErrNotFound
}

// SaveUser stores a copy of the user
func (m *MockDB) SaveUser(ctx context.Context, user *models.TgUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ThreadID != 0 {
		for id, other := range m.users {
			if id != user.UserID && other.ThreadID == user.ThreadID {
				other.ThreadID = 0
				m.users[id] = other
			}
		}
	}

	saved := *user
	if existing, ok := m.users[user.UserID]; ok && saved.CreatedAt.IsZero() {
		saved.CreatedAt = existing.CreatedAt
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}
	m.users[user.UserID] = saved
	user.CreatedAt = saved.CreatedAt
	return nil
}

// ClearThread forgets the user's topic
func (m *MockDB) ClearThread(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.ThreadID = 0
	m.users[userID] = user
	return nil
}

// SetBan updates ban flags of the user
func (m *MockDB) SetBan(ctx context.Context, userID int64, banned, shadowBanned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.Banned = banned
	user.ShadowBanned = shadowBanned
	m.users[userID] = user
	return nil
}

// ListUsers returns users sorted by ID
func (m *MockDB) ListUsers(ctx context.Context, includeBanned bool) ([]models.TgUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []models.TgUser
	for _, user := range m.users {
		if !includeBanned && (user.Banned || user.ShadowBanned) {
			continue
		}
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].UserID < users[j].UserID
	})
	return users, nil
}

// ListStaleThreads returns users with a topic and no activity since before
func (m *MockDB) ListStaleThreads(ctx context.Context, before time.Time) ([]models.TgUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []models.TgUser
	for _, user := range m.users {
		if user.HasThread() && user.LastActivity().Before(before) {
			users = append(users, user)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].UserID < users[j].UserID
	})
	return users, nil
}

// RecordAction increments the daily counter of the action
func (m *MockDB) RecordAction(ctx context.Context, action models.Action, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[counterKey{day: storage.Day(at), action: action}]++
	return nil
}

// CountActions sums daily counters within the period
func (m *MockDB) CountActions(ctx context.Context, since, until time.Time) (map[models.Action]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to := storage.Day(since), storage.Day(until)
	counts := make(map[models.Action]int)
	for key, n := range m.counters {
		if key.day.Before(from) || key.day.After(to) {
			continue
		}
		counts[key.action] += n
	}
	return counts, nil
}

// ScheduleDestruction remembers a message to delete later
func (m *MockDB) ScheduleDestruction(ctx context.Context, d models.Destruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.destructions[destructionKey{chatID: d.ChatID, messageID: d.MessageID}] = d
	return nil
}

// DueDestructions returns up to limit messages whose time has come, oldest first
func (m *MockDB) DueDestructions(ctx context.Context, now time.Time, limit int) ([]models.Destruction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []models.Destruction
	for _, d := range m.destructions {
		if !d.DeleteAt.After(now) {
			due = append(due, d)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].DeleteAt.Before(due[j].DeleteAt)
	})
	if limit > 0 && limit < len(due) {
		due = due[:limit]
	}
	return due, nil
}

// DeleteDestruction forgets a scheduled message
func (m *MockDB) DeleteDestruction(ctx context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.destructions, destructionKey{chatID: chatID, messageID: messageID})
	return nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
