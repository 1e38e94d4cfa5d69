// Package archive saves a copy of every relayed message to external sinks.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"supportbot/internal/models"
)

// Direction tells who wrote the archived message
type Direction string

const (
	FromUser  Direction = "user"
	FromAdmin Direction = "admin"
)

// Entry is one archived message
type Entry struct {
	ID        uuid.UUID
	Bot       string
	At        time.Time
	Direction Direction
	Type      models.MsgType
	UserID    int64
	ThreadID  int
	Who       string
	ToWhom    string
	Text      string
	Filename  string
	Forwarded bool
	Subject   string

	// Highlight marks the first message of a new user
	Highlight bool
}

// NewEntry returns an entry with a fresh ID
func NewEntry(bot string, at time.Time, direction Direction) Entry {
	return Entry{
		ID:        uuid.New(),
		Bot:       bot,
		At:        at.UTC(),
		Direction: direction,
	}
}

// Archiver is a message sink
type Archiver interface {
	Save(ctx context.Context, entry Entry) error
	Close() error
}

// Multi saves every entry to all its sinks
type Multi struct {
	sinks  []Archiver
	logger *zap.Logger
}

// NewMulti returns a fan-out over sinks. Nil sinks are skipped
func NewMulti(logger *zap.Logger, sinks ...Archiver) *Multi {
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Save writes the entry to every sink. A failing sink does not stop the others
func (m *Multi) Save(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Save(ctx, entry); err != nil {
			m.logger.Error("Failed to archive message",
				zap.Error(err),
				zap.String("entry_id", entry.ID.String()),
				zap.String("direction", string(entry.Direction)),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
