package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	closed  bool
}

func (s *recordingSink) Save(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2024, 3, 5, 12, 0, 0, 0, time.FixedZone("X", 3600))
	entry := NewEntry("SUPPORT", at, FromUser)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, time.UTC, entry.At.Location())
	assert.Equal(t, 11, entry.At.Hour())
	assert.NotEqual(t, entry.ID, NewEntry("SUPPORT", at, FromUser).ID)
}

func TestMulti_FailingSinkDoesNotStopOthers(t *testing.T) {
	broken := &recordingSink{err: errors.New("sheets quota exceeded")}
	working := &recordingSink{}
	multi := NewMulti(zap.NewNop(), broken, nil, working)
	require.Equal(t, 2, multi.Len())

	err := multi.Save(context.Background(), NewEntry("SUPPORT", time.Now(), FromAdmin))
	assert.ErrorIs(t, err, broken.err)
	assert.Len(t, working.entries, 1)

	require.NoError(t, multi.Close())
	assert.True(t, broken.closed)
	assert.True(t, working.closed)
}

func TestMulti_Empty(t *testing.T) {
	multi := NewMulti(zap.NewNop())
	assert.NoError(t, multi.Save(context.Background(), NewEntry("SUPPORT", time.Now(), FromUser)))
	assert.NoError(t, multi.Close())
}
