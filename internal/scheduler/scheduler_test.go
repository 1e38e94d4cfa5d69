package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 9 * * 1"))
	assert.NoError(t, Validate("@every 1m"))
	assert.NoError(t, Validate("@daily"))
	assert.Error(t, Validate("every monday"))
	assert.Error(t, Validate("0 0 9 * * 1"))
}

func TestScheduler_RunsAndRecovers(t *testing.T) {
	s := New(zap.NewNop())

	var runs atomic.Int32
	require.NoError(t, s.Add("panicky", "@every 1s", func(ctx context.Context) {
		runs.Add(1)
		panic("boom")
	}))
	assert.Error(t, s.Add("broken", "not a spec", func(ctx context.Context) {}))
	assert.Equal(t, 1, s.Len())

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := New(zap.NewNop())

	started := make(chan struct{}, 1)
	done := make(chan struct{})
	var once sync.Once
	require.NoError(t, s.Add("long", "@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		once.Do(func() { close(done) })
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-done:
	default:
		t.Fatal("job context was not cancelled")
	}
}
