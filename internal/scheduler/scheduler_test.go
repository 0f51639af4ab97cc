package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAdd_InvalidSpec(t *testing.T) {
	s := New(nil)
	err := s.Add("broken", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestRun_ExecutesJobs(t *testing.T) {
	s := New(zap.NewNop())

	var ok, failed atomic.Int32
	require.NoError(t, s.Add("ok", "@every 1s", func(context.Context) error {
		ok.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("failing", "@every 1s", func(context.Context) error {
		failed.Add(1)
		return errors.New("boom")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, ok.Load(), int32(1))
	assert.GreaterOrEqual(t, failed.Load(), int32(1))
}

func TestRun_CancelsJobContext(t *testing.T) {
	s := New(nil)

	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	require.NoError(t, s.Add("long", "@every 1s", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, cancelled.Load())
}

func TestBatch(t *testing.T) {
	var gotLimit int
	job := Batch("mints", 25, func(_ context.Context, limit int) (int, error) {
		gotLimit = limit
		return 3, nil
	}, zap.NewNop())

	require.NoError(t, job(context.Background()))
	assert.Equal(t, 25, gotLimit)
}
