package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content_refresher/internal/domain"
)

type countingDispatcher struct {
	calls atomic.Int32
	err   error
}

func (d *countingDispatcher) Dispatch(ctx context.Context) (*domain.DispatchStats, error) {
	d.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("dispatch without deadline")
	}
	if d.err != nil {
		return nil, d.err
	}
	return &domain.DispatchStats{}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewScheduler_Expressions(t *testing.T) {
	valid := []string{"@daily", "@every 1h", "0 3 * * *", "*/15 * * * 1-5"}
	for _, spec := range valid {
		_, err := NewScheduler(&countingDispatcher{}, spec, discard())
		assert.NoError(t, err, spec)
	}

	_, err := NewScheduler(&countingDispatcher{}, "every day", discard())
	assert.Error(t, err)

	_, err = NewScheduler(&countingDispatcher{}, "0 0 3 * * *", discard())
	assert.Error(t, err, "seconds field is not accepted")
}

func TestScheduler_DispatchesAtStartAndOnEveryTick(t *testing.T) {
	d := &countingDispatcher{}
	s, err := NewScheduler(d, "@every 1s", discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	err = s.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// @every snaps to whole seconds, so one or two ticks fit after the start-up run.
	assert.GreaterOrEqual(t, d.calls.Load(), int32(2))
	assert.LessOrEqual(t, d.calls.Load(), int32(3))
}

func TestScheduler_KeepsRunningAfterDispatchError(t *testing.T) {
	d := &countingDispatcher{err: errors.New("database unavailable")}
	s, err := NewScheduler(d, "@every 1s", discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	_ = s.Start(ctx)
	assert.GreaterOrEqual(t, d.calls.Load(), int32(2))
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	d := &countingDispatcher{}
	s, err := NewScheduler(d, "@daily", discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
