package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content_refresher/internal/domain"
)

func newLocal(t *testing.T, buffer int) *Local {
	q := NewLocal(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { q.Close() })
	return q
}

func receive(t *testing.T, ch <-chan Delivery, within time.Duration) Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(within):
		t.Fatal("timeout waiting for job")
		return Delivery{}
	}
}

func TestLocal_ImmediateJob(t *testing.T) {
	q := newLocal(t, 4)
	ctx := context.Background()

	job := domain.RefreshJob{ID: "job-1", DocumentID: 7, Trigger: domain.TriggerScheduled}
	require.NoError(t, q.Enqueue(ctx, job, 0))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, ch, time.Second)
	assert.Equal(t, job, d.Job)
	assert.NoError(t, d.Ack())
}

func TestLocal_DelayedJobArrivesAfterDelay(t *testing.T) {
	q := newLocal(t, 4)
	ctx := context.Background()
	ch, _ := q.Consume(ctx)

	start := time.Now()
	require.NoError(t, q.Enqueue(ctx, domain.RefreshJob{ID: "late", DocumentID: 1}, 50*time.Millisecond))
	require.NoError(t, q.Enqueue(ctx, domain.RefreshJob{ID: "now", DocumentID: 2}, 0))
	assert.Equal(t, 1, q.Pending())

	first := receive(t, ch, time.Second)
	assert.Equal(t, "now", first.Job.ID)

	second := receive(t, ch, time.Second)
	assert.Equal(t, "late", second.Job.ID)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLocal_NackRequeues(t *testing.T) {
	q := newLocal(t, 4)
	ctx := context.Background()
	ch, _ := q.Consume(ctx)

	require.NoError(t, q.Enqueue(ctx, domain.RefreshJob{ID: "retry"}, 0))

	d := receive(t, ch, time.Second)
	require.NoError(t, d.Nack(true))

	again := receive(t, ch, time.Second)
	assert.Equal(t, "retry", again.Job.ID)
	require.NoError(t, again.Nack(false))

	select {
	case d := <-ch:
		t.Fatalf("unexpected redelivery of %s", d.Job.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocal_FullBufferDoesNotBlock(t *testing.T) {
	q := newLocal(t, 1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.RefreshJob{ID: "a"}, 0))
	require.NoError(t, q.Enqueue(ctx, domain.RefreshJob{ID: "b"}, 0))

	ch, _ := q.Consume(ctx)
	ids := []string{receive(t, ch, time.Second).Job.ID, receive(t, ch, time.Second).Job.ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestLocal_ClosedRejectsAndStopsTimers(t *testing.T) {
	q := newLocal(t, 1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.RefreshJob{ID: "parked"}, time.Hour))
	require.NoError(t, q.Close())

	assert.Equal(t, 0, q.Pending())
	assert.ErrorIs(t, q.Enqueue(ctx, domain.RefreshJob{ID: "x"}, 0), ErrClosed)
}
