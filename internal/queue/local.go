package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"content_refresher/internal/domain"
)

var ErrClosed = errors.New("queue closed")

// Local is an in-process queue for single-node runs. Jobs are lost on exit.
type Local struct {
	ch     chan Delivery
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func NewLocal(buffer int, logger *slog.Logger) *Local {
	return &Local{
		ch:     make(chan Delivery, buffer),
		done:   make(chan struct{}),
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
	}
}

func (l *Local) Enqueue(ctx context.Context, job domain.RefreshJob, delay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if delay <= 0 {
		select {
		case l.ch <- l.delivery(job):
			return nil
		default:
		}
		// Buffer full: fall through to a timer so the caller never blocks.
		delay = time.Millisecond
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()

		select {
		case l.ch <- l.delivery(job):
		case <-l.done:
		}
	})
	l.timers[t] = struct{}{}

	l.logger.Debug("enqueued refresh job",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"delay", delay,
	)
	return nil
}

func (l *Local) delivery(job domain.RefreshJob) Delivery {
	return Delivery{
		Job: job,
		Ack: func() error { return nil },
		Nack: func(requeue bool) error {
			if !requeue {
				return nil
			}
			return l.Enqueue(context.Background(), job, 0)
		},
	}
}

// Consume returns the shared delivery channel. Consumers stop on their own
// context; the channel is never closed.
func (l *Local) Consume(context.Context) (<-chan Delivery, error) {
	return l.ch, nil
}

// Pending reports jobs still waiting on their delay.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	for t := range l.timers {
		t.Stop()
	}
	l.timers = nil
	close(l.done)
	return nil
}
