// Package worker executes queued refresh jobs.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"content_refresher/internal/domain"
	"content_refresher/internal/queue"
)

type Consumer interface {
	Consume(ctx context.Context) (<-chan queue.Delivery, error)
}

type Refresher interface {
	Refresh(ctx context.Context, documentID int64, trigger domain.TriggerKind) (*domain.RefreshOutcome, error)
}

type Worker struct {
	consumer    Consumer
	refresher   Refresher
	jobTimeout  time.Duration
	concurrency int
	logger      *slog.Logger
}

func New(consumer Consumer, refresher Refresher, jobTimeout time.Duration, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		consumer:    consumer,
		refresher:   refresher,
		jobTimeout:  jobTimeout,
		concurrency: concurrency,
		logger:      logger.With("component", "worker"),
	}
}

// Run processes deliveries until ctx is cancelled or the delivery channel
// closes. Jobs are acked after every attempt: failures are already in the
// refresh log and the document stays due for the next dispatch. Cancelling
// ctx stops intake; jobs already running finish and are acked before Run
// returns.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("worker started", "concurrency", w.concurrency, "job_timeout", w.jobTimeout)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()

	w.logger.Info("worker stopped")
	return ctx.Err()
}

func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	logger := w.logger.With("job_id", d.Job.ID, "document_id", d.Job.DocumentID)

	jobCtx := context.WithoutCancel(ctx)
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.jobTimeout)
		defer cancel()
	}

	trigger := d.Job.Trigger
	if trigger == "" {
		trigger = domain.TriggerScheduled
	}

	outcome, err := w.refresher.Refresh(jobCtx, d.Job.DocumentID, trigger)
	switch {
	case errors.Is(err, domain.ErrRefreshInProgress):
		logger.Info("document already refreshing, dropping job")
	case errors.Is(err, domain.ErrRefreshNotDue):
		logger.Info("document no longer due, dropping job")
	case err != nil:
		logger.Warn("refresh job failed", "error", err)
	default:
		logger.Info("refresh job finished", "changed", len(outcome.ChangedSections))
	}

	if err := d.Ack(); err != nil {
		logger.Error("failed to ack job", "error", err)
	}
}
