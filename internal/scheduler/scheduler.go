package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"content_refresher/internal/domain"
)

// Dispatcher enqueues refresh jobs for documents that are due.
type Dispatcher interface {
	Dispatch(ctx context.Context) (*domain.DispatchStats, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Scheduler struct {
	dispatcher Dispatcher
	spec       string
	schedule   cron.Schedule
	timeout    time.Duration
	logger     *slog.Logger
}

// NewScheduler parses spec as a standard cron expression or a descriptor
// such as @daily or @every 1h.
func NewScheduler(dispatcher Dispatcher, spec string, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	return &Scheduler{
		dispatcher: dispatcher,
		spec:       spec,
		schedule:   schedule,
		timeout:    5 * time.Minute,
		logger:     logger.With("component", "scheduler"),
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "schedule", s.spec)

	s.runDispatch(ctx)

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runDispatch(ctx)
		}
	}
}

func (s *Scheduler) runDispatch(ctx context.Context) {
	dispatchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.dispatcher.Dispatch(dispatchCtx); err != nil {
		s.logger.Error("dispatch failed", "error", err)
	}
}
