package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"content_refresher/internal/config"
	"content_refresher/internal/domain"
	"content_refresher/internal/metrics"
)

// DispatchService selects due documents and enqueues one delayed refresh
// job for each. It never mutates documents.
type DispatchService struct {
	documents DocumentStore
	queue     JobQueue
	clock     Clock
	jitter    func() time.Duration
	logger    *slog.Logger
	config    config.RefreshConfig
}

func NewDispatchService(
	documents DocumentStore,
	queue JobQueue,
	clock Clock,
	logger *slog.Logger,
	cfg config.RefreshConfig,
) *DispatchService {
	return &DispatchService{
		documents: documents,
		queue:     queue,
		clock:     clock,
		jitter:    UniformJitter(cfg.JitterMin, cfg.JitterMax),
		logger:    logger.With("component", "dispatch"),
		config:    cfg,
	}
}

// UniformJitter returns a delay source uniform in [lo, hi].
func UniformJitter(lo, hi time.Duration) func() time.Duration {
	return func() time.Duration {
		if hi <= lo {
			return lo
		}
		return lo + rand.N(hi-lo+1)
	}
}

func (s *DispatchService) Dispatch(ctx context.Context) (*domain.DispatchStats, error) {
	startTime := time.Now()
	now := s.clock.Now()

	due, err := s.documents.FindDue(ctx, now, s.config.BatchSize)
	if err != nil {
		metrics.DispatchErrors.WithLabelValues("find_due").Inc()
		return nil, fmt.Errorf("find due documents: %w", err)
	}

	stats := &domain.DispatchStats{Due: len(due)}

	for i := range due {
		doc := &due[i]
		if !doc.RefreshEnabled {
			continue
		}

		delay := s.jitter()
		job := domain.RefreshJob{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Trigger:    domain.TriggerScheduled,
			EnqueuedAt: now,
			RunAfter:   now.Add(delay),
		}

		if err := s.queue.Enqueue(ctx, job, delay); err != nil {
			stats.Errors++
			metrics.DispatchErrors.WithLabelValues("enqueue").Inc()
			s.logger.Error("failed to enqueue refresh",
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}

		stats.Enqueued++
		metrics.DispatchEnqueued.Inc()
		s.logger.Debug("enqueued refresh",
			"document_id", doc.ID,
			"job_id", job.ID,
			"delay", delay,
		)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("dispatch completed",
		"due", stats.Due,
		"enqueued", stats.Enqueued,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}
