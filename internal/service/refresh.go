package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"content_refresher/internal/config"
	"content_refresher/internal/domain"
	"content_refresher/internal/metrics"
)

const maxHistoryLimit = domain.RefreshLogCap

type RefreshService struct {
	documents DocumentStore
	logs      RefreshLogStore
	generator GenerationClient
	txManager TransactionManager
	locker    Locker
	clock     Clock
	logger    *slog.Logger
	config    config.RefreshConfig
}

// NewRefreshService builds the refresh executor. locker may be nil, in which
// case refreshes of the same document are not serialized.
func NewRefreshService(
	documents DocumentStore,
	logs RefreshLogStore,
	generator GenerationClient,
	txManager TransactionManager,
	locker Locker,
	clock Clock,
	logger *slog.Logger,
	cfg config.RefreshConfig,
) *RefreshService {
	return &RefreshService{
		documents: documents,
		logs:      logs,
		generator: generator,
		txManager: txManager,
		locker:    locker,
		clock:     clock,
		logger:    logger.With("component", "refresh"),
		config:    cfg,
	}
}

// Refresh runs one update-only refresh of a document. The returned outcome is
// never nil; the error is set whenever the outcome failed.
func (s *RefreshService) Refresh(ctx context.Context, documentID int64, trigger domain.TriggerKind) (*domain.RefreshOutcome, error) {
	logger := s.logger.With("document_id", documentID, "trigger", trigger)
	outcome := &domain.RefreshOutcome{
		DocumentID: documentID,
		Trigger:    trigger,
		StartedAt:  s.clock.Now(),
	}

	if s.locker != nil {
		key, owner := lockKey(documentID), uuid.NewString()
		acquired, err := s.locker.Acquire(ctx, key, owner, s.config.LockTTL)
		if err != nil {
			return s.fail(ctx, logger, outcome, fmt.Errorf("acquire refresh lock: %w", err))
		}
		if !acquired {
			logger.Info("refresh skipped, another refresh holds the lock")
			return s.skip(outcome, domain.ErrRefreshInProgress)
		}
		defer func() {
			if _, err := s.locker.Release(context.WithoutCancel(ctx), key, owner); err != nil {
				logger.Warn("failed to release refresh lock", "error", err)
			}
		}()
	}

	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return s.fail(ctx, logger, outcome, fmt.Errorf("load document: %w", err))
	}

	// A queued scheduled job may be stale by the time it runs.
	if trigger == domain.TriggerScheduled && !doc.IsDue(s.clock.Now()) {
		logger.Info("refresh skipped, document no longer due",
			"enabled", doc.RefreshEnabled,
			"next_refresh_at", doc.NextRefreshAt,
		)
		return s.skip(outcome, domain.ErrRefreshNotDue)
	}

	tmpl, ok := domain.LookupTemplate(doc.TemplateKind)
	if !ok {
		return s.fail(ctx, logger, outcome, fmt.Errorf("%w: %q", domain.ErrUnknownTemplate, doc.TemplateKind))
	}

	snap := snapshotSections(doc, tmpl)
	req := buildRefreshRequest(doc, tmpl, snap)

	logger.Info("requesting section updates",
		"template", tmpl.Kind,
		"sections", len(snap),
		"cutoff", doc.LastKnownUpdate(),
	)

	callStart := time.Now()
	result, err := s.generator.Generate(ctx, req)
	metrics.GenerationDuration.Observe(time.Since(callStart).Seconds())
	if err != nil {
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) {
			err = &domain.GenerationError{Op: "generate", Err: err}
		}
		return s.fail(ctx, logger, outcome, err)
	}

	updated, changed := s.merge(logger, snap, result)

	now := s.clock.Now()
	schedule := doc.Schedule()
	if !schedule.Frequency.Valid() {
		schedule.Frequency = domain.DefaultFrequency
	}
	schedule.MarkRefreshed(now)

	entry := &domain.RefreshLogEntry{
		DocumentID: documentID,
		Timestamp:  now,
		Kind:       domain.LogKindFor(trigger),
		Message:    logMessage(result, changed),
		Changes:    changed,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if len(updated) > 0 {
			if err := s.documents.UpdateSections(txCtx, documentID, updated); err != nil {
				return fmt.Errorf("update sections: %w", err)
			}
		}
		if err := s.documents.UpdateSchedule(txCtx, documentID, schedule); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		if err := s.logs.Append(txCtx, entry); err != nil {
			return fmt.Errorf("append refresh log: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, logger, outcome, fmt.Errorf("persist refresh: %w", err))
	}

	outcome.Status = domain.RefreshSucceeded
	outcome.ChangedSections = changed
	outcome.Summary = entry.Message
	outcome.HasSignificantUpdates = result.HasSignificantUpdates
	outcome.FinishedAt = now

	metrics.RefreshTotal.WithLabelValues(string(trigger), string(domain.RefreshSucceeded)).Inc()
	metrics.SectionsChanged.Add(float64(len(changed)))

	logger.Info("refresh completed",
		"changed", len(changed),
		"significant", result.HasSignificantUpdates,
		"next_refresh_at", schedule.NextRefreshAt,
	)

	return outcome, nil
}

// merge compares returned text with the snapshot. Sections absent from the
// result, identical, or marked as having no updates are left alone.
func (s *RefreshService) merge(logger *slog.Logger, snap []sectionSnapshot, result *domain.GenerationResult) ([]domain.Section, []string) {
	var updated []domain.Section
	changed := make([]string, 0)

	for _, sn := range snap {
		returned, ok := result.Sections[sn.Def.Name]
		if !ok || returned == sn.Content || isNoUpdates(returned) {
			continue
		}

		if s.config.RequireSuperset && strings.TrimSpace(sn.Content) != "" && !strings.Contains(returned, sn.Content) {
			logger.Warn("rejected section update that drops existing text",
				"section", sn.Def.Name,
				"previous_length", len(sn.Content),
				"returned_length", len(returned),
			)
			continue
		}

		updated = append(updated, domain.Section{
			Name:     sn.Def.Name,
			Label:    sn.Def.Label,
			Content:  returned,
			Required: sn.Def.Required,
		})
		changed = append(changed, sn.Def.Label)
	}

	return updated, changed
}

// skip ends an attempt that never started: no log entry, no schedule change.
func (s *RefreshService) skip(outcome *domain.RefreshOutcome, reason error) (*domain.RefreshOutcome, error) {
	outcome.Status = domain.RefreshSkipped
	outcome.Reason = reason.Error()
	outcome.FinishedAt = s.clock.Now()
	metrics.RefreshTotal.WithLabelValues(string(outcome.Trigger), string(domain.RefreshSkipped)).Inc()
	return outcome, reason
}

// fail records an error entry for the attempt and leaves the schedule untouched.
func (s *RefreshService) fail(ctx context.Context, logger *slog.Logger, outcome *domain.RefreshOutcome, cause error) (*domain.RefreshOutcome, error) {
	now := s.clock.Now()
	outcome.Status = domain.RefreshFailed
	outcome.Reason = cause.Error()
	outcome.FinishedAt = now

	entry := &domain.RefreshLogEntry{
		DocumentID: outcome.DocumentID,
		Timestamp:  now,
		Kind:       domain.LogError,
		Message:    cause.Error(),
		Changes:    []string{},
	}
	if err := s.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("failed to append refresh log", "error", err)
	}

	metrics.RefreshTotal.WithLabelValues(string(outcome.Trigger), string(domain.RefreshFailed)).Inc()
	logger.Warn("refresh failed", "error", cause)

	return outcome, cause
}

// History returns the most recent log entries of a document, newest first.
func (s *RefreshService) History(ctx context.Context, documentID int64, limit int) ([]domain.RefreshLogEntry, error) {
	if _, err := s.documents.Get(ctx, documentID); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	entries, err := s.logs.Recent(ctx, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("read refresh log: %w", err)
	}
	return entries, nil
}

func logMessage(result *domain.GenerationResult, changed []string) string {
	if summary := strings.TrimSpace(result.UpdateSummary); summary != "" {
		return summary
	}
	if len(changed) == 0 {
		return "no changes"
	}
	return fmt.Sprintf("updated %d section(s)", len(changed))
}

func isNoUpdates(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), domain.NoUpdatesMarker)
}

func lockKey(documentID int64) string {
	return "refresh-lock:" + strconv.FormatInt(documentID, 10)
}
