package service

import (
	"context"
	"fmt"
	"log/slog"

	"content_refresher/internal/domain"
)

// SettingsService changes a document's refresh settings and keeps
// NextRefreshAt consistent with them.
type SettingsService struct {
	documents DocumentStore
	clock     Clock
	logger    *slog.Logger
}

func NewSettingsService(documents DocumentStore, clock Clock, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		documents: documents,
		clock:     clock,
		logger:    logger.With("component", "settings"),
	}
}

// Update sets the enabled flag and frequency of a document. An empty
// frequency keeps the stored one.
func (s *SettingsService) Update(ctx context.Context, documentID int64, enabled bool, frequency string) (*domain.RefreshSchedule, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	schedule := doc.Schedule()
	if frequency != "" {
		freq, err := domain.ParseRefreshFrequency(frequency)
		if err != nil {
			return nil, err
		}
		schedule.Frequency = freq
	}
	if !schedule.Frequency.Valid() {
		schedule.Frequency = domain.DefaultFrequency
	}
	schedule.Enabled = enabled
	schedule.Reschedule(s.clock.Now())

	if err := s.documents.UpdateSchedule(ctx, documentID, schedule); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	s.logger.Info("refresh settings updated",
		"document_id", documentID,
		"enabled", schedule.Enabled,
		"frequency", schedule.Frequency,
		"next_refresh_at", schedule.NextRefreshAt,
	)

	return &schedule, nil
}
