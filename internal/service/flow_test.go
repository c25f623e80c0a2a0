package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"content_refresher/internal/config"
	"content_refresher/internal/domain"
	"content_refresher/internal/queue"
	"content_refresher/internal/service/mocks"
	"content_refresher/internal/storage/memory"
)

// TestRefreshFlow_DispatchToHistory drives a due document through dispatch,
// the in-process queue and the executor against the memory stores.
func TestRefreshFlow_DispatchToHistory(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now}
	cfg := config.RefreshConfig{BatchSize: 10, JitterMin: time.Millisecond, JitterMax: 5 * time.Millisecond}

	documents := memory.NewDocumentStore()
	logs := memory.NewRefreshLogStore()
	jobs := queue.NewLocal(4, logger)
	defer jobs.Close()

	last := now.AddDate(0, 0, -8)
	next := now.AddDate(0, 0, -1)
	dueID, err := documents.Create(ctx, &domain.Document{
		Title:            "Linalool",
		TemplateKind:     "compound_profile",
		RefreshEnabled:   true,
		RefreshFrequency: domain.FrequencyWeekly,
		LastRefreshAt:    &last,
		NextRefreshAt:    &next,
		Sections: []domain.Section{
			{Name: "overview", Label: "Overview", Content: "Linalool is a terpene alcohol.", Required: true},
			{Name: "safety", Label: "Safety and Toxicology", Content: "Skin sensitizer when oxidized."},
		},
	})
	require.NoError(t, err)

	disabledID, err := documents.Create(ctx, &domain.Document{
		Title:          "Disabled",
		TemplateKind:   "compound_profile",
		RefreshEnabled: false,
		NextRefreshAt:  &next,
	})
	require.NoError(t, err)

	generator := mocks.NewMockGenerationClient(ctrl)
	generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&domain.GenerationResult{
		Sections: map[string]string{
			"overview": "Linalool is a terpene alcohol. Found in lavender and coriander.",
			"safety":   domain.NoUpdatesMarker,
		},
		UpdateSummary:         "Added natural occurrence",
		HasSignificantUpdates: true,
	}, nil)

	dispatcher := NewDispatchService(documents, jobs, clock, logger, cfg)
	refresher := NewRefreshService(documents, logs, generator, memory.NewTransactionManager(), nil, clock, logger, cfg)

	stats, err := dispatcher.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Enqueued)

	deliveries, _ := jobs.Consume(ctx)
	var d queue.Delivery
	select {
	case d = <-deliveries:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for job")
	}
	require.Equal(t, dueID, d.Job.DocumentID)
	assert.NotEqual(t, disabledID, d.Job.DocumentID)

	outcome, err := refresher.Refresh(ctx, d.Job.DocumentID, d.Job.Trigger)
	require.NoError(t, err)
	require.NoError(t, d.Ack())
	assert.Equal(t, []string{"Overview"}, outcome.ChangedSections)

	doc, err := documents.Get(ctx, dueID)
	require.NoError(t, err)
	overview, _ := doc.Section("overview")
	safety, _ := doc.Section("safety")
	assert.Equal(t, "Linalool is a terpene alcohol. Found in lavender and coriander.", overview.Content)
	assert.Equal(t, "Skin sensitizer when oxidized.", safety.Content)
	require.NotNil(t, doc.NextRefreshAt)
	assert.True(t, doc.NextRefreshAt.Equal(now.Add(7*24*time.Hour)))

	due, err := documents.FindDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	history, err := refresher.History(ctx, dueID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.LogScheduled, history[0].Kind)
	assert.Equal(t, "Added natural occurrence", history[0].Message)
	assert.Equal(t, []string{"Overview"}, history[0].Changes)
}

func TestRefreshFlow_QueuedJobsForDisabledDocumentAreDropped(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now}
	cfg := config.RefreshConfig{BatchSize: 10}

	documents := memory.NewDocumentStore()
	logs := memory.NewRefreshLogStore()
	jobs := queue.NewLocal(4, logger)
	defer jobs.Close()

	next := now.AddDate(0, 0, -1)
	id, err := documents.Create(ctx, &domain.Document{
		Title:            "Pinene",
		TemplateKind:     "compound_profile",
		RefreshEnabled:   true,
		RefreshFrequency: domain.FrequencyWeekly,
		NextRefreshAt:    &next,
		Sections: []domain.Section{
			{Name: "overview", Label: "Overview", Content: "Pinene is a bicyclic monoterpene.", Required: true},
		},
	})
	require.NoError(t, err)

	generator := mocks.NewMockGenerationClient(ctrl)
	generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Times(0)

	dispatcher := NewDispatchService(documents, jobs, clock, logger, cfg)
	refresher := NewRefreshService(documents, logs, generator, memory.NewTransactionManager(), nil, clock, logger, cfg)
	settings := NewSettingsService(documents, clock, logger)

	for i := 0; i < 2; i++ {
		stats, err := dispatcher.Dispatch(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Enqueued)
	}

	_, err = settings.Update(ctx, id, false, "")
	require.NoError(t, err)

	deliveries, _ := jobs.Consume(ctx)
	for i := 0; i < 2; i++ {
		var d queue.Delivery
		select {
		case d = <-deliveries:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for job")
		}
		outcome, err := refresher.Refresh(ctx, d.Job.DocumentID, d.Job.Trigger)
		assert.ErrorIs(t, err, domain.ErrRefreshNotDue)
		assert.Equal(t, domain.RefreshSkipped, outcome.Status)
		require.NoError(t, d.Ack())
	}

	history, err := refresher.History(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	doc, err := documents.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, doc.RefreshEnabled)
	assert.Nil(t, doc.LastRefreshAt)
}
