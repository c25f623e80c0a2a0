//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"content_refresher/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_documents.up.sql"),
			filepath.Join(migrationsPath, "002_create_refresh_log.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM refresh_log")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM document_sections")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM documents")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createDocument(enabled bool, next *time.Time) int64 {
	store := NewDocumentStore(s.db)
	doc := &domain.Document{
		Title:            "Myrcene",
		TemplateKind:     "compound_profile",
		RefreshEnabled:   enabled,
		RefreshFrequency: domain.FrequencyWeekly,
		NextRefreshAt:    next,
		Sections: []domain.Section{
			{Name: "overview", Label: "Overview", Content: "Myrcene is a monoterpene.", Required: true},
			{Name: "chemistry", Label: "Chemical Properties", Content: "C10H16."},
		},
	}
	id, err := store.Create(s.ctx, doc)
	s.Require().NoError(err)
	return id
}

func (s *PostgresIntegrationSuite) TestDocumentStore_CreateAndGet() {
	store := NewDocumentStore(s.db)
	id := s.createDocument(true, nil)

	doc, err := store.Get(s.ctx, id)
	s.NoError(err)
	s.Equal("Myrcene", doc.Title)
	s.Equal(domain.FrequencyWeekly, doc.RefreshFrequency)
	s.Nil(doc.LastRefreshAt)
	s.Len(doc.Sections, 2)

	overview, ok := doc.Section("overview")
	s.True(ok)
	s.Equal("Myrcene is a monoterpene.", overview.Content)
	s.True(overview.Required)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_GetMissing() {
	store := NewDocumentStore(s.db)

	_, err := store.Get(s.ctx, 999999)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_FindDue_OnlyEnabledAndDue() {
	store := NewDocumentStore(s.db)
	now := time.Now().Truncate(time.Microsecond)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := s.createDocument(true, &past)
	s.createDocument(false, &past)
	s.createDocument(true, &future)
	s.createDocument(true, nil)

	docs, err := store.FindDue(s.ctx, now, 10)
	s.NoError(err)
	s.Require().Len(docs, 1)
	s.Equal(due, docs[0].ID)
	s.Len(docs[0].Sections, 2)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_FindDue_RespectsLimitAndOrder() {
	store := NewDocumentStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	var ids []int64
	for i := 5; i >= 1; i-- {
		next := now.Add(-time.Duration(i) * time.Hour)
		ids = append(ids, s.createDocument(true, &next))
	}

	docs, err := store.FindDue(s.ctx, now, 3)
	s.NoError(err)
	s.Require().Len(docs, 3)
	s.Equal(ids[0], docs[0].ID)
	s.Equal(ids[1], docs[1].ID)
	s.Equal(ids[2], docs[2].ID)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_UpdateSections_KeepsUnlisted() {
	store := NewDocumentStore(s.db)
	id := s.createDocument(true, nil)

	err := store.UpdateSections(s.ctx, id, []domain.Section{
		{Name: "chemistry", Label: "Chemical Properties", Content: "C10H16. Boiling point 167 C."},
		{Name: "safety", Label: "Safety and Toxicology", Content: "Low acute toxicity."},
	})
	s.NoError(err)

	doc, err := store.Get(s.ctx, id)
	s.NoError(err)
	s.Len(doc.Sections, 3)

	overview, _ := doc.Section("overview")
	s.Equal("Myrcene is a monoterpene.", overview.Content)
	chemistry, _ := doc.Section("chemistry")
	s.Equal("C10H16. Boiling point 167 C.", chemistry.Content)
}

func (s *PostgresIntegrationSuite) TestDocumentStore_UpdateSchedule() {
	store := NewDocumentStore(s.db)
	id := s.createDocument(true, nil)
	now := time.Now().Truncate(time.Microsecond)
	next := now.Add(7 * 24 * time.Hour)

	err := store.UpdateSchedule(s.ctx, id, domain.RefreshSchedule{
		Enabled:       true,
		Frequency:     domain.FrequencyWeekly,
		LastRefreshAt: &now,
		NextRefreshAt: &next,
	})
	s.NoError(err)

	doc, err := store.Get(s.ctx, id)
	s.NoError(err)
	s.Require().NotNil(doc.LastRefreshAt)
	s.Require().NotNil(doc.NextRefreshAt)
	s.WithinDuration(now, *doc.LastRefreshAt, time.Millisecond)
	s.WithinDuration(next, *doc.NextRefreshAt, time.Millisecond)

	err = store.UpdateSchedule(s.ctx, 999999, domain.RefreshSchedule{Frequency: domain.FrequencyDaily})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestRefreshLogStore_CapsAtFifty() {
	store := NewRefreshLogStore(s.db)
	base := time.Now().Truncate(time.Microsecond)

	for i := 0; i < 60; i++ {
		err := store.Append(s.ctx, &domain.RefreshLogEntry{
			DocumentID: 7,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Kind:       domain.LogScheduled,
			Message:    fmt.Sprintf("entry %d", i),
			Changes:    []string{"Overview"},
		})
		s.Require().NoError(err)
	}

	entries, err := store.Recent(s.ctx, 7, 1000)
	s.NoError(err)
	s.Require().Len(entries, 50)
	s.Equal("entry 59", entries[0].Message)
	s.Equal("entry 10", entries[49].Message)
	s.Equal([]string{"Overview"}, entries[0].Changes)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM refresh_log WHERE document_id = $1", 7)
	s.NoError(err)
	s.Equal(50, count)
}

func (s *PostgresIntegrationSuite) TestRefreshLogStore_IsolatedPerDocument() {
	store := NewRefreshLogStore(s.db)
	now := time.Now()

	s.NoError(store.Append(s.ctx, &domain.RefreshLogEntry{DocumentID: 1, Timestamp: now, Kind: domain.LogManual, Message: "a"}))
	s.NoError(store.Append(s.ctx, &domain.RefreshLogEntry{DocumentID: 2, Timestamp: now, Kind: domain.LogError, Message: "b"}))

	entries, err := store.Recent(s.ctx, 1, 10)
	s.NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(domain.LogManual, entries[0].Kind)
	s.Empty(entries[0].Changes)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	docs := NewDocumentStore(s.db)
	logs := NewRefreshLogStore(s.db)
	id := s.createDocument(true, nil)
	now := time.Now()

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := docs.UpdateSections(ctx, id, []domain.Section{
			{Name: "overview", Label: "Overview", Content: "Should roll back."},
		}); err != nil {
			return err
		}
		if err := logs.Append(ctx, &domain.RefreshLogEntry{
			DocumentID: id, Timestamp: now, Kind: domain.LogScheduled, Message: "rolled back",
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	doc, err := docs.Get(s.ctx, id)
	s.NoError(err)
	overview, _ := doc.Section("overview")
	s.Equal("Myrcene is a monoterpene.", overview.Content)

	entries, err := logs.Recent(s.ctx, id, 10)
	s.NoError(err)
	s.Empty(entries)
}
