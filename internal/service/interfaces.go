package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"content_refresher/internal/domain"
)

type DocumentStore interface {
	Get(ctx context.Context, id int64) (*domain.Document, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Document, error)
	UpdateSections(ctx context.Context, id int64, sections []domain.Section) error
	UpdateSchedule(ctx context.Context, id int64, schedule domain.RefreshSchedule) error
}

type RefreshLogStore interface {
	Append(ctx context.Context, entry *domain.RefreshLogEntry) error
	Recent(ctx context.Context, documentID int64, limit int) ([]domain.RefreshLogEntry, error)
}

type GenerationClient interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, job domain.RefreshJob, delay time.Duration) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker grants short-lived exclusive leases identified by an owner token.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
}

type Clock interface {
	Now() time.Time
}
