// Package memory provides in-process stores for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"content_refresher/internal/domain"
)

type DocumentStore struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[int64]*domain.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[int64]*domain.Document)}
}

func (s *DocumentStore) Create(_ context.Context, doc *domain.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	doc.ID = s.nextID
	if !doc.RefreshFrequency.Valid() {
		doc.RefreshFrequency = domain.DefaultFrequency
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	s.docs[doc.ID] = cloneDocument(doc)
	return doc.ID, nil
}

func (s *DocumentStore) Get(_ context.Context, id int64) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *DocumentStore) FindDue(_ context.Context, now time.Time, limit int) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []domain.Document
	for _, doc := range s.docs {
		if !doc.IsDue(now) {
			continue
		}
		due = append(due, *cloneDocument(doc))
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRefreshAt.Equal(*due[j].NextRefreshAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextRefreshAt.Before(*due[j].NextRefreshAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *DocumentStore) UpdateSections(_ context.Context, id int64, sections []domain.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return domain.ErrNotFound
	}

	for _, sec := range sections {
		replaced := false
		for i := range doc.Sections {
			if doc.Sections[i].Name == sec.Name {
				doc.Sections[i].Label = sec.Label
				doc.Sections[i].Content = sec.Content
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Sections = append(doc.Sections, sec)
		}
	}
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *DocumentStore) UpdateSchedule(_ context.Context, id int64, schedule domain.RefreshSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.ApplySchedule(domain.RefreshSchedule{
		Enabled:       schedule.Enabled,
		Frequency:     schedule.Frequency,
		LastRefreshAt: cloneTime(schedule.LastRefreshAt),
		NextRefreshAt: cloneTime(schedule.NextRefreshAt),
	})
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneDocument(doc *domain.Document) *domain.Document {
	c := *doc
	c.Sections = append([]domain.Section(nil), doc.Sections...)
	c.LastRefreshAt = cloneTime(doc.LastRefreshAt)
	c.NextRefreshAt = cloneTime(doc.NextRefreshAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
