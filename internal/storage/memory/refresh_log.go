package memory

import (
	"context"
	"sync"

	"content_refresher/internal/domain"
)

type RefreshLogStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[int64][]domain.RefreshLogEntry
}

func NewRefreshLogStore() *RefreshLogStore {
	return &RefreshLogStore{entries: make(map[int64][]domain.RefreshLogEntry)}
}

// Append stores entry and drops the oldest entries beyond domain.RefreshLogCap.
func (s *RefreshLogStore) Append(_ context.Context, entry *domain.RefreshLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	entry.ID = s.nextID

	e := *entry
	e.Changes = append([]string{}, entry.Changes...)

	list := append(s.entries[e.DocumentID], e)
	if over := len(list) - domain.RefreshLogCap; over > 0 {
		list = append([]domain.RefreshLogEntry(nil), list[over:]...)
	}
	s.entries[e.DocumentID] = list
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *RefreshLogStore) Recent(_ context.Context, documentID int64, limit int) ([]domain.RefreshLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.entries[documentID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}

	out := make([]domain.RefreshLogEntry, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		e := list[i]
		e.Changes = append([]string{}, e.Changes...)
		out = append(out, e)
	}
	return out, nil
}
