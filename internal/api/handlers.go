package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"content_refresher/internal/domain"
)

const defaultLogLimit = 10

type refreshResponse struct {
	Message         string   `json:"message"`
	Changed         bool     `json:"changed"`
	ChangedSections []string `json:"changed_sections"`
}

type refreshLogResponse struct {
	DocumentID int64                    `json:"document_id"`
	Entries    []domain.RefreshLogEntry `json:"entries"`
}

type settingsRequest struct {
	Enabled   *bool  `json:"enabled"`
	Frequency string `json:"frequency"`
}

type scheduleResponse struct {
	DocumentID    int64      `json:"document_id"`
	Enabled       bool       `json:"enabled"`
	Frequency     string     `json:"frequency"`
	LastRefreshAt *time.Time `json:"last_refresh_at"`
	NextRefreshAt *time.Time `json:"next_refresh_at"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := documentIDFromContext(r.Context())

	// A started refresh runs to completion even if the client goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.requestTimeout())
	defer cancel()

	outcome, err := s.refresher.Refresh(ctx, id, domain.TriggerManual)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	changed := outcome.ChangedSections
	if changed == nil {
		changed = []string{}
	}
	s.respondJSON(w, http.StatusOK, refreshResponse{
		Message:         outcome.Message(),
		Changed:         len(changed) > 0,
		ChangedSections: changed,
	})
}

func (s *Server) handleRefreshLog(w http.ResponseWriter, r *http.Request) {
	id := documentIDFromContext(r.Context())

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.refresher.History(r.Context(), id, limit)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.RefreshLogEntry{}
	}

	s.respondJSON(w, http.StatusOK, refreshLogResponse{DocumentID: id, Entries: entries})
}

func (s *Server) handleRefreshSettings(w http.ResponseWriter, r *http.Request) {
	id := documentIDFromContext(r.Context())

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Enabled == nil {
		s.respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	schedule, err := s.settings.Update(r.Context(), id, *req.Enabled, req.Frequency)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, scheduleResponse{
		DocumentID:    id,
		Enabled:       schedule.Enabled,
		Frequency:     string(schedule.Frequency),
		LastRefreshAt: schedule.LastRefreshAt,
		NextRefreshAt: schedule.NextRefreshAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type documentIDKey struct{}

func parseDocumentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func withDocumentID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, documentIDKey{}, id)
}

// documentIDFromContext returns the id validated by requireEditor.
func documentIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(documentIDKey{}).(int64)
	return id
}

func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var genErr *domain.GenerationError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, domain.ErrUnknownTemplate):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrRefreshInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidFrequency):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &genErr):
		s.respondError(w, http.StatusBadGateway, "Refresh failed: "+genErr.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
