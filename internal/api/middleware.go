package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"content_refresher/internal/auth"
)

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractToken(r.Header.Get("Authorization"))
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Debug("rejected token", "error", err)
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// requireEditor runs before any handler work, so callers without rights never
// reach the store or the generation service.
func (s *Server) requireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseDocumentID(r)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "invalid document id")
			return
		}

		claims, _ := auth.ClaimsFromContext(r.Context())
		if !claims.CanEdit(id) {
			s.logger.Info("refresh access denied", "document_id", id, "subject", claims.Subject)
			s.respondError(w, http.StatusForbidden, "permission denied")
			return
		}

		next.ServeHTTP(w, r.WithContext(withDocumentID(r.Context(), id)))
	})
}
