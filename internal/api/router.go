package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-syncsign/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/entries", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermEntryManage))
				r.Get("/", s.handleListEntries)
				r.Post("/", s.handleCreateEntry)
				r.Post("/validate", s.handleValidateEntry)
				r.Get("/{id}", s.handleGetEntry)
				r.Delete("/{id}", s.handleDeleteEntry)
			})

			r.Route("/entities", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermEntityRead)).Get("/", s.handleListEntities)
				r.With(s.requirePermission(auth.PermEntityRead)).Get("/{id}", s.handleGetEntity)
				r.With(s.requirePermission(auth.PermDisplayWrite)).Post("/{id}/display", s.handleEntityDisplay)
			})

			r.With(s.requirePermission(auth.PermDisplayWrite)).
				Post("/services/update_display", s.handleUpdateDisplayService)

			r.With(s.requirePermission(auth.PermEntryManage)).Get("/audit", s.handleListAuditLogs)

			r.With(s.requirePermission(auth.PermEntityRead)).Get(s.wsPath(), s.handleStream)
		})
	})

	return r
}

// handleHealth returns the bridge's current health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.bridge.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"bridge":  h.Status,
		"entries": h.Entries,
	})
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
