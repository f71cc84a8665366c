package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Door access decision
			r.Post("/access/door-open", s.handleDoorOpen)

			// Power-off task endpoints
			r.Route("/tasks", func(r chi.Router) {
				r.With(s.requireAdmin).Get("/", s.handleListTasks)
				r.Get("/{bookingID}", s.handleGetTask)
				r.With(s.requireAdmin).Post("/{bookingID}/cancel", s.handleCancelTask)
			})

			// Audit trail (admin only)
			r.With(s.requireAdmin).Get("/audit", s.handleListAudit)

			// Scheduler health (admin only)
			r.With(s.requireAdmin).Get("/scheduler/health", s.handleSchedulerHealth)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
