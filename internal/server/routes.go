package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/skips", s.handleListSkips)
		r.Get("/stats", s.handleGetStats)
	})
}
