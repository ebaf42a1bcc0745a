package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"plexautoskip/internal/skipper"
	"plexautoskip/internal/store"
)

// Server is the read-only status API: live registry snapshot plus the skip
// history.
type Server struct {
	router  chi.Router
	store   *store.Store
	skipper *skipper.Skipper
}

func NewServer(s *store.Store, sk *skipper.Skipper) *Server {
	srv := &Server{
		router:  chi.NewRouter(),
		store:   s,
		skipper: sk,
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
