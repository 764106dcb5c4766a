// Package api is the thin HTTP adapter in front of the pool: it only
// translates HTTP requests into pool.ContextPool calls and back, per
// spec.md's "out of scope... a thin adapter" note.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/ashcrew/ctxpoold/internal/logging"
	"github.com/ashcrew/ctxpoold/internal/pool"
)

// Config configures the adapter's own concerns: CORS and coarse
// per-IP throttling. Distinct from (and in addition
// to) the pool's own per-context domain RateLimiter.
type Config struct {
	RequestsPerMinute  int
	CORSAllowedOrigins []string
}

// Server wires chi routes onto a ContextPool.
type Server struct {
	pool   *pool.ContextPool
	router chi.Router
}

// NewServer builds the router. Call Handler to get an http.Handler.
func NewServer(p *pool.ContextPool, cfg Config) *Server {
	s := &Server{pool: p}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "PATCH"},
		AllowedHeaders: []string{"*"},
	}))
	if cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))
	}

	r.Post("/scrape", s.handleScrape)
	r.Route("/contexts", func(r chi.Router) {
		r.Get("/", s.handleListContexts)
		r.Post("/", s.handleCreateContext)
		r.Delete("/{id}", s.handleDeleteContext)
		r.Post("/{id}/tags", s.handleAddTags)
		r.Delete("/{id}/tags", s.handleRemoveTags)
	})
	r.Get("/healthz", s.handleHealthz)

	s.router = r
	return s
}

// Handler returns the adapter as a plain http.Handler, for
// http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.router }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warnf("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
