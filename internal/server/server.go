package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/decaytrack/internal/config"
	"github.com/lazypower/decaytrack/internal/engine"
	"github.com/lazypower/decaytrack/internal/store"
)

// Server is the decaytrack HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	auth    config.AuthConfig
	logger  *slog.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the engine's database.
func New(eng *engine.Engine, auth config.AuthConfig, version string) *Server {
	s := &Server{
		db:      eng.DB,
		engine:  eng,
		auth:    auth,
		logger:  eng.Logger,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(s.logRequests)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.identify)

			r.Route("/items", func(r chi.Router) {
				r.Get("/", s.handleListItems)
				r.Post("/", s.handleCreateItem)
				r.Get("/decaying", s.handleListDecaying)
				r.Get("/{id}", s.handleGetItem)
				r.Patch("/{id}", s.handleUpdateItem)
				r.Delete("/{id}", s.handleDeleteItem)
				r.Post("/{id}/review", s.handleSubmitReview)
				r.Get("/{id}/reviews", s.handleListReviews)
			})

			r.Route("/insights", func(r chi.Router) {
				r.Get("/summary", s.handleSummary)
				r.Get("/weakest", s.handleWeakest)
				r.Get("/hardest", s.handleHardest)
				r.Get("/timeline", s.handleTimeline)
				r.Get("/upcoming-forgets", s.handleUpcomingForgets)
				r.Get("/most-reviewed", s.handleMostReviewed)
				r.Get("/sleep-impact", s.handleSleepImpact)
			})
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
