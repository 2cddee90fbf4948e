// Package api exposes the lead operations over HTTP: secret-authenticated
// scraper endpoints and JWT-authenticated operator callables.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/lead-pipeline/internal/dedupe"
	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/leads"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/model"
)

const (
	maxBodyBytes   = 10 << 20
	requestTimeout = 120 * time.Second
	longTimeout    = 300 * time.Second
)

// Enricher runs an enrichment pass.
type Enricher interface {
	Run(ctx context.Context, req enrich.Request) (*enrich.Result, error)
}

// Deduper runs a dedupe sweep.
type Deduper interface {
	Run(ctx context.Context) (*dedupe.Result, error)
}

// Backend is the store surface the server needs directly.
type Backend interface {
	GetOperator(ctx context.Context, id string) (*model.Operator, error)
	Ping(ctx context.Context) error
}

// Config holds the server's secrets and CORS policy.
type Config struct {
	ScraperSecret     string
	OperatorJWTSecret string
	CORSOrigins       []string
}

// Server routes HTTP requests to the lead services.
type Server struct {
	cfg     Config
	leads   *leads.Service
	enrich  Enricher
	dedupe  Deduper
	backend Backend
	metrics *metrics.Metrics
}

// New creates a Server. m may be nil.
func New(cfg Config, svc *leads.Service, enr Enricher, ded Deduper, backend Backend, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		leads:   svc,
		enrich:  enr,
		dedupe:  ded,
		backend: backend,
		metrics: m,
	}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.HandleFunc("/ingestLeads", allowMethod(http.MethodPost, s.requireScraperSecret(s.handleIngest)))
		r.HandleFunc("/exportLeads", allowMethod(http.MethodGet, s.requireScraperSecret(s.handleExport)))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(s.requireOperator)

		r.With(middleware.Timeout(requestTimeout)).Post("/getLeads", callable(s.getLeads))
		r.With(middleware.Timeout(requestTimeout)).Post("/getLeadStats", callable(s.getLeadStats))
		r.With(middleware.Timeout(requestTimeout)).Post("/updateLeadStatus", callable(s.updateLeadStatus))
		r.With(middleware.Timeout(longTimeout)).Post("/enrichLeads", callable(s.enrichLeads))
		r.With(middleware.Timeout(longTimeout)).Post("/dedupeLeads", callable(s.dedupeLeads))
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
