package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/wikiadf/internal/config"
	"github.com/dgallion1/wikiadf/internal/convert"
	"github.com/dgallion1/wikiadf/internal/metrics"
)

// Server is the HTTP API server for wikiadf.
type Server struct {
	router  chi.Router
	conv    *convert.Converter
	cache   *convert.Cache
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     config.Config
}

// NewServer creates and configures the HTTP server. cache and m may be nil.
func NewServer(conv *convert.Converter, cache *convert.Cache, m *metrics.Metrics, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		conv:    conv,
		cache:   cache,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Authenticated endpoints when an API key is configured.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/convert", s.handleConvert)
		r.Post("/api/preview", s.handlePreview)
		r.Post("/api/import", s.handleImport)
		r.Post("/api/import/batch", s.handleBatchImport)
		r.Get("/api/compat", s.handleCompat)
		r.Get("/api/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
