// Package server exposes the plot search HTTP surface: the search endpoint,
// single-plot lookup, cache diagnostics, health, and Prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/plotwise/landmatch/internal/cache"
	"github.com/plotwise/landmatch/internal/engine"
	"github.com/plotwise/landmatch/internal/observability"
)

// Server wires the lookup pipeline behind the HTTP API. All dependencies are
// injected; the server owns no global state.
type Server struct {
	engine  *engine.ParallelQuery
	cache   *cache.PlotCache
	metrics *observability.Metrics
	limiter *rate.Limiter
	origins []string

	router chi.Router
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics wires request instrumentation and the /metrics endpoint data.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimit caps request throughput across all clients. rps <= 0 leaves
// the server unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithAllowedOrigins sets the CORS allow-list. Empty means same-origin only.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New builds the HTTP server over the query engine and plot cache.
func New(eng *engine.ParallelQuery, plotCache *cache.PlotCache, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		cache:  plotCache,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(recoverJSON)
	r.Use(requestLogger)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Post("/plots/search", s.handleSearch)
		r.Get("/plots/{landNumber}", s.handleGetPlot)
		r.Get("/cache/stats", s.handleCacheStats)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorResponse is the non-200 envelope: validation failures and unexpected
// errors alike. Detail beyond the message stays in server logs.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func (s *Server) countRequest(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchRequests.WithLabelValues(outcome).Inc()
}
