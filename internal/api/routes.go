// Package api provides the REST API for the analyst service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BV-BRC/sheet-analyst/internal/analysis"
	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/config"
	"github.com/BV-BRC/sheet-analyst/internal/metrics"
	"github.com/BV-BRC/sheet-analyst/pkg/auth"
)

// Server is the HTTP server for the analyst API.
type Server struct {
	config    *config.Config
	validator *auth.KeyValidator
	limiter   *rate.Limiter
	metrics   *metrics.Collector
	logger    *zap.Logger
	router    chi.Router
	handler   *Handler
}

// NewServer creates a new API server. collector may be nil.
func NewServer(cfg *config.Config, engine *analysis.Engine, charts *chart.Store, collector *metrics.Collector, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:  cfg,
		metrics: collector,
		logger:  logger.With(zap.String("component", "api")),
	}

	if cfg.Auth.Enabled {
		v, err := auth.NewKeyValidator(cfg.Auth.APIKeys)
		if err != nil {
			return nil, err
		}
		s.validator = v
	}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}

	s.handler = NewHandler(cfg, engine, charts, s.logger)
	s.router = s.setupRoutes()
	return s, nil
}

// setupRoutes configures the router with all API routes.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.MetricsMiddleware)
	if s.config.Server.WriteTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.WriteTimeout))
	}

	r.Get("/", s.handler.Root)
	r.Get("/health", s.handler.HealthCheck)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/plots/{name}", s.handler.ServePlot)

	r.Route("/api/v1", func(r chi.Router) {
		if s.validator != nil {
			r.Use(s.AuthMiddleware)
		}

		// Only model-backed requests spend model quota.
		r.With(s.RateLimitMiddleware).Post("/analyze", s.handler.Analyze)
		r.Post("/execute", s.handler.Execute)
		r.Get("/policy", s.handler.Policy)
	})

	return r
}

// AuthMiddleware validates the API key.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing authentication token", Type: "unauthorized"})
			return
		}

		p, err := s.validator.Validate(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid authentication token", Type: "unauthorized"})
			return
		}

		ctx := auth.SetPrincipalInContext(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware rejects requests beyond the configured rate.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests", Type: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MetricsMiddleware records request counts and latency by route pattern.
func (s *Server) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the chi router for custom configuration.
func (s *Server) Router() chi.Router {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
