// Package api exposes the proxy over HTTP.
//
// Every JSON answer uses the Response envelope. Protected routes need an
// "Authorization: Bearer <token>" header whose token is forwarded to the
// portal unchanged.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/dkhp-proxy/pkg/batch"
	"github.com/Sternrassler/dkhp-proxy/pkg/metrics"
	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

// Portal is the portal surface the handlers call directly. *portal.Client implements it.
type Portal interface {
	Login(ctx context.Context, username, password string) (string, error)
	Periods(ctx context.Context, token string) ([]portal.Period, error)
	Registrations(ctx context.Context, token string, periodID int64) ([]portal.Registration, error)
	CancelRegistration(ctx context.Context, token, registrationID string) error
}

// Aggregator builds the aggregated view of a period. *batch.Aggregator implements it.
type Aggregator interface {
	Collect(ctx context.Context, token string, periodID int64) ([]batch.Record, error)
}

// Registrar registers many classes at once. *batch.Registrar implements it.
type Registrar interface {
	RegisterAll(ctx context.Context, token string, classIDs []int64) map[int64]batch.Outcome
}

// HealthChecker reports readiness. *health.Tracker implements it.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Service represents the proxy API service.
type Service struct {
	Portal     Portal
	Aggregator Aggregator
	Registrar  Registrar

	// Health is optional; without it /ready always answers OK.
	Health HealthChecker

	// Static serves the browser UI at / and its assets under /static/. Optional.
	Static http.Handler

	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string

	Logger zerolog.Logger
}

// Router builds the HTTP handler of the service.
func (s *Service) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(hlog.NewHandler(s.Logger))
	router.Use(middlewareRequestID)
	router.Use(middlewareAccessLog())
	router.Use(middlewareRecover)
	router.Use(middlewareMetrics)
	router.Use(cors.Handler(s.corsOptions()))
	router.Use(middleware.RequestSize(maxBodyBytes))

	router.NotFound(func(rw http.ResponseWriter, _ *http.Request) {
		writeError(rw, http.StatusNotFound, "Resource not found")
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, _ *http.Request) {
		writeError(rw, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.Get("/health", s.EndpointHealth)
	router.Get("/ready", s.EndpointReady)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.registerEndpoints(router)
	router.Route("/api", s.registerLegacyEndpoints)

	if s.Static != nil {
		router.Get("/", s.Static.ServeHTTP)
		router.Get("/static/*", s.Static.ServeHTTP)
	}

	return router
}

func (s *Service) registerEndpoints(router chi.Router) {
	router.Post("/login", s.EndpointLogin)

	router.Group(func(r chi.Router) {
		r.Use(s.middlewareBearer)

		r.Get("/periods", s.EndpointPeriods)
		r.Get("/aggregated", s.EndpointAggregated)
		r.Get("/registrations", s.EndpointRegistrations)
		r.Post("/registrations", s.EndpointRegister)
		r.Delete("/registrations", s.EndpointCancelMissingID)
		r.Delete("/registrations/{regId}", s.EndpointCancel)
	})
}

// registerLegacyEndpoints mounts the route names of the first release.
func (s *Service) registerLegacyEndpoints(router chi.Router) {
	router.Post("/login", s.EndpointLogin)

	router.Group(func(r chi.Router) {
		r.Use(s.middlewareBearer)

		r.Get("/dots", s.EndpointPeriods)
		r.Get("/all_data", s.EndpointAggregated)
		r.Get("/registered", s.EndpointRegistrations)
		r.Post("/register", s.EndpointRegister)
		r.Delete("/cancel", s.EndpointCancelMissingID)
		r.Delete("/cancel/{regId}", s.EndpointCancel)
	})
}

func (s *Service) corsOptions() cors.Options {
	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}
}
