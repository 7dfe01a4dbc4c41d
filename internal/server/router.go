// Package server assembles the HTTP router and middleware chain.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	analyticshandler "event-analytics-api/internal/analytics/handler"
	archivalhandler "event-analytics-api/internal/archival/handler"
	audithandler "event-analytics-api/internal/audit/handler"
	authhandler "event-analytics-api/internal/auth/handler"
	eventhandler "event-analytics-api/internal/event/handler"
	"event-analytics-api/internal/server/middleware"
)

// RouterConfig carries the wired handlers and middleware for NewRouter.
type RouterConfig struct {
	Auth        *authhandler.Handler
	Events      *eventhandler.Handler
	Stats       *analyticshandler.Handler
	ColdStorage *archivalhandler.Handler
	AuditLogs   *audithandler.Handler

	RequireAuth func(http.Handler) http.Handler
	IPRateLimit func(http.Handler) http.Handler

	Log     zerolog.Logger
	Metrics bool // expose /metrics
}

// NewRouter builds the full API router under /api/v1 plus /health and
// /metrics at the root.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(middleware.CaptureRemoteAddr)
	r.Use(loggerMiddleware(cfg.Log))
	r.Use(chimid.Recoverer)
	if cfg.IPRateLimit != nil {
		r.Use(cfg.IPRateLimit)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", cfg.Auth.Signup)
			r.Post("/login", cfg.Auth.Login)
			r.Post("/refresh", cfg.Auth.Refresh)
			r.Post("/logout", cfg.Auth.Logout)
			r.Group(func(r chi.Router) {
				r.Use(cfg.RequireAuth)
				r.Post("/logout-all", cfg.Auth.LogoutAll)
				r.Get("/me", cfg.Auth.Me)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin)
					r.Post("/grant-admin", cfg.Auth.GrantAdmin)
				})
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Use(cfg.RequireAuth)
			r.Post("/", cfg.Events.Create)
			r.Post("/batch", cfg.Events.CreateBatch)
			r.Get("/", cfg.Events.List)
			r.Get("/{id}", cfg.Events.Get)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Use(cfg.RequireAuth)
			r.Get("/summary", cfg.Stats.Summary)
			r.Get("/dau", cfg.Stats.DAU)
			r.Get("/top", cfg.Stats.Top)
			r.Get("/retention", cfg.Stats.Retention)
		})

		r.Route("/cold-storage", func(r chi.Router) {
			r.Use(cfg.RequireAuth)
			r.Get("/health", cfg.ColdStorage.Health)
			r.Get("/dau-fast", cfg.ColdStorage.DAUFast)
			r.Get("/top-events-fast", cfg.ColdStorage.TopEventsFast)
			r.Get("/retention-cohort", cfg.ColdStorage.RetentionCohort)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/archive-now", cfg.ColdStorage.ArchiveNow)
				r.Get("/archival-status", cfg.ColdStorage.Status)
				r.Get("/archival-status/{ticket}", cfg.ColdStorage.Status)
				r.Get("/archival-candidates", cfg.ColdStorage.Candidates)
				r.Get("/archival-integrity", cfg.ColdStorage.Integrity)
				r.Get("/storage-comparison", cfg.ColdStorage.StorageComparison)
			})
		})

		r.Route("/audit-logs", func(r chi.Router) {
			r.Use(cfg.RequireAuth)
			r.Use(middleware.RequireAdmin)
			r.Get("/", cfg.AuditLogs.List)
			r.Get("/{id}", cfg.AuditLogs.Get)
		})
	})

	return r
}

func loggerMiddleware(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := chimid.GetReqID(r.Context())
			log.Info().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("request")
			next.ServeHTTP(w, r)
		})
	}
}
