package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/lifeos/internal/auth"
	"github.com/jw6ventures/lifeos/internal/config"
	"github.com/jw6ventures/lifeos/internal/functions"
	"github.com/jw6ventures/lifeos/internal/http/ratelimit"
	"github.com/jw6ventures/lifeos/internal/http/respond"
	"github.com/jw6ventures/lifeos/internal/metrics"
)

// HealthChecker reports whether the backing database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter wires the health, metrics and function endpoints.
func NewRouter(cfg *config.Config, health HealthChecker, authService *auth.Service, fn *functions.Handler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Functions: 10 requests per second, burst of 20 per client
	fnLimiter := ratelimit.New(rate.Limit(10), 20, 5*time.Minute, cfg.TrustedProxies)

	// No middleware.RealIP: the limiter resolves forwarded addresses only
	// from trusted proxies and must see the real peer address.
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(logger))
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(cors(cfg.CORSAllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.HealthCheck(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("readiness check failed")
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(fnLimiter.Middleware())

		r.Group(func(r chi.Router) {
			r.Use(authService.RequireBearer)
			r.Use(authService.RequireAAL2)
			r.Post("/google-calendar-sync", fn.GoogleCalendarSync)
			r.Post("/microsoft-calendar-sync", fn.MicrosoftCalendarSync)
		})

		r.Group(func(r chi.Router) {
			r.Use(authService.RequireServiceKey)
			r.Post("/send-habit-reminders", fn.SendHabitReminders)
			r.Post("/send-task-reminders", fn.SendTaskReminders)
			r.Post("/send-family-reminders", fn.SendFamilyReminders)
		})
	})

	return r
}

func accessLog(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(next)
}
