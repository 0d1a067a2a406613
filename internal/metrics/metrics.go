package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const routeLabelKey ctxKey = "metrics_route"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeos_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeos_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifeos_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifeos_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeos_calendar_sync_runs_total",
		Help: "Calendar sync invocations by provider and outcome.",
	}, []string{"provider", "result"})

	syncEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeos_calendar_sync_events_total",
		Help: "Events moved by calendar sync, by provider and direction (pull or push).",
	}, []string{"provider", "direction"})

	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeos_oauth_token_refreshes_total",
		Help: "OAuth access token refresh attempts by provider and outcome.",
	}, []string{"provider", "result"})

	reminderEmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeos_reminder_emails_total",
		Help: "Reminder emails by job and outcome.",
	}, []string{"job", "result"})
)

// Middleware records request metrics and stores the route label for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			// The route pattern is only resolved after chi has matched, so the
			// label is read back once the handler returns.
			ctx := context.WithValue(r.Context(), routeLabelKey, r.URL.Path)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// ObserveSyncRun counts one sync invocation.
func ObserveSyncRun(provider, result string) {
	syncRunsTotal.WithLabelValues(provider, result).Inc()
}

// AddSyncedEvents counts events pulled or pushed by a sync run.
func AddSyncedEvents(provider, direction string, n int) {
	if n <= 0 {
		return
	}
	syncEventsTotal.WithLabelValues(provider, direction).Add(float64(n))
}

// ObserveTokenRefresh counts one refresh attempt.
func ObserveTokenRefresh(provider string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	tokenRefreshesTotal.WithLabelValues(provider, result).Inc()
}

// ObserveReminderEmail counts one reminder email send.
func ObserveReminderEmail(job string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	reminderEmailsTotal.WithLabelValues(job, result).Inc()
}

func routeFromContext(ctx context.Context) string {
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
