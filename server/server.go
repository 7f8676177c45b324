// Package server exposes the HTTP API: health, metrics, the cron-triggered global reconciliation,
// and the per-user endpoints used by the frontend (tracked accounts, clip sources, social accounts).
// It applies CORS, injects correlation IDs into request contexts, and wraps every request in a
// tracing span.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/streamwatch/telemetry"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	DB             *sql.DB
	Store          AccountStore
	ClipSources    ClipSourceStore
	SocialAccounts SocialAccountStore
	Reconciler     StatusReconciler
	// CronSecret gates the cron trigger. Empty leaves it unauthenticated.
	CronSecret string
	// TwitchReady reports whether live status can be fetched; nil means always ready.
	TwitchReady func() error
}

// NewMux returns the HTTP handler with all routes.
// The provided context is used for rate limiter cleanup goroutines lifecycle.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	rateLimiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	limited := func(next http.Handler) http.Handler { return rateLimitMiddleware(next, rateLimiter) }
	corsCfg := loadCORSConfig()

	h := NewHandlers(deps)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return withCORSConfig(next, corsCfg) })
	r.Use(requestContext)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)

	r.With(cronAuth(deps.CronSecret), limited).Get("/api/cron/update-streamers", h.HandleCronUpdateStreamers)

	r.Route("/api/users/{userID}/streamers", func(r chi.Router) {
		r.Get("/", h.HandleListStreamers)
		r.Get("/live", h.HandleListLiveStreamers)
		r.With(limited).Post("/", h.HandleCreateStreamer)
		r.With(limited).Delete("/{id}", h.HandleDeleteStreamer)
	})
	r.Route("/api/users/{userID}/clip-sources", func(r chi.Router) {
		r.Get("/", h.HandleListClipSources)
		r.With(limited).Post("/", h.HandleCreateClipSource)
		r.With(limited).Delete("/{id}", h.HandleDeleteClipSource)
	})
	r.Route("/api/users/{userID}/social-accounts", func(r chi.Router) {
		r.Get("/", h.HandleListSocialAccounts)
		r.With(limited).Post("/", h.HandleCreateSocialAccount)
		r.With(limited).Delete("/{id}", h.HandleDeleteSocialAccount)
	})
	return r
}

// requestContext injects a correlation id and a server span, and records the response status on it.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(rec, r)

		// chi fills the pattern in while routing.
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(telemetry.HTTPRouteAttr(pattern))
			}
		}
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
