// Command streamwatch is the main entrypoint for the live-status API and background workers.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres (or SQLite for local use) and runs idempotent migrations.
//   - Shares one cached Twitch app token between every status lookup.
//   - Starts the detached status-write queue and, when RECONCILE_INTERVAL is set,
//     an in-process global reconciliation loop.
//   - Exposes the HTTP API with /healthz, /readyz, /metrics and the cron trigger.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/streamwatch/clipsource"
	"github.com/onnwee/streamwatch/config"
	"github.com/onnwee/streamwatch/db"
	"github.com/onnwee/streamwatch/reconcile"
	"github.com/onnwee/streamwatch/server"
	"github.com/onnwee/streamwatch/social"
	"github.com/onnwee/streamwatch/streamer"
	"github.com/onnwee/streamwatch/telemetry"
	"github.com/onnwee/streamwatch/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("streamwatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, dialect, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"), slog.String("dialect", string(dialect)))
	if err := db.Setup(database, dialect); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	tokens := &twitchapi.TokenSource{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		TokenURL:     cfg.TwitchTokenURL,
		HTTPClient:   httpClient,
	}
	helix := &twitchapi.HelixClient{
		AppTokenSource:           tokens,
		ClientID:                 cfg.TwitchClientID,
		BaseURL:                  cfg.TwitchHelixURL,
		HTTPClient:               httpClient,
		InvalidateOnUnauthorized: cfg.TwitchInvalidateOn401,
	}

	// Best-effort: warm the app token so the first request doesn't pay for the exchange.
	if cfg.ValidateTwitchReady() == nil {
		warmCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if tok, err := tokens.Get(warmCtx); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		cancel()
	} else {
		slog.Warn("twitch credentials not configured; live status will not refresh")
	}

	store := streamer.NewStore(database, dialect)
	persister := reconcile.NewPersister(store, cfg.PersistWorkers, cfg.PersistQueueSize, cfg.HTTPClientTimeout)
	reconciler := reconcile.New(store, helix, persister, reconcile.Options{UpdateConcurrency: cfg.UpdateConcurrency})

	schedulerDone := reconcile.StartScheduler(ctx, reconciler, cfg.ReconcileInterval)
	if cfg.ReconcileInterval > 0 {
		slog.Info("scheduled reconciliation enabled", slog.Duration("interval", cfg.ReconcileInterval))
	}

	startPprof()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		err := server.Start(ctx, server.Deps{
			DB:             database,
			Store:          store,
			ClipSources:    clipsource.NewStore(database, dialect),
			SocialAccounts: social.NewStore(database, dialect),
			Reconciler:     reconciler,
			CronSecret:     cfg.CronSecret,
			TwitchReady:    cfg.ValidateTwitchReady,
		}, cfg.HTTPAddr)
		if err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()
	slog.Info("http server listening", slog.String("addr", cfg.HTTPAddr))

	<-ctx.Done()
	slog.Info("shutting down")
	<-serverDone
	<-schedulerDone

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := persister.Close(drainCtx); err != nil {
		slog.Warn("status write queue did not drain", slog.Any("err", err))
	}
}

// setupLogging configures slog from LOG_LEVEL (debug|info|warn|error) and LOG_FORMAT (text|json).
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// startPprof exposes /debug/pprof on PPROF_ADDR when ENABLE_PPROF=1.
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
