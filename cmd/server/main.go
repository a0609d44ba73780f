// Package main is the entrypoint for the MindAlert API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/mindalert/internal/ai"
	"github.com/kiranshivaraju/mindalert/internal/alert"
	"github.com/kiranshivaraju/mindalert/internal/api"
	"github.com/kiranshivaraju/mindalert/internal/api/handler"
	mw "github.com/kiranshivaraju/mindalert/internal/api/middleware"
	"github.com/kiranshivaraju/mindalert/internal/api/response"
	"github.com/kiranshivaraju/mindalert/internal/blob"
	"github.com/kiranshivaraju/mindalert/internal/cache"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/internal/intake"
	"github.com/kiranshivaraju/mindalert/internal/mailer"
	"github.com/kiranshivaraju/mindalert/internal/pipeline"
	"github.com/kiranshivaraju/mindalert/internal/store"
	"github.com/kiranshivaraju/mindalert/internal/transcribe/whisper"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"storage", cfg.Storage.Backend,
		"smtp_tls", cfg.SMTP.TLSMode,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		defer c.Close()
	}

	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	pgStore := store.NewPostgresStore(pool)

	alerts := alert.NewManager(pgStore, mailer.NewSMTP(cfg.SMTP), redisCache, cfg.Delivery)
	sweeper := alert.NewSweeper(alerts, cfg.Delivery)

	orch := pipeline.New(pipeline.Deps{
		Intake:      intake.NewGate(pgStore, blobs, intake.FFProbe{Binary: cfg.Intake.FFProbePath}, cfg.Intake),
		Transcriber: whisper.NewClient(cfg.Transcribe, blobs),
		Analyzer:    ai.NewEngine(aiProvider, ai.WithMaxAttempts(cfg.AI.MaxAttempts)),
		Alerts:      alerts,
		Store:       pgStore,
		Cache:       redisCache,
	}, cfg.Pipeline)

	router := api.NewRouter(routes(cfg, pgStore, redisCache, orch, alerts))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("alert sweeper started", "interval", cfg.Delivery.SweepInterval)
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if err := orch.Wait(shutdownCtx); err != nil {
			slog.Warn("pipeline runs still in flight at shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

func routes(cfg *config.Config, s store.Store, c cache.Cache, orch *pipeline.Orchestrator, alerts *alert.Manager) api.Dependencies {
	return api.Dependencies{
		UserAuth:     mw.NewUserAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		OperatorAuth: mw.NewAuth(s),
		RateLimit:    mw.NewRateLimit(c, cfg.Server.RequestsPerMinute),

		HealthHandler:  healthHandler(s, c),
		MetricsHandler: promhttp.Handler(),

		UploadAudio:       handler.NewUploadAudioHandler(orch, cfg.Intake.MaxFileBytes),
		SubmissionStatus:  handler.NewSubmissionStatusHandler(orch),
		AnalyzeOnboarding: handler.NewAnalyzeOnboardingHandler(orch),

		ListAlerts:  handler.NewListAlertsHandler(alerts),
		GetAlert:    handler.NewGetAlertHandler(alerts),
		DeleteAlert: handler.NewDeleteAlertHandler(alerts),
		AlertStats:  handler.NewAlertStatsHandler(alerts),
		AlertTypes:  handler.NewAlertTypesHandler(),
		RetryFailed: handler.NewRetryFailedHandler(alerts),

		DeadAlerts: handler.NewDeadAlertsHandler(alerts),
		AdminRetry: handler.NewAdminRetryHandler(alerts),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
