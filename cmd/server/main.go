// Package main is the entrypoint for the imgjobs console server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/imgjobs/internal/api"
	"github.com/kiranshivaraju/imgjobs/internal/api/handler"
	mw "github.com/kiranshivaraju/imgjobs/internal/api/middleware"
	"github.com/kiranshivaraju/imgjobs/internal/api/response"
	"github.com/kiranshivaraju/imgjobs/internal/cache"
	"github.com/kiranshivaraju/imgjobs/internal/config"
	"github.com/kiranshivaraju/imgjobs/internal/imageapi"
	"github.com/kiranshivaraju/imgjobs/internal/jobs"
	"github.com/kiranshivaraju/imgjobs/internal/poller"
	"github.com/kiranshivaraju/imgjobs/internal/session"
	"github.com/kiranshivaraju/imgjobs/internal/store"
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
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"backend", cfg.Backend.BaseURL,
		"poll_interval", cfg.Backend.PollInterval,
		"env", cfg.Server.Env,
		"history", cfg.Database.URL != "",
		"cache", cfg.Redis.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Job history (optional)
	var jobStore store.Store
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		jobStore = store.NewPostgresStore(pool)
	}

	// 3. Status cache (optional)
	var statusCache cache.Cache = cache.Nop{}
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		statusCache = redisCache
	}

	// 4. Backend client, poller and session
	client := imageapi.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	p := poller.New(client, cfg.Backend.PollInterval)
	sess := session.New()
	svc := jobs.NewService(client, p, sess, jobStore, statusCache, cfg.Console.StatusTTL)
	defer svc.Close()
	slog.Info("session created", "session_id", sess.ID())

	// 5. Build router with dependencies
	auth := mw.NewAuth(cfg.Console.TokenHash)
	if !auth.Enabled() {
		slog.Warn("console authentication disabled; set IMGJOBS_CONSOLE_TOKEN_HASH to enable it")
	}

	var origins []string
	if cfg.Server.Env == "development" {
		origins = []string{"*"}
	}

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(statusCache, cfg.Console.RequestsPerMinute),

		HealthHandler: healthHandler(client, jobStore, statusCache),

		SubmitHandler:   handler.NewSubmitHandler(svc, handler.DefaultMaxUpload),
		ListJobsHandler: handler.NewListJobsHandler(svc),
		GetJobHandler:   handler.NewGetJobHandler(svc),
		ResultHandler:   handler.NewResultHandler(svc),

		GetSessionHandler:   handler.NewGetSessionHandler(sess),
		ResetSessionHandler: handler.NewResetSessionHandler(svc),
		StreamHandler:       handler.NewStreamHandler(sess, origins),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		// Websocket streams stay open; per-message deadlines are set by the handler.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is anything whose connectivity the health check can probe.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks backend, database and cache connectivity. Components
// that are not configured report "disabled" and do not degrade health.
func healthHandler(backend pinger, s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"backend":  probe(r.Context(), backend),
			"database": "disabled",
			"cache":    "disabled",
		}
		if s != nil {
			checks["database"] = probe(r.Context(), s)
		}
		if _, nop := c.(cache.Nop); !nop && c != nil {
			checks["cache"] = probe(r.Context(), c)
		}

		for _, state := range checks {
			if state == "degraded" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

func probe(ctx context.Context, p pinger) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		slog.Warn("health probe failed", "error", err)
		return "degraded"
	}
	return "ok"
}
