// Package main is the entrypoint for the QuestForge worker server.
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

	"github.com/kiranshivaraju/questforge/internal/ai"
	"github.com/kiranshivaraju/questforge/internal/api"
	mw "github.com/kiranshivaraju/questforge/internal/api/middleware"
	"github.com/kiranshivaraju/questforge/internal/api/handler"
	"github.com/kiranshivaraju/questforge/internal/cache"
	"github.com/kiranshivaraju/questforge/internal/config"
	"github.com/kiranshivaraju/questforge/internal/dispatch"
	"github.com/kiranshivaraju/questforge/internal/execctx"
	"github.com/kiranshivaraju/questforge/internal/jobs"
	"github.com/kiranshivaraju/questforge/internal/retry"
	"github.com/kiranshivaraju/questforge/internal/scheduler"
	"github.com/kiranshivaraju/questforge/internal/store"
	"github.com/kiranshivaraju/questforge/internal/worker"
	"github.com/kiranshivaraju/questforge/pkg/models"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(execctx.NewHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"scheduler_backend", cfg.Scheduler.Backend,
		"worker_id", cfg.Worker.ID,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider and the job registry
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	registry, err := buildRegistry(aiProvider, cfg.AI.InferenceTimeout)
	if err != nil {
		return err
	}
	slog.Info("job handlers registered", "provider", aiProvider.Name(), "job_types", registry.JobTypes())

	// 6. Scheduler bridge
	publisher, err := newPublisher(cfg.Scheduler, redisCache.Client())
	if err != nil {
		return err
	}

	// 7. Worker service
	pgStore := store.NewPostgresStore(pool)
	secret := worker.NewSecret(cfg.Worker.Secret, cfg.Worker.PreviousSecretHashes)
	svc := worker.NewService(pgStore, registry, publisher, redisCache, worker.Options{
		WorkerID:           cfg.Worker.ID,
		PublicURL:          cfg.Server.PublicURL,
		Secret:             secret,
		Policy:             retry.NewPolicy(retry.Table(cfg.Worker.Backoff())),
		LeaseDuration:      cfg.Worker.LeaseDuration,
		DefaultMaxAttempts: cfg.Worker.DefaultMaxAttempts,
		SweepBatch:         cfg.Worker.SweepBatch,
	})

	if d := sweepInterval(cfg.Worker); d > 0 {
		sweepCtx, stopSweep := context.WithCancel(ctx)
		defer stopSweep()
		go svc.RunSweeper(sweepCtx, d)
		slog.Info("lease sweeper started", "interval", d)
	}

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(secret),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Worker.EnqueueRatePerMin),

		HealthHandler:    handler.NewHealthHandler(pgStore, redisCache),
		RunWorkerHandler: handler.NewRunHandler(svc),
		SweepHandler:     handler.NewSweepHandler(svc),
		CreateJobHandler: handler.NewCreateJobHandler(svc),
		GetJobHandler:    handler.NewGetJobHandler(svc),
		JobStatusHandler: handler.NewJobStatusHandler(svc),
		CancelJobHandler: handler.NewCancelJobHandler(svc),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AI.InferenceTimeout + 30*time.Second,
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

// buildRegistry registers every job handler and checks the registry covers
// exactly the declared job types.
func buildRegistry(provider models.AIProvider, timeout time.Duration) (*dispatch.Registry, error) {
	registry := dispatch.NewRegistry()
	jobs.Register(registry, provider, timeout)
	if err := registry.Validate(models.JobTypes); err != nil {
		return nil, fmt.Errorf("validate job registry: %w", err)
	}
	return registry, nil
}

// newPublisher selects the scheduler bridge backend.
func newPublisher(cfg config.SchedulerConfig, rdb *redis.Client) (scheduler.Publisher, error) {
	switch cfg.Backend {
	case "qstash":
		return scheduler.NewHTTPPublisher(cfg.QStashURL, cfg.QStashToken, cfg.PublishTimeout), nil
	case "redis":
		return scheduler.NewRedisBroker(rdb, cfg.DedupRetention), nil
	default:
		return nil, fmt.Errorf("unsupported scheduler backend: %q", cfg.Backend)
	}
}

// sweepInterval returns how often to recover expired leases, or zero when
// leases are disabled or the periodic sweep is turned off.
func sweepInterval(cfg config.WorkerConfig) time.Duration {
	if cfg.LeaseDuration <= 0 {
		return 0
	}
	return cfg.SweepInterval
}
