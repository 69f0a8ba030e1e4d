// Package main runs the Redis scheduler relay, which delivers delayed worker
// pushes when SCHEDULER_BACKEND is redis.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/questforge/internal/cache"
	"github.com/kiranshivaraju/questforge/internal/config"
	"github.com/kiranshivaraju/questforge/internal/execctx"
	"github.com/kiranshivaraju/questforge/internal/scheduler"
)

func main() {
	logger := slog.New(execctx.NewHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadRelay()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer redisCache.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	relay := scheduler.NewRelay(redisCache.Client(), relayOptions(cfg.Scheduler))
	if err := relay.Run(ctx); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	slog.Info("relay stopped")
	return nil
}

func relayOptions(cfg config.SchedulerConfig) scheduler.RelayOptions {
	return scheduler.RelayOptions{
		Interval:        cfg.RelayInterval,
		Batch:           cfg.RelayBatch,
		MaxDeliveries:   cfg.RelayMaxAttempt,
		DeliveryTimeout: cfg.RelayTimeout,
	}
}
