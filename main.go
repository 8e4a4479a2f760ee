package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"market-sentry/config"
	"market-sentry/internal/logging"
	"market-sentry/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Output: cfg.LoggingConfig.Output,
		Pretty: cfg.LoggingConfig.Pretty,
	})
	logger.Info().
		Bool("redis", cfg.RedisConfig.Enabled).
		Bool("trading", cfg.TradingConfig.Enabled).
		Bool("dry_run", cfg.TradingConfig.DryRun).
		Msg("market-sentry starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := service.New(cfg, logger)
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("market-sentry stopped")
}
