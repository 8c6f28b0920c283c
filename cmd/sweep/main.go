package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mGhassen/WildEnergy-sub005/internal/config"
	"github.com/mGhassen/WildEnergy-sub005/internal/database"
	"github.com/mGhassen/WildEnergy-sub005/internal/events"
	"github.com/mGhassen/WildEnergy-sub005/internal/logging"
	"github.com/mGhassen/WildEnergy-sub005/internal/services"
	"go.uber.org/zap"
)

// sweep runs the absence sweep once and exits. It is meant for an external
// scheduler when ABSENCE_SWEEP_ENABLED is off on the API servers.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DBUrl, database.PoolOptions{MaxConns: 2, MinConns: 1}, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	publisher := events.New(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	defer publisher.Close()

	sweep := services.NewAbsenceSweep(
		services.NewPostgresTransactor(pool, cfg.TxMaxRetries),
		cfg.Location,
		cfg.AbsenceSweepBatchSize,
		publisher,
		nil,
		logger.Named("absence_sweep"),
	)

	result, err := sweep.Run(ctx)
	if err != nil {
		logger.Error("absence sweep failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("absence sweep finished",
		zap.Int("updated", result.UpdatedCount),
		zap.Int("batches", result.Batches),
		zap.Duration("elapsed", result.Elapsed),
	)
}
