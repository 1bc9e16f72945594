package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"campuscard/internal/cli"
	"campuscard/internal/config"
	"campuscard/internal/log"
	"campuscard/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentWorker, os.Getenv("LOG_LEVEL"))
	logger.Info("Starting balance-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend != config.BackendSQLite {
		logger.Error("balance-worker needs a shared store", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	store := cli.InitStore(logger, cfg)
	amqpClient := cli.InitAMQP(logger, cfg)

	balanceWorker := worker.NewBalanceWorker(store.Store, cfg.RecalcInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := balanceWorker.Stop(ctx); err != nil {
			logger.Warn("Balance worker stop", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", log.FieldError, err)
			}
		}
	})

	if err := balanceWorker.Start(ctx); err != nil {
		logger.Error("Failed to start balance worker", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeBalanceRecalc(ctx, balanceWorker.HandleRecalcMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption stopped, continuing with periodic sweeps", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - periodic sweeps only",
			"interval", cfg.RecalcInterval)
	}

	logger.Info("Balance worker started", "sweep_interval", cfg.RecalcInterval)
	cli.WaitForShutdown(ctx, done)

	if closer, ok := store.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}
	logger.Info("Balance worker stopped")
}
