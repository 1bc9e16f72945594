package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"campuscard/internal/cli"
	apphttp "campuscard/internal/http"
	"campuscard/internal/log"
	"campuscard/internal/middleware/ratelimit"
	"campuscard/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentApp, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitStore(logger, cfg)

	var publisher services.RecalcPublisher
	if client := cli.InitAMQP(logger, cfg); client != nil {
		publisher = client
	}
	svc := services.NewLedgerService(store.Store, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:          logger,
		Params:          cfg.AnalysisParams(),
		ReportCacheSize: cfg.ReportCacheSize,
		ReportCacheTTL:  cfg.ReportCacheTTL,
		RateLimit:       ratelimit.DefaultConfig(),
		Ready:           store.Ready,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close ledger service", log.FieldError, err)
		}
	})

	logger.Info("Starting campuscard server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
