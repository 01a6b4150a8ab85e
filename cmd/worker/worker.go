package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/queue"
	"SiteSign/internal/service"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/metrics"
	sitesignotel "SiteSign/pkg/otel"
	"SiteSign/storage"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := sitesignotel.InitOpenTelemetry(ctx, sitesignotel.FromEnv("worker"))
		if err != nil {
			logger.Logger.Warn("OpenTelemetry disabled", zap.Error(err))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
			if err := metrics.InitMetrics(); err != nil {
				logger.Logger.Warn("Failed to register geofence metrics", zap.Error(err))
			}
		}
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// Sign-outs go through the same service as the action endpoint, so
	// open trackers hear AUTO_SIGNED_OUT over redis.
	if err := queue.StartAutoSignOutConsumer(ctx, service.Geofence()); err != nil && ctx.Err() == nil {
		logger.Logger.Error("Auto sign-out consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
