package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/schedule"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/snowflake"
	"SiteSign/storage"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	interval := time.Duration(config.Cfg.SweepIntervalMinutes) * time.Minute
	if config.Cfg.IsDevelopment() {
		interval = time.Minute
		logger.Logger.Info("Overdue sweep running in development mode with 1m interval")
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Duration("interval", interval),
	)

	schedule.GetOverdueScheduler().Run(ctx, interval)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}
