package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/handler"
	"SiteSign/internal/middleware"
	"SiteSign/internal/router"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/metrics"
	sitesignotel "SiteSign/pkg/otel"
	"SiteSign/pkg/push"
	"SiteSign/pkg/snowflake"
	"SiteSign/storage"
	"SiteSign/storage/mq"
)

func main() {
	genKeys := flag.Bool("genkeys", false, "print a fresh VAPID key pair and exit")
	flag.Parse()

	if *genKeys {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

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

	var serverOpts []hertzconfig.Option
	var extra []app.HandlerFunc
	if config.Cfg.OTelEnabled {
		shutdown, err := sitesignotel.InitOpenTelemetry(ctx, sitesignotel.FromEnv("server"))
		if err != nil {
			logger.Logger.Warn("OpenTelemetry disabled", zap.Error(err))
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Logger.Error("Failed to flush telemetry", zap.Error(err))
				}
			}()

			if err := metrics.InitMetrics(); err != nil {
				logger.Logger.Warn("Failed to register geofence metrics", zap.Error(err))
			}
			if err := middleware.InitMetrics(otel.Meter("sitesign/http")); err != nil {
				logger.Logger.Warn("Failed to register HTTP metrics", zap.Error(err))
			}

			tracerOpt, tracerMW := middleware.NewServerTracerConfig()
			serverOpts = append(serverOpts, tracerOpt)
			extra = append(extra, tracerMW)
		}
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// Push is optional; without keys the dispatcher answers PUSH_NOT_CONFIGURED.
	if err := push.Init(mq.PublishMessage); err != nil {
		logger.Logger.Warn("Push delivery disabled", zap.Error(err))
	}

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.Bool("push_enabled", push.GetClient() != nil),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	h := server.Default(append([]hertzconfig.Option{server.WithHostPorts(addr)}, serverOpts...)...)

	router.Register(h.Engine, handler.NewGeofenceHandler(), extra...)

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
