package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/background"
	"SiteSign/internal/broadcast"
	"SiteSign/internal/client"
	"SiteSign/internal/geofence"
	"SiteSign/internal/queue"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/snowflake"
	"SiteSign/storage/mq"
	"SiteSign/storage/redis"
)

func main() {
	visitID := flag.String("visit", "", "visit id to track")
	sharedEvents := flag.Bool("shared-events", false, "exchange visit events over redis instead of in process")
	flag.Parse()

	logger.Init()
	defer logger.Sync()

	if *visitID == "" {
		logger.Logger.Fatal("-visit is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	api, err := client.New(config.Cfg.AgentAPIBaseURL, 10*time.Second)
	if err != nil {
		logger.Logger.Fatal("Failed to create API client", zap.Error(err))
	}

	tc, err := api.TrackerConfig(ctx, *visitID)
	if err != nil {
		logger.Logger.Fatal("Failed to load tracker config", zap.String("visit_id", *visitID), zap.Error(err))
	}
	if tc.SignedOut {
		logger.Logger.Info("Visit already signed out, nothing to track", zap.String("visit_id", *visitID))
		return
	}

	var bus broadcast.Bus = broadcast.NewHub()
	if *sharedEvents {
		if err := redis.Init(); err != nil {
			logger.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close(context.Background())
		bus = broadcast.NewRedisBus(redis.Client())
	}

	presenter := background.NewLogPresenter()
	handlerOpts := []background.Option{
		background.WithWindowOpener(background.LogWindowOpener{}),
		background.WithFallback(config.Cfg.FallbackDelay()),
	}
	if *sharedEvents {
		handlerOpts = append(handlerOpts, background.WithServerBroadcasts())
	}

	if config.Cfg.AgentID != "" {
		if err := mq.Init(); err != nil {
			logger.Logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mq.Close(context.Background())

		if config.Cfg.AgentDurable {
			if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
				logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
			}
			handlerOpts = append(handlerOpts, background.WithTimer(queue.DurableTimer{}))
		}
	}

	bg := background.NewHandler(api, presenter, bus, handlerOpts...)
	defer bg.Close()

	trackerCfg := geofence.ConfigFromModel(tc)
	trackerCfg.PollInterval = config.Cfg.PollInterval()
	trackerCfg.SnoozeWindow = config.Cfg.SnoozeWindow()

	trackerOpts := []geofence.Option{
		geofence.WithEvents(bus),
		geofence.WithInPageNotifier(inPageLog{}),
		geofence.WithStatusHook(logStatus),
	}
	if config.Cfg.AgentID != "" {
		registrar := background.NewAMQPRegistrar(ctx, config.Cfg.AgentID, bg.HandlePush)
		trackerOpts = append(trackerOpts, geofence.WithSubscriptions(geofence.NewManager(api, api, registrar)))
	} else {
		logger.Logger.Warn("AGENT_ID not set, push reminders disabled")
	}

	source := geofence.NewFeedSource()
	tracker := geofence.NewTracker(trackerCfg, source, api, trackerOpts...)

	go func() {
		if err := tracker.Run(ctx); err != nil {
			logger.Logger.Error("Tracker stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Agent started",
		zap.String("visit_id", *visitID),
		zap.Float64("radius_km", trackerCfg.RadiusKm),
		zap.Bool("shared_events", *sharedEvents),
	)

	in := &inputLoop{source: source, tracker: tracker, handler: bg, presenter: presenter}
	if err := in.run(ctx, os.Stdin); err != nil {
		logger.Logger.Error("Failed to read input", zap.Error(err))
	}

	cancel()
	tracker.Wait()
	logger.Logger.Info("Agent shutting down", zap.String("phase", string(tracker.Status().Phase)))
}

type inPageLog struct{}

func (inPageLog) NotifyInPage(visitID string, distanceKm float64) {
	logger.Named("page").Info("You appear to have left the site. Don't forget to sign out!",
		zap.String("visit_id", visitID),
		zap.Float64("distance_km", distanceKm),
	)
}

func logStatus(st geofence.Status) {
	fields := []zap.Field{
		zap.String("phase", string(st.Phase)),
		zap.Bool("outside", st.Outside),
		zap.Bool("notified", st.Notified),
		zap.Bool("snoozed", st.Snoozed),
		zap.Bool("push_enabled", st.PushEnabled),
	}
	if st.DistanceKm != nil {
		fields = append(fields, zap.Float64("distance_km", *st.DistanceKm))
	}
	if st.Error != "" {
		fields = append(fields, zap.String("error", st.Error))
	}
	if st.DispatchError != "" {
		fields = append(fields, zap.String("dispatch_error", st.DispatchError))
	}
	logger.Named("tracker").Info("Tracker status", fields...)
}
