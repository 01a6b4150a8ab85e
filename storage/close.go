package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"SiteSign/pkg/logger"
	"SiteSign/storage/database"
	"SiteSign/storage/mq"
	"SiteSign/storage/redis"
)

// Close shuts connections down in MQ, Redis, Database order so no new work
// arrives while the stores it writes to are closing.
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Logger.Info("Closing storage connections")

	if err := mq.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close message queue", zap.Error(err))
	}

	if err := redis.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close Redis connection", zap.Error(err))
	}

	if err := database.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close database connection", zap.Error(err))
	}

	logger.Logger.Info("All storage connections closed")
}
