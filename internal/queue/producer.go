package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SiteSign/internal/model"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/snowflake"
	"SiteSign/storage/mq"
)

// maxDelay is the longest hold the delayed-message exchange is trusted with;
// anything later is left to the overdue sweep.
const maxDelay = 24 * time.Hour

// DelayedPublisher matches mq.PublishDelayedMessage.
type DelayedPublisher func(ctx context.Context, exchange, routingKey, messageID string, delay time.Duration, body interface{}) error

var publishDelayed DelayedPublisher = mq.PublishDelayedMessage

// PublishAutoSignOut enqueues msg on the delayed exchange. An empty MessageID
// is filled from the snowflake generator.
func PublishAutoSignOut(ctx context.Context, msg model.AutoSignOutMessage) error {
	if msg.MessageID == "" {
		id, err := snowflake.MessageID("autosignout")
		if err != nil {
			logger.Logger.Error("Failed to generate message ID",
				zap.String("visit_id", msg.VisitID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		msg.MessageID = id
	}

	delay := time.Duration(msg.DelaySeconds) * time.Second
	if delay > maxDelay {
		return fmt.Errorf("delay %v exceeds %v limit", delay, maxDelay)
	}
	if msg.ScheduledAt == "" {
		msg.ScheduledAt = time.Now().Add(delay).UTC().Format(time.RFC3339)
	}

	err := publishDelayed(ctx, mq.DelayedExchange, mq.AutoSignOutRouting, msg.MessageID, delay, msg)
	if err != nil {
		logger.Logger.Error("Failed to publish auto sign-out message",
			zap.String("visit_id", msg.VisitID),
			zap.String("source", string(msg.Source)),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published auto sign-out message",
		zap.String("message_id", msg.MessageID),
		zap.String("visit_id", msg.VisitID),
		zap.String("source", string(msg.Source)),
		zap.Duration("delay", delay),
	)
	return nil
}

// DurableTimer schedules the notification fallback through the broker, so
// the sign-out still happens if the device process dies.
type DurableTimer struct{}

func (DurableTimer) ScheduleAutoSignOut(ctx context.Context, visitID string, after time.Duration) error {
	return PublishAutoSignOut(ctx, model.AutoSignOutMessage{
		VisitID:      visitID,
		Source:       model.AutoSignOutFromNotification,
		DelaySeconds: int(after.Round(time.Second) / time.Second),
	})
}
