package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SiteSign/internal/cache"
	"SiteSign/internal/model"
	"SiteSign/pkg/errors"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/metrics"
	"SiteSign/storage/mq"
)

// SignOuter performs the guarded sign-out.
type SignOuter interface {
	SignOut(ctx context.Context, visitID string, action model.GeofenceAction) (bool, error)
}

// AutoSignOutHandler processes delayed auto sign-out messages.
type AutoSignOutHandler struct {
	visits SignOuter
}

func NewAutoSignOutHandler(visits SignOuter) *AutoSignOutHandler {
	return &AutoSignOutHandler{visits: visits}
}

// Handle signs the visit out. Malformed and duplicate messages come back as
// SkipMessageError so the consumer acks them.
func (h *AutoSignOutHandler) Handle(ctx context.Context, body []byte) error {
	var msg model.AutoSignOutMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return errors.SkipMessageError{Reason: fmt.Sprintf("malformed auto sign-out message: %v", err)}
	}
	if msg.VisitID == "" || msg.MessageID == "" {
		return errors.SkipMessageError{Reason: "auto sign-out message without visit or message id"}
	}

	claimed, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
	if err != nil {
		// Sign-out is idempotent, so a duplicate costs one no-op update.
		logger.Logger.Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !claimed {
		return errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", msg.MessageID)}
	}

	logger.Logger.Info("Processing auto sign-out",
		zap.String("message_id", msg.MessageID),
		zap.String("visit_id", msg.VisitID),
		zap.String("source", string(msg.Source)),
	)

	changed, err := h.visits.SignOut(ctx, msg.VisitID, model.ActionAutoSignOut)
	if err != nil {
		if unmarkErr := cache.UnmarkMessageProcessing(ctx, msg.MessageID); unmarkErr != nil {
			logger.Logger.Warn("Failed to release message claim",
				zap.String("message_id", msg.MessageID),
				zap.Error(unmarkErr),
			)
		}
		return fmt.Errorf("auto sign-out of visit %s: %w", msg.VisitID, err)
	}

	metrics.RecordAutoSignOut(ctx, string(msg.Source), changed)

	if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
		logger.Logger.Warn("Failed to mark message as processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}
	return nil
}

// StartAutoSignOutConsumer blocks consuming the auto sign-out queue.
func StartAutoSignOutConsumer(ctx context.Context, visits SignOuter) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.AutoSignOutQueue,
		ConsumerTag:   "auto_signout_consumer",
		PrefetchCount: 10,
		Handler:       NewAutoSignOutHandler(visits).Handle,
	})
}
