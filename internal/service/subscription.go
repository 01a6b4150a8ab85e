package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/model"
	"SiteSign/internal/repository"
	"SiteSign/pkg/errors"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/metrics"
	"SiteSign/pkg/push"
)

// SubscriptionService stores device push subscriptions on visits and tells
// devices which key to subscribe with.
type SubscriptionService struct {
	visits    VisitStore
	publicKey string
	enabled   bool
}

var (
	subscriptionService *SubscriptionService
	subscriptionOnce    sync.Once
)

func Subscription() *SubscriptionService {
	subscriptionOnce.Do(func() {
		subscriptionService = NewSubscriptionService(
			repository.Visits(),
			config.Cfg.VAPIDPublicKey,
			push.GetClient() != nil,
		)
	})
	return subscriptionService
}

func NewSubscriptionService(visits VisitStore, publicKey string, enabled bool) *SubscriptionService {
	return &SubscriptionService{visits: visits, publicKey: publicKey, enabled: enabled}
}

// Save replaces the visit's stored subscription.
func (s *SubscriptionService) Save(ctx context.Context, req model.SavePushSubscriptionRequest) error {
	if err := validateVisitID(req.VisitID); err != nil {
		return err
	}
	if !req.Subscription.Valid() {
		return errors.InvalidPushSubscription
	}

	matched, err := s.visits.UpdatePushSubscription(ctx, req.VisitID, req.Subscription)
	if err != nil {
		logger.Logger.Error("Failed to save push subscription",
			zap.String("visit_id", req.VisitID),
			zap.Error(err),
		)
		return errors.StoreFailure
	}
	if !matched {
		return errors.VisitNotFound
	}

	metrics.RecordSubscriptionSaved(ctx)
	logger.Logger.Info("Push subscription saved", zap.String("visit_id", req.VisitID))
	return nil
}

// PushConfig reports the public key devices subscribe with. Enabled is false
// when the server cannot send, in which case subscribing is pointless.
func (s *SubscriptionService) PushConfig() model.PushConfigResult {
	if !s.enabled {
		return model.PushConfigResult{Enabled: false}
	}
	return model.PushConfigResult{PublicKey: s.publicKey, Enabled: true}
}
