package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"SiteSign/internal/model"
	"SiteSign/internal/repository"
	"SiteSign/pkg/errors"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/metrics"
	"SiteSign/pkg/push"
)

// NotificationService dispatches the "you left the site" push for a visit.
type NotificationService struct {
	visits VisitStore
	client push.Client
	now    func() time.Time
}

var (
	notificationService *NotificationService
	notificationOnce    sync.Once
)

// Notification returns the dispatcher on the process-wide push client. Call
// after push.Init; a nil client leaves dispatch unconfigured.
func Notification() *NotificationService {
	notificationOnce.Do(func() {
		notificationService = NewNotificationService(repository.Visits(), push.GetClient())
	})
	return notificationService
}

// NewNotificationService builds a dispatcher. client may be nil when push is
// disabled.
func NewNotificationService(visits VisitStore, client push.Client) *NotificationService {
	return &NotificationService{visits: visits, client: client, now: time.Now}
}

// Notify sends the reminder unless the visit is signed out or snoozed, in
// which case it answers skipped with a reason.
func (s *NotificationService) Notify(ctx context.Context, req model.PushNotifyRequest) (*model.PushNotifyResult, error) {
	if s.client == nil {
		logger.Logger.Warn("Push dispatch requested but push is not configured")
		return nil, errors.PushNotConfigured
	}
	if err := validateVisitID(req.VisitID); err != nil {
		return nil, err
	}

	visit, err := s.visits.GetByID(ctx, req.VisitID)
	if err != nil {
		if stderrors.Is(err, errors.VisitNotFound) {
			return nil, errors.VisitNotFound
		}
		logger.Logger.Error("Failed to load visit for dispatch",
			zap.String("visit_id", req.VisitID),
			zap.Error(err),
		)
		return nil, errors.StoreFailure
	}

	now := s.now()
	if visit.SignedOut() {
		metrics.RecordDispatch(ctx, metrics.DispatchSkippedSignOut, 0)
		return &model.PushNotifyResult{Skipped: true, Reason: model.SkipAlreadySignedOut}, nil
	}
	if visit.SnoozedAt(now) {
		metrics.RecordDispatch(ctx, metrics.DispatchSkippedSnooze, 0)
		return &model.PushNotifyResult{Skipped: true, Reason: model.SkipSnoozed}, nil
	}
	if !visit.PushSubscription.Valid() {
		metrics.RecordDispatch(ctx, metrics.DispatchNoSubscription, 0)
		return nil, errors.NoPushSubscription
	}

	payload, err := push.NewPayload(req.VisitID, req.Title, req.Body, req.SiteURL).Marshal()
	if err != nil {
		return nil, errors.InternalError
	}

	sub := visit.PushSubscription
	start := time.Now()
	err = s.client.Send(ctx, push.Subscription{
		Endpoint: sub.Endpoint,
		P256dh:   sub.Keys.P256dh,
		Auth:     sub.Keys.Auth,
	}, payload)
	elapsed := time.Since(start).Seconds()

	if stderrors.Is(err, push.ErrSubscriptionGone) {
		logger.Logger.Info("Push subscription expired, clearing it",
			zap.String("visit_id", req.VisitID),
		)
		if _, clearErr := s.visits.UpdatePushSubscription(ctx, req.VisitID, nil); clearErr != nil {
			logger.Logger.Warn("Failed to clear expired push subscription",
				zap.String("visit_id", req.VisitID),
				zap.Error(clearErr),
			)
		}
		metrics.RecordDispatch(ctx, metrics.DispatchExpired, elapsed)
		return nil, errors.PushSubscriptionExpired
	}
	if err != nil {
		logger.Logger.Error("Failed to send push notification",
			zap.String("visit_id", req.VisitID),
			zap.Error(err),
		)
		metrics.RecordDispatch(ctx, metrics.DispatchFailed, elapsed)
		return nil, errors.PushSendFailed
	}

	// The push is already out; a failed stamp only weakens server-side dedup.
	if err := s.visits.MarkNotified(ctx, req.VisitID, now.UTC()); err != nil {
		logger.Logger.Warn("Failed to stamp geofence_notified_at",
			zap.String("visit_id", req.VisitID),
			zap.Error(err),
		)
	}

	metrics.RecordDispatch(ctx, metrics.DispatchSent, elapsed)
	logger.Logger.Info("Geofence reminder sent", zap.String("visit_id", req.VisitID))
	return &model.PushNotifyResult{OK: true}, nil
}
