package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/broadcast"
	"SiteSign/internal/model"
	"SiteSign/internal/repository"
	"SiteSign/pkg/errors"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/metrics"
	"SiteSign/storage/redis"
)

// GeofenceService performs sign-out and snooze on a visit. Both mutations are
// safe to repeat: sign-out only moves signed_out_at from NULL to a timestamp
// and snooze always writes a fresh expiry.
type GeofenceService struct {
	visits VisitStore
	events broadcast.Publisher
	snooze time.Duration
	now    func() time.Time
}

var (
	geofenceService *GeofenceService
	geofenceOnce    sync.Once
)

// Geofence returns the service backed by postgres, publishing events over
// redis pub/sub.
func Geofence() *GeofenceService {
	geofenceOnce.Do(func() {
		geofenceService = NewGeofenceService(
			repository.Visits(),
			broadcast.NewRedisBus(redis.Client()),
			config.Cfg.SnoozeWindow(),
		)
	})
	return geofenceService
}

// NewGeofenceService builds a service. events may be nil.
func NewGeofenceService(visits VisitStore, events broadcast.Publisher, snooze time.Duration) *GeofenceService {
	return &GeofenceService{
		visits: visits,
		events: events,
		snooze: snooze,
		now:    time.Now,
	}
}

// Perform validates the request and applies action to the visit.
func (s *GeofenceService) Perform(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error) {
	if err := validateVisitID(visitID); err != nil {
		return nil, err
	}
	if action == "" {
		return nil, errors.UnknownAction.WithMessage("Missing action")
	}
	if !action.Valid() {
		return nil, errors.UnknownAction
	}

	result := &model.GeofenceActionResult{OK: true, Action: action}

	if action.IsSignOut() {
		if _, err := s.SignOut(ctx, visitID, action); err != nil {
			return nil, err
		}
		return result, nil
	}

	until, err := s.Snooze(ctx, visitID)
	if err != nil {
		return nil, err
	}
	result.SnoozedUntil = &until
	return result, nil
}

// SignOut stamps signed_out_at unless the visit is already signed out. It
// reports whether this call changed the row; a lost race is not an error.
func (s *GeofenceService) SignOut(ctx context.Context, visitID string, action model.GeofenceAction) (bool, error) {
	changed, err := s.visits.MarkSignedOut(ctx, visitID, s.now().UTC())
	if err != nil {
		logger.Logger.Error("Failed to sign out visit",
			zap.String("visit_id", visitID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		metrics.RecordGeofenceAction(ctx, string(action), "error")
		return false, errors.StoreFailure
	}

	if !changed {
		logger.Logger.Info("Visit already signed out",
			zap.String("visit_id", visitID),
			zap.String("action", string(action)),
		)
		metrics.RecordGeofenceAction(ctx, string(action), "noop")
		return false, nil
	}

	logger.Logger.Info("Visit signed out",
		zap.String("visit_id", visitID),
		zap.String("action", string(action)),
	)
	metrics.RecordGeofenceAction(ctx, string(action), "ok")

	evType := broadcast.SignedOut
	if action == model.ActionAutoSignOut {
		evType = broadcast.AutoSignedOut
	}
	s.publish(ctx, broadcast.Event{Type: evType, VisitID: visitID})
	return true, nil
}

// Snooze opens a fresh snooze window, replacing any earlier one.
func (s *GeofenceService) Snooze(ctx context.Context, visitID string) (time.Time, error) {
	until := s.now().UTC().Add(s.snooze)
	if err := s.visits.SnoozeUntil(ctx, visitID, until); err != nil {
		logger.Logger.Error("Failed to snooze visit",
			zap.String("visit_id", visitID),
			zap.Error(err),
		)
		metrics.RecordGeofenceAction(ctx, string(model.ActionSnooze), "error")
		return time.Time{}, errors.StoreFailure
	}

	metrics.RecordGeofenceAction(ctx, string(model.ActionSnooze), "ok")
	s.publish(ctx, broadcast.Event{Type: broadcast.Snoozed, VisitID: visitID, SnoozedUntil: &until})
	return until, nil
}

func (s *GeofenceService) publish(ctx context.Context, ev broadcast.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Logger.Warn("Failed to broadcast geofence event",
			zap.String("visit_id", ev.VisitID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
