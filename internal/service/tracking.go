package service

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/model"
	"SiteSign/internal/repository"
	"SiteSign/pkg/errors"
	"SiteSign/pkg/logger"
)

// TrackingService assembles what a device needs to start a tracker.
type TrackingService struct {
	visits        VisitStore
	sites         SiteStore
	defaultRadius float64
	siteURL       string
}

var (
	trackingService *TrackingService
	trackingOnce    sync.Once
)

func Tracking() *TrackingService {
	trackingOnce.Do(func() {
		trackingService = NewTrackingService(
			repository.Visits(),
			repository.Sites(),
			config.Cfg.GeofenceDefaultRadiusKm,
			config.Cfg.SiteURL,
		)
	})
	return trackingService
}

func NewTrackingService(visits VisitStore, sites SiteStore, defaultRadiusKm float64, siteURL string) *TrackingService {
	return &TrackingService{
		visits:        visits,
		sites:         sites,
		defaultRadius: defaultRadiusKm,
		siteURL:       strings.TrimRight(siteURL, "/"),
	}
}

// TrackerConfig returns the geofence of the visit's site. Latitude and
// longitude stay nil for a site without a pin.
func (s *TrackingService) TrackerConfig(ctx context.Context, visitID string) (*model.TrackerConfig, error) {
	if err := validateVisitID(visitID); err != nil {
		return nil, err
	}

	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, storeError(err, errors.VisitNotFound, "visit", visitID)
	}

	site, err := s.sites.GetByID(ctx, visit.SiteID)
	if err != nil {
		return nil, storeError(err, errors.SiteNotFound, "site", visit.SiteID)
	}

	radius := s.defaultRadius
	if site.GeofenceRadiusKm != nil && *site.GeofenceRadiusKm > 0 {
		radius = *site.GeofenceRadiusKm
	}

	return &model.TrackerConfig{
		VisitID:   visit.ID,
		SiteID:    site.ID,
		Latitude:  site.Latitude,
		Longitude: site.Longitude,
		RadiusKm:  radius,
		SiteURL:   s.siteURL + "/signin?site=" + url.QueryEscape(site.Slug),
		SignedOut: visit.SignedOut(),
	}, nil
}

func storeError(err error, notFound errors.Definition, kind, id string) error {
	if stderrors.Is(err, notFound) {
		return notFound
	}
	logger.Logger.Error("Failed to load "+kind,
		zap.String("id", id),
		zap.Error(err),
	)
	return errors.StoreFailure
}
