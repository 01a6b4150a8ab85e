package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"SiteSign/internal/model"
	"SiteSign/internal/service"
	"SiteSign/pkg/response"
)

type GeofenceActions interface {
	Perform(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error)
}

type Dispatcher interface {
	Notify(ctx context.Context, req model.PushNotifyRequest) (*model.PushNotifyResult, error)
}

type Subscriptions interface {
	Save(ctx context.Context, req model.SavePushSubscriptionRequest) error
	PushConfig() model.PushConfigResult
}

type TrackerConfigs interface {
	TrackerConfig(ctx context.Context, visitID string) (*model.TrackerConfig, error)
}

// GeofenceHandler serves the geofence API.
type GeofenceHandler struct {
	Actions       GeofenceActions
	Dispatcher    Dispatcher
	Subscriptions Subscriptions
	Tracking      TrackerConfigs
}

// NewGeofenceHandler wires the handler to the process-wide services.
func NewGeofenceHandler() *GeofenceHandler {
	return &GeofenceHandler{
		Actions:       service.Geofence(),
		Dispatcher:    service.Notification(),
		Subscriptions: service.Subscription(),
		Tracking:      service.Tracking(),
	}
}

// GeofenceAction signs a visit out or snoozes its reminders.
// POST /api/geofence-action
func (h *GeofenceHandler) GeofenceAction(ctx context.Context, c *app.RequestContext) {
	var req model.GeofenceActionRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := h.Actions.Perform(ctx, req.VisitID, req.Action)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.JSON(ctx, c, result)
}

// PushNotify sends the "left the site" reminder.
// POST /api/push-notify
func (h *GeofenceHandler) PushNotify(ctx context.Context, c *app.RequestContext) {
	var req model.PushNotifyRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := h.Dispatcher.Notify(ctx, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.JSON(ctx, c, result)
}

// SavePushSubscription stores a device subscription on the visit.
// POST /api/push-subscription
func (h *GeofenceHandler) SavePushSubscription(ctx context.Context, c *app.RequestContext) {
	var req model.SavePushSubscriptionRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if err := h.Subscriptions.Save(ctx, req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.JSON(ctx, c, model.OKResult{OK: true})
}

// GET /api/push/public-key
func (h *GeofenceHandler) PushPublicKey(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, h.Subscriptions.PushConfig())
}

// TrackerConfig returns the geofence a device should track for a visit.
// GET /api/visits/:visitId/geofence
func (h *GeofenceHandler) TrackerConfig(ctx context.Context, c *app.RequestContext) {
	cfg, err := h.Tracking.TrackerConfig(ctx, c.Param("visitId"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.JSON(ctx, c, cfg)
}

// Health is the liveness check.
func Health(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, model.OKResult{OK: true})
}
