// Package background is the device-side push receiver. It shows reminders,
// turns notification interactions into geofence actions, and signs the visit
// out on its own when a reminder goes unanswered.
package background

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SiteSign/internal/broadcast"
	"SiteSign/internal/model"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/push"
)

// Notification actions.
const (
	ClickSignOut   = "signout"
	ClickStillHere = "still-here"
)

// DefaultFallback is how long a reminder may go unanswered before the visit
// is signed out automatically.
const DefaultFallback = 10 * time.Minute

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is a system notification for one visit. Showing one with the
// same Tag replaces the previous.
type Notification struct {
	Tag                string               `json:"tag"`
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	VisitID            string               `json:"visitId"`
	SiteURL            string               `json:"siteUrl"`
	RequireInteraction bool                 `json:"requireInteraction"`
	Renotify           bool                 `json:"renotify"`
	Actions            []NotificationAction `json:"actions"`
}

func notificationFor(p push.Payload) Notification {
	return Notification{
		Tag:                p.Tag(),
		Title:              p.Title,
		Body:               p.Body,
		VisitID:            p.VisitID,
		SiteURL:            p.SiteURL,
		RequireInteraction: true,
		Renotify:           true,
		Actions: []NotificationAction{
			{Action: ClickSignOut, Title: "Sign Out"},
			{Action: ClickStillHere, Title: "Still on Site"},
		},
	}
}

// Actions is the part of the server API the handler calls.
type Actions interface {
	Action(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error)
}

type Presenter interface {
	Show(ctx context.Context, n Notification) error
	Close(tag string)
}

// WindowOpener brings the sign-in page to the front, opening it if needed.
type WindowOpener interface {
	FocusOrOpen(ctx context.Context, url string) error
}

// Timer arranges for visitID to be signed out after a delay.
type Timer interface {
	ScheduleAutoSignOut(ctx context.Context, visitID string, after time.Duration) error
}

type Option func(*Handler)

// WithTimer replaces the in-process fallback timer, e.g. with a broker-backed
// one that survives restarts.
func WithTimer(t Timer) Option { return func(h *Handler) { h.timer = t } }

func WithWindowOpener(w WindowOpener) Option { return func(h *Handler) { h.windows = w } }

func WithFallback(d time.Duration) Option { return func(h *Handler) { h.fallback = d } }

// WithServerBroadcasts is for a handler sharing the server's event bus: the
// server announces every accepted action there, so the handler stays quiet.
func WithServerBroadcasts() Option { return func(h *Handler) { h.serverBroadcasts = true } }

// Handler keeps no state of its own; the visit record on the server is the
// only durable state.
type Handler struct {
	actions   Actions
	presenter Presenter
	windows   WindowOpener
	events    broadcast.Publisher
	timer     Timer
	local     *LocalTimer
	fallback  time.Duration
	log       *zap.Logger

	serverBroadcasts bool
}

func NewHandler(actions Actions, presenter Presenter, events broadcast.Publisher, opts ...Option) *Handler {
	h := &Handler{
		actions:   actions,
		presenter: presenter,
		events:    events,
		fallback:  DefaultFallback,
		log:       logger.Named("background"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.timer == nil {
		h.local = NewLocalTimer(func(ctx context.Context, visitID string) {
			_ = h.AutoSignOut(ctx, visitID)
		})
		h.timer = h.local
	}
	return h
}

// Close stops pending in-process timers.
func (h *Handler) Close() {
	if h.local != nil {
		h.local.Stop()
	}
}

// HandlePush shows the reminder carried by data and starts the fallback
// timer. A payload without a visit id is rejected and nothing is shown.
func (h *Handler) HandlePush(ctx context.Context, data []byte) error {
	p, err := push.ParsePayload(data)
	if err != nil {
		h.log.Warn("Dropping push payload", zap.Error(err))
		return err
	}

	n := notificationFor(p)
	var errs []error
	if err := h.presenter.Show(ctx, n); err != nil {
		h.log.Error("Failed to show notification", zap.String("visit_id", p.VisitID), zap.Error(err))
		errs = append(errs, err)
	}

	if err := h.timer.ScheduleAutoSignOut(ctx, p.VisitID, h.fallback); err != nil {
		h.log.Error("Failed to schedule auto sign-out", zap.String("visit_id", p.VisitID), zap.Error(err))
		errs = append(errs, err)
	} else {
		h.log.Info("Auto sign-out scheduled",
			zap.String("visit_id", p.VisitID),
			zap.Duration("after", h.fallback),
		)
	}

	return stderrors.Join(errs...)
}

// HandleClick reacts to the user touching n. An empty action is a click on
// the notification body.
func (h *Handler) HandleClick(ctx context.Context, n Notification, action string) error {
	h.presenter.Close(n.Tag)

	switch action {
	case ClickSignOut:
		if _, err := h.call(ctx, n.VisitID, model.ActionSignOut); err != nil {
			return err
		}
		h.publish(ctx, broadcast.Event{Type: broadcast.SignedOut, VisitID: n.VisitID})
	case ClickStillHere:
		res, err := h.call(ctx, n.VisitID, model.ActionSnooze)
		if err != nil {
			return err
		}
		h.publish(ctx, broadcast.Event{Type: broadcast.Snoozed, VisitID: n.VisitID, SnoozedUntil: res.SnoozedUntil})
	case "":
		if h.windows == nil {
			return nil
		}
		url := n.SiteURL
		if url == "" {
			url = push.DefaultSiteURL
		}
		return h.windows.FocusOrOpen(ctx, url)
	default:
		return fmt.Errorf("unknown notification action %q", action)
	}
	return nil
}

// AutoSignOut signs visitID out and tells open trackers. Failures are logged
// and returned; there is no retry.
func (h *Handler) AutoSignOut(ctx context.Context, visitID string) error {
	if _, err := h.call(ctx, visitID, model.ActionAutoSignOut); err != nil {
		return err
	}
	h.log.Info("Visit auto signed out", zap.String("visit_id", visitID))
	h.publish(ctx, broadcast.Event{Type: broadcast.AutoSignedOut, VisitID: visitID})
	return nil
}

func (h *Handler) call(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error) {
	res, err := h.actions.Action(ctx, visitID, action)
	if err != nil {
		h.log.Error("Geofence action failed",
			zap.String("visit_id", visitID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}

func (h *Handler) publish(ctx context.Context, ev broadcast.Event) {
	if h.events == nil || h.serverBroadcasts {
		return
	}
	if err := h.events.Publish(ctx, ev); err != nil {
		h.log.Warn("Failed to broadcast event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
