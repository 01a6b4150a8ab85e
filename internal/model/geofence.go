package model

import "time"

// GeofenceAction names a mutation the action endpoint performs.
type GeofenceAction string

const (
	ActionSignOut     GeofenceAction = "signout"
	ActionAutoSignOut GeofenceAction = "auto-signout"
	ActionSnooze      GeofenceAction = "snooze"
)

// Valid reports whether a is one of the known actions.
func (a GeofenceAction) Valid() bool {
	switch a {
	case ActionSignOut, ActionAutoSignOut, ActionSnooze:
		return true
	}
	return false
}

// IsSignOut is true for both manual and automatic sign-out.
func (a GeofenceAction) IsSignOut() bool {
	return a == ActionSignOut || a == ActionAutoSignOut
}

// GeofenceActionRequest is the body of POST /api/geofence-action.
type GeofenceActionRequest struct {
	VisitID string         `json:"visitId"`
	Action  GeofenceAction `json:"action"`
}

// GeofenceActionResult is the success body of POST /api/geofence-action.
type GeofenceActionResult struct {
	OK           bool           `json:"ok"`
	Action       GeofenceAction `json:"action"`
	SnoozedUntil *time.Time     `json:"snoozedUntil,omitempty"`
}

// Skip reasons reported by the dispatcher.
const (
	SkipAlreadySignedOut = "already_signed_out"
	SkipSnoozed          = "snoozed"
)

// PushNotifyRequest is the body of POST /api/push-notify.
type PushNotifyRequest struct {
	VisitID string `json:"visitId"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"`
	SiteURL string `json:"siteUrl,omitempty"`
}

// PushNotifyResult is either {ok:true} or {skipped:true, reason}.
type PushNotifyResult struct {
	OK      bool   `json:"ok,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// SavePushSubscriptionRequest is the body of POST /api/push-subscription.
type SavePushSubscriptionRequest struct {
	VisitID      string            `json:"visitId"`
	Subscription *PushSubscription `json:"subscription"`
}

type OKResult struct {
	OK bool `json:"ok"`
}

// PushConfigResult is the body of GET /api/push/public-key.
type PushConfigResult struct {
	PublicKey string `json:"publicKey"`
	Enabled   bool   `json:"enabled"`
}

// TrackerConfig is what a device needs to start tracking one visit.
type TrackerConfig struct {
	VisitID   string   `json:"visitId"`
	SiteID    string   `json:"siteId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	RadiusKm  float64  `json:"radiusKm"`
	SiteURL   string   `json:"siteUrl"`
	SignedOut bool     `json:"signedOut"`
}
