package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Visit is one visitor's presence window at a site. Rows are created by the
// sign-in flow; the geofence subsystem only reads them and updates the
// sign-out, snooze, notified and subscription columns.
type Visit struct {
	ID                   string            `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID               string            `gorm:"type:uuid;not null;index" json:"site_id"`
	FullName             string            `gorm:"type:varchar(255)" json:"full_name"`
	CompanyName          *string           `gorm:"type:varchar(255)" json:"company_name,omitempty"`
	SignedInAt           time.Time         `gorm:"type:timestamptz;not null;default:now()" json:"signed_in_at"`
	SignedOutAt          *time.Time        `gorm:"type:timestamptz;index" json:"signed_out_at,omitempty"`
	GeofenceSnoozedUntil *time.Time        `gorm:"type:timestamptz" json:"geofence_snoozed_until,omitempty"`
	GeofenceNotifiedAt   *time.Time        `gorm:"type:timestamptz;index" json:"geofence_notified_at,omitempty"`
	PushSubscription     *PushSubscription `gorm:"type:jsonb" json:"push_subscription,omitempty"`
	Signature            *string           `gorm:"type:text" json:"signature,omitempty"`
}

func (Visit) TableName() string {
	return "site_visits"
}

// SignedOut reports whether the visit has reached its terminal state.
func (v *Visit) SignedOut() bool {
	return v.SignedOutAt != nil
}

// SnoozedAt reports whether a snooze window is still open at now.
func (v *Visit) SnoozedAt(now time.Time) bool {
	return v.GeofenceSnoozedUntil != nil && v.GeofenceSnoozedUntil.After(now)
}

// Site carries the geofence configuration of a construction site. A site
// without a pin (nil latitude or longitude) disables tracking.
type Site struct {
	ID               string   `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string   `gorm:"type:varchar(255);not null" json:"name"`
	Slug             string   `gorm:"type:varchar(255);uniqueIndex" json:"slug"`
	Latitude         *float64 `gorm:"type:double precision" json:"latitude,omitempty"`
	Longitude        *float64 `gorm:"type:double precision" json:"longitude,omitempty"`
	GeofenceRadiusKm *float64 `gorm:"type:double precision" json:"geofence_radius_km,omitempty"`
}

func (Site) TableName() string {
	return "sites"
}

// PushSubscription mirrors the browser PushSubscription JSON: an endpoint
// plus the client's ECDH public key and auth secret.
type PushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime *int64               `json:"expirationTime,omitempty"`
	Keys           PushSubscriptionKeys `json:"keys"`
}

type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Valid reports whether the subscription names an endpoint to deliver to.
func (s *PushSubscription) Valid() bool {
	return s != nil && s.Endpoint != ""
}

func (s PushSubscription) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *PushSubscription) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("failed to unmarshal push subscription value")
	}
}
