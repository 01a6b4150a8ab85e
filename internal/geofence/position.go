// Package geofence runs the foreground side of geofence reminders: it samples
// the device position, decides when the visitor has left the site, and asks
// the server to push a reminder.
package geofence

import (
	"context"
	"errors"
	"time"

	"SiteSign/pkg/geo"
)

// Sample is one position fix.
type Sample struct {
	Point    geo.Point
	Accuracy float64 // metres, 0 when unknown
	At       time.Time
}

// Reading is what a watch delivers: a fix or a location error.
type Reading struct {
	Sample Sample
	Err    error
}

type LocationErrorCode string

const (
	PermissionDenied    LocationErrorCode = "permission_denied"
	PositionUnavailable LocationErrorCode = "unavailable"
	PositionTimeout     LocationErrorCode = "timeout"
)

type LocationError struct {
	Code LocationErrorCode
}

func (e *LocationError) Error() string {
	return "location error: " + string(e.Code)
}

// IsPermissionDenied reports whether err means the user refused location
// access.
func IsPermissionDenied(err error) bool {
	var le *LocationError
	return errors.As(err, &le) && le.Code == PermissionDenied
}

// IsTimeout reports whether err means no fix arrived in time.
func IsTimeout(err error) bool {
	var le *LocationError
	return errors.As(err, &le) && le.Code == PositionTimeout
}

// PositionOptions tune one position request.
type PositionOptions struct {
	HighAccuracy bool
	// MaximumAge is how old a cached fix may be and still be returned.
	MaximumAge time.Duration
	Timeout    time.Duration
}

// Continuous watching favours accuracy and freshness; the fallback poll
// accepts older, coarser fixes.
var (
	DefaultWatchOptions = PositionOptions{HighAccuracy: true, MaximumAge: 30 * time.Second, Timeout: 15 * time.Second}
	DefaultPollOptions  = PositionOptions{HighAccuracy: false, MaximumAge: 60 * time.Second, Timeout: 10 * time.Second}
)

// PositionSource produces position fixes. Watch subscribes until ctx is done,
// then closes the channel; each call starts a fresh subscription.
type PositionSource interface {
	Watch(ctx context.Context, opts PositionOptions) (<-chan Reading, error)
	Current(ctx context.Context, opts PositionOptions) (Sample, error)
}
