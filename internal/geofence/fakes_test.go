package geofence

import (
	"context"
	"sync"
	"time"

	"SiteSign/internal/model"
	"SiteSign/pkg/geo"
)

const visitA = "8d0f6b1e-3c1a-4b6e-9a57-2f4d8c1e7b90"

// kmPerDegree is the length of one degree of latitude on the haversine sphere.
const kmPerDegree = geo.EarthRadiusKm * 3.141592653589793 / 180

func north(km float64) geo.Point {
	return geo.Point{Lat: km / kmPerDegree, Lon: 0}
}

func sampleAt(km float64, at time.Time) Sample {
	return Sample{Point: north(km), At: at}
}

type fakeActions struct {
	mu         sync.Mutex
	notifies   []model.PushNotifyRequest
	actions    []model.GeofenceAction
	notifyRes  *model.PushNotifyResult
	notifyErr  error
	actionErr  error
	snoozeTill *time.Time
}

func (f *fakeActions) Action(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	res := &model.GeofenceActionResult{OK: true, Action: action}
	if action == model.ActionSnooze {
		res.SnoozedUntil = f.snoozeTill
	}
	return res, nil
}

func (f *fakeActions) Notify(ctx context.Context, req model.PushNotifyRequest) (*model.PushNotifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifies = append(f.notifies, req)
	if f.notifyErr != nil {
		return nil, f.notifyErr
	}
	if f.notifyRes != nil {
		return f.notifyRes, nil
	}
	return &model.PushNotifyResult{OK: true}, nil
}

func (f *fakeActions) notifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifies)
}

func (f *fakeActions) actionLog() []model.GeofenceAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.GeofenceAction(nil), f.actions...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func pinnedConfig(radiusKm float64) Config {
	lat, lon := 0.0, 0.0
	return Config{
		VisitID:   visitA,
		Latitude:  &lat,
		Longitude: &lon,
		RadiusKm:  radiusKm,
		SiteURL:   "https://sitesign.app/signin?site=north+yard",
	}
}
