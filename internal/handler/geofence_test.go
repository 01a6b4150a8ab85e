package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SiteSign/internal/model"
	"SiteSign/pkg/errors"
	"SiteSign/pkg/response"
)

type fakeActions struct {
	visitID string
	action  model.GeofenceAction
	result  *model.GeofenceActionResult
	err     error
}

func (f *fakeActions) Perform(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error) {
	f.visitID, f.action = visitID, action
	return f.result, f.err
}

type fakeDispatcher struct {
	req    model.PushNotifyRequest
	result *model.PushNotifyResult
	err    error
}

func (f *fakeDispatcher) Notify(ctx context.Context, req model.PushNotifyRequest) (*model.PushNotifyResult, error) {
	f.req = req
	return f.result, f.err
}

type fakeSubscriptions struct {
	saved *model.SavePushSubscriptionRequest
	err   error
	cfg   model.PushConfigResult
}

func (f *fakeSubscriptions) Save(ctx context.Context, req model.SavePushSubscriptionRequest) error {
	f.saved = &req
	return f.err
}

func (f *fakeSubscriptions) PushConfig() model.PushConfigResult { return f.cfg }

type fakeTracking struct {
	cfg *model.TrackerConfig
	err error
}

func (f *fakeTracking) TrackerConfig(ctx context.Context, visitID string) (*model.TrackerConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	cfg := *f.cfg
	cfg.VisitID = visitID
	return &cfg, nil
}

func newEngine(h *GeofenceHandler) *route.Engine {
	r := route.NewEngine(config.NewOptions(nil))
	r.POST("/api/geofence-action", h.GeofenceAction)
	r.POST("/api/push-notify", h.PushNotify)
	r.POST("/api/push-subscription", h.SavePushSubscription)
	r.GET("/api/push/public-key", h.PushPublicKey)
	r.GET("/api/visits/:visitId/geofence", h.TrackerConfig)
	return r
}

func post(r *route.Engine, path, body string) (int, []byte) {
	w := ut.PerformRequest(r, http.MethodPost, path,
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
	res := w.Result()
	return res.StatusCode(), res.Body()
}

func get(r *route.Engine, path string) (int, []byte) {
	w := ut.PerformRequest(r, http.MethodGet, path, nil)
	res := w.Result()
	return res.StatusCode(), res.Body()
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env response.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &env))
	return env.Error.Code
}

func TestGeofenceActionSnooze(t *testing.T) {
	until := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	actions := &fakeActions{result: &model.GeofenceActionResult{OK: true, Action: model.ActionSnooze, SnoozedUntil: &until}}
	r := newEngine(&GeofenceHandler{Actions: actions})

	status, body := post(r, "/api/geofence-action", `{"visitId":"v1","action":"snooze"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true,"action":"snooze","snoozedUntil":"2025-03-01T09:30:00Z"}`, string(body))
	assert.Equal(t, "v1", actions.visitID)
	assert.Equal(t, model.ActionSnooze, actions.action)
}

func TestGeofenceActionSignOutOmitsExpiry(t *testing.T) {
	actions := &fakeActions{result: &model.GeofenceActionResult{OK: true, Action: model.ActionSignOut}}
	r := newEngine(&GeofenceHandler{Actions: actions})

	status, body := post(r, "/api/geofence-action", `{"visitId":"v1","action":"signout"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true,"action":"signout"}`, string(body))
}

func TestGeofenceActionErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing visit", `{"action":"signout"}`, errors.MissingVisitID, http.StatusBadRequest, "MISSING_VISIT_ID"},
		{"unknown action", `{"visitId":"v1","action":"x"}`, errors.UnknownAction, http.StatusBadRequest, "UNKNOWN_ACTION"},
		{"store failure", `{"visitId":"v1","action":"signout"}`, errors.StoreFailure, http.StatusInternalServerError, "STORE_FAILURE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(&GeofenceHandler{Actions: &fakeActions{err: tt.err}})
			status, body := post(r, "/api/geofence-action", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestPushNotify(t *testing.T) {
	dispatcher := &fakeDispatcher{result: &model.PushNotifyResult{Skipped: true, Reason: model.SkipSnoozed}}
	r := newEngine(&GeofenceHandler{Dispatcher: dispatcher})

	status, body := post(r, "/api/push-notify", `{"visitId":"v1","siteUrl":"/signin?site=yard"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"skipped":true,"reason":"snoozed"}`, string(body))
	assert.Equal(t, "/signin?site=yard", dispatcher.req.SiteURL)

	dispatcher.result = &model.PushNotifyResult{OK: true}
	_, body = post(r, "/api/push-notify", `{"visitId":"v1"}`)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestPushNotifyErrorStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{errors.VisitNotFound, http.StatusNotFound},
		{errors.NoPushSubscription, http.StatusBadRequest},
		{errors.PushSubscriptionExpired, http.StatusBadRequest},
		{errors.PushNotConfigured, http.StatusInternalServerError},
		{errors.PushSendFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := newEngine(&GeofenceHandler{Dispatcher: &fakeDispatcher{err: tt.err}})
		status, body := post(r, "/api/push-notify", `{"visitId":"v1"}`)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.err.(errors.Definition).Code, errorCode(t, body))
	}
}

func TestSavePushSubscription(t *testing.T) {
	subs := &fakeSubscriptions{}
	r := newEngine(&GeofenceHandler{Subscriptions: subs})

	status, body := post(r, "/api/push-subscription",
		`{"visitId":"v1","subscription":{"endpoint":"https://push.example.com/x","keys":{"p256dh":"k","auth":"a"}}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	require.NotNil(t, subs.saved)
	assert.Equal(t, "https://push.example.com/x", subs.saved.Subscription.Endpoint)
	assert.Equal(t, "k", subs.saved.Subscription.Keys.P256dh)

	subs.err = errors.VisitNotFound
	status, _ = post(r, "/api/push-subscription", `{"visitId":"v1","subscription":{"endpoint":"x"}}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPushPublicKey(t *testing.T) {
	r := newEngine(&GeofenceHandler{Subscriptions: &fakeSubscriptions{cfg: model.PushConfigResult{PublicKey: "BPub", Enabled: true}}})

	status, body := get(r, "/api/push/public-key")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"publicKey":"BPub","enabled":true}`, string(body))
}

func TestTrackerConfig(t *testing.T) {
	lat, lon := -33.8688, 151.2093
	tracking := &fakeTracking{cfg: &model.TrackerConfig{SiteID: "s1", Latitude: &lat, Longitude: &lon, RadiusKm: 1, SiteURL: "/signin?site=yard"}}
	r := newEngine(&GeofenceHandler{Tracking: tracking})

	status, body := get(r, "/api/visits/v9/geofence")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"visitId":"v9","siteId":"s1","latitude":-33.8688,"longitude":151.2093,"radiusKm":1,"siteUrl":"/signin?site=yard","signedOut":false}`, string(body))

	tracking.err = errors.VisitNotFound
	status, _ = get(r, "/api/visits/v9/geofence")
	assert.Equal(t, http.StatusNotFound, status)
}
