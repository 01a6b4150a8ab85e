package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SiteSign/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", 2*time.Second)
	require.NoError(t, err)
	return c
}

func TestActionSnooze(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/geofence-action", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req model.GeofenceActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "v1", req.VisitID)
		assert.Equal(t, model.ActionSnooze, req.Action)

		_, _ = io.WriteString(w, `{"ok":true,"action":"snooze","snoozedUntil":"2025-03-01T09:30:00Z"}`)
	})

	res, err := c.Action(context.Background(), "v1", model.ActionSnooze)
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.NotNil(t, res.SnoozedUntil)
	assert.True(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC).Equal(*res.SnoozedUntil))
}

func TestAPIErrorIsDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"NO_PUSH_SUBSCRIPTION","message":"No push subscription for this visit"}}`)
	})

	_, err := c.Notify(context.Background(), model.PushNotifyRequest{VisitID: "v1"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "NO_PUSH_SUBSCRIPTION", apiErr.Code)
}

func TestNotifySkipped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"skipped":true,"reason":"already_signed_out"}`)
	})

	res, err := c.Notify(context.Background(), model.PushNotifyRequest{VisitID: "v1"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, model.SkipAlreadySignedOut, res.Reason)
}

func TestSubscriptionAndConfig(t *testing.T) {
	var saved model.SavePushSubscriptionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/push-subscription":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			_, _ = io.WriteString(w, `{"ok":true}`)
		case "/api/push/public-key":
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = io.WriteString(w, `{"publicKey":"BPub","enabled":true}`)
		case "/api/visits/v1/geofence":
			_, _ = io.WriteString(w, `{"visitId":"v1","latitude":1.5,"longitude":2.5,"radiusKm":0.5,"siteUrl":"/s"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	require.NoError(t, c.SaveSubscription(ctx, "v1", &model.PushSubscription{Endpoint: "amqp://sitesign.push/a1"}))
	assert.Equal(t, "v1", saved.VisitID)
	assert.Equal(t, "amqp://sitesign.push/a1", saved.Subscription.Endpoint)

	cfg, err := c.PushConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BPub", cfg.PublicKey)

	tc, err := c.TrackerConfig(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, tc.Latitude)
	assert.Equal(t, 1.5, *tc.Latitude)
	assert.Equal(t, 0.5, tc.RadiusKm)
}
