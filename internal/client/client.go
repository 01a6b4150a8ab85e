// Package client calls the geofence API from a visitor device.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	hertzclient "github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"SiteSign/internal/model"
	"SiteSign/pkg/response"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error %s (status %d): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	hc      *hertzclient.Client
	baseURL string
	timeout time.Duration
}

// New builds a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc, err := hertzclient.NewClient(
		hertzclient.WithDialTimeout(5*time.Second),
		hertzclient.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	return &Client{hc: hc, baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}, nil
}

// Action calls POST /api/geofence-action.
func (c *Client) Action(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error) {
	var out model.GeofenceActionResult
	err := c.do(ctx, consts.MethodPost, "/api/geofence-action",
		model.GeofenceActionRequest{VisitID: visitID, Action: action}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Notify calls POST /api/push-notify.
func (c *Client) Notify(ctx context.Context, req model.PushNotifyRequest) (*model.PushNotifyResult, error) {
	var out model.PushNotifyResult
	if err := c.do(ctx, consts.MethodPost, "/api/push-notify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveSubscription(ctx context.Context, visitID string, sub *model.PushSubscription) error {
	return c.do(ctx, consts.MethodPost, "/api/push-subscription",
		model.SavePushSubscriptionRequest{VisitID: visitID, Subscription: sub}, nil)
}

func (c *Client) PushConfig(ctx context.Context) (*model.PushConfigResult, error) {
	var out model.PushConfigResult
	if err := c.do(ctx, consts.MethodGet, "/api/push/public-key", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TrackerConfig(ctx context.Context, visitID string) (*model.TrackerConfig, error) {
	var out model.TrackerConfig
	if err := c.do(ctx, consts.MethodGet, "/api/visits/"+url.PathEscape(visitID)+"/geofence", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		apiErr := &APIError{Status: status}
		var env response.ErrorResponse
		if json.Unmarshal(resp.Body(), &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
