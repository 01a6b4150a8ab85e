package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

type WebPushConfig struct {
	Subject    string // mailto: sender identity
	PublicKey  string
	PrivateKey string
	TTLSeconds int
	HTTPClient webpush.HTTPClient
}

// WebPushClient sends VAPID-signed, RFC 8291 encrypted messages.
type WebPushClient struct {
	cfg WebPushConfig
}

func NewWebPushClient(cfg WebPushConfig) *WebPushClient {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = 600
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebPushClient{cfg: cfg}
}

func (c *WebPushClient) Send(ctx context.Context, sub Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload,
		&webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		},
		&webpush.Options{
			HTTPClient:      c.cfg.HTTPClient,
			Subscriber:      strings.TrimPrefix(c.cfg.Subject, "mailto:"),
			VAPIDPublicKey:  c.cfg.PublicKey,
			VAPIDPrivateKey: c.cfg.PrivateKey,
			TTL:             c.cfg.TTLSeconds,
			Urgency:         webpush.UrgencyHigh,
		},
	)
	if err != nil {
		return fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("web push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// GenerateVAPIDKeys returns a new base64url key pair for VAPID_PUBLIC_KEY and
// VAPID_PRIVATE_KEY.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}
