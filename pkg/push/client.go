package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/pkg/logger"
)

// ErrSubscriptionGone means the push service no longer knows the endpoint.
var ErrSubscriptionGone = errors.New("push subscription gone")

// Subscription is where and how to deliver to one device.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Client delivers an encoded payload to one subscription.
type Client interface {
	Send(ctx context.Context, sub Subscription, payload []byte) error
}

// Router picks a transport from the endpoint scheme: https endpoints go to a
// Web Push service, amqp endpoints to a broker-connected agent.
type Router struct {
	WebPush Client
	AMQP    Client
}

func (r *Router) Send(ctx context.Context, sub Subscription, payload []byte) error {
	u, err := url.Parse(sub.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid push endpoint: %w", err)
	}

	var c Client
	switch u.Scheme {
	case "https", "http":
		c = r.WebPush
	case "amqp":
		c = r.AMQP
	}
	if c == nil {
		return fmt.Errorf("no push transport for scheme %q", u.Scheme)
	}
	return c.Send(ctx, sub, payload)
}

var (
	pushClient Client
	pushOnce   sync.Once
	pushErr    error
)

// Init builds the process-wide client. Without VAPID keys push stays disabled
// and GetClient returns nil. publish, when non-nil, enables amqp endpoints.
func Init(publish PublishFunc) error {
	pushOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.PushProvider {
		case "mock":
			pushClient = NewMockClient()
		case "auto", "":
			if !cfg.PushConfigured() {
				logger.Logger.Warn("Push disabled: VAPID keys not configured")
				return
			}

			webPush := NewWebPushClient(WebPushConfig{
				Subject:    cfg.VAPIDSubject(),
				PublicKey:  cfg.VAPIDPublicKey,
				PrivateKey: cfg.VAPIDPrivateKey,
				TTLSeconds: cfg.PushTTLSeconds,
			})
			router := &Router{WebPush: NewBreakerClient("webpush", webPush, 5, 30*time.Second)}
			if publish != nil {
				router.AMQP = NewAMQPClient(publish)
			}
			pushClient = router
		default:
			pushErr = fmt.Errorf("unsupported push provider: %s", cfg.PushProvider)
		}

		if pushErr != nil {
			logger.Logger.Error("Failed to initialize push client", zap.Error(pushErr))
			return
		}

		logger.Logger.Info("Push client initialized", zap.String("provider", cfg.PushProvider))
	})

	return pushErr
}

// GetClient returns the configured client, or nil when push is disabled.
func GetClient() Client {
	return pushClient
}
