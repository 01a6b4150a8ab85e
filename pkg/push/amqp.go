package push

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// PublishFunc publishes body to exchange under routingKey.
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// AMQPClient delivers payloads to agents that consume from a broker. Endpoints
// look like amqp://<exchange>/<routing key>.
type AMQPClient struct {
	publish PublishFunc
}

func NewAMQPClient(publish PublishFunc) *AMQPClient {
	return &AMQPClient{publish: publish}
}

// AMQPEndpoint builds the endpoint an agent registers for itself.
func AMQPEndpoint(exchange, routingKey string) string {
	return "amqp://" + exchange + "/" + url.PathEscape(routingKey)
}

func (c *AMQPClient) Send(ctx context.Context, sub Subscription, payload []byte) error {
	exchange, key, err := parseAMQPEndpoint(sub.Endpoint)
	if err != nil {
		return err
	}
	return c.publish(ctx, exchange, key, "", payload)
}

func parseAMQPEndpoint(endpoint string) (exchange, routingKey string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid amqp endpoint: %w", err)
	}
	routingKey, err = url.PathUnescape(strings.TrimPrefix(u.EscapedPath(), "/"))
	if err != nil {
		return "", "", fmt.Errorf("invalid amqp endpoint: %w", err)
	}
	if u.Scheme != "amqp" || u.Host == "" || routingKey == "" {
		return "", "", fmt.Errorf("invalid amqp endpoint %q", endpoint)
	}
	return u.Host, routingKey, nil
}
