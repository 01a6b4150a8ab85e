package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/pkg/logger"
)

// Exchanges and queues used across binaries.
const (
	DelayedExchange    = "sitesign.geofence.delayed"
	AutoSignOutQueue   = "geofence.auto_signout"
	AutoSignOutRouting = "geofence.auto_signout"

	PushExchange = "sitesign.push"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		conn, connErr = amqp.Dial(config.Cfg.GetRabbitMQURL())
		if connErr != nil {
			logger.Logger.Error("Failed to connect to RabbitMQ",
				zap.String("addr", config.Cfg.RabbitMQAddr),
				zap.Error(connErr),
			)
			return
		}

		connErr = DeclareTopology()
	})

	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

// DeclareTopology declares the delayed auto sign-out route and the push
// exchange. Requires the rabbitmq_delayed_message_exchange plugin.
func DeclareTopology() error {
	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		DelayedExchange,
		"x-delayed-message",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", DelayedExchange, err)
	}

	if _, err := ch.QueueDeclare(AutoSignOutQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", AutoSignOutQueue, err)
	}

	if err := ch.QueueBind(AutoSignOutQueue, AutoSignOutRouting, DelayedExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", AutoSignOutQueue, err)
	}

	if err := ch.ExchangeDeclare(PushExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", PushExchange, err)
	}

	return nil
}

// DeclareBoundQueue declares a queue and binds it to exchange under key.
// Transient queues are exclusive to this connection and vanish with it.
func DeclareBoundQueue(queue, exchange, key string, durable bool) error {
	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, durable, !durable, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return ch.QueueBind(queue, key, exchange, false, nil)
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil {
		_ = publisherCh.Close()
		publisherCh = nil
	}
	pubMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
