package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"SiteSign/pkg/errors"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/push"
	"SiteSign/storage/mq"
)

// AgentQueue is the queue an agent receives its pushes on.
func AgentQueue(agentID string) string {
	return "push.agent." + agentID
}

// AgentEndpoint is the subscription endpoint an agent registers; the server's
// AMQP push client routes it back to AgentQueue.
func AgentEndpoint(agentID string) string {
	return push.AMQPEndpoint(mq.PushExchange, agentID)
}

// PushHandler receives one delivered push payload.
type PushHandler func(ctx context.Context, payload []byte) error

// pushDelivery acks every delivery: push is best-effort, and a payload the
// handler rejects will not get better on redelivery.
func pushDelivery(handle PushHandler) mq.MessageHandler {
	return func(ctx context.Context, body []byte) error {
		if err := handle(ctx, body); err != nil {
			return errors.SkipMessageError{Reason: err.Error()}
		}
		return nil
	}
}

// StartPushConsumer declares the agent's transient queue and blocks
// delivering pushes to handle.
func StartPushConsumer(ctx context.Context, agentID string, handle PushHandler) error {
	if agentID == "" {
		return fmt.Errorf("agent id is required")
	}

	queue := AgentQueue(agentID)
	if err := mq.DeclareBoundQueue(queue, mq.PushExchange, agentID, false); err != nil {
		return err
	}

	logger.Logger.Info("Listening for pushes",
		zap.String("queue", queue),
		zap.String("endpoint", AgentEndpoint(agentID)),
	)

	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         queue,
		ConsumerTag:   "agent_" + agentID,
		PrefetchCount: 1,
		Handler:       pushDelivery(handle),
	})
}
