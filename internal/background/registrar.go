package background

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"SiteSign/internal/model"
	"SiteSign/internal/queue"
	"SiteSign/pkg/logger"
)

// consumerStartup is how long Register waits for the consumer to fail fast
// (queue declare, bind) before reporting it as running.
const consumerStartup = 2 * time.Second

var errConsumerStopped = errors.New("push consumer stopped")

// consume matches queue.StartPushConsumer.
type consume func(ctx context.Context, agentID string, handle queue.PushHandler) error

// AMQPRegistrar receives pushes for this agent from the broker. Register
// starts the consumer once and reports a consumer that dies during startup;
// Subscribe hands out the agent's amqp endpoint.
type AMQPRegistrar struct {
	ctx     context.Context
	agentID string
	handle  queue.PushHandler
	consume consume
	startup time.Duration

	once  sync.Once
	ready chan struct{}
	done  chan struct{}
	err   error
}

// NewAMQPRegistrar delivers pushes to handle until ctx is done.
func NewAMQPRegistrar(ctx context.Context, agentID string, handle queue.PushHandler) *AMQPRegistrar {
	return &AMQPRegistrar{
		ctx:     ctx,
		agentID: agentID,
		handle:  handle,
		consume: queue.StartPushConsumer,
		startup: consumerStartup,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *AMQPRegistrar) Register(ctx context.Context) error {
	r.once.Do(func() {
		time.AfterFunc(r.startup, func() { close(r.ready) })
		go func() {
			defer close(r.done)
			if err := r.consume(r.ctx, r.agentID, r.handle); err != nil && r.ctx.Err() == nil {
				logger.Named("background").Error("Push consumer stopped", zap.String("agent_id", r.agentID), zap.Error(err))
				r.err = err
			}
		}()
	})

	select {
	case <-r.done:
		return r.stopped()
	default:
	}
	select {
	case <-r.done:
		return r.stopped()
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopped explains a closed done channel. Caller has received from done.
func (r *AMQPRegistrar) stopped() error {
	if r.err != nil {
		return r.err
	}
	if err := r.ctx.Err(); err != nil {
		return err
	}
	return errConsumerStopped
}

func (r *AMQPRegistrar) Subscribe(ctx context.Context, publicKey string) (*model.PushSubscription, error) {
	return &model.PushSubscription{Endpoint: queue.AgentEndpoint(r.agentID)}, nil
}

// Done is closed when the consumer has stopped; Err then reports why.
func (r *AMQPRegistrar) Done() <-chan struct{} { return r.done }

func (r *AMQPRegistrar) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}
