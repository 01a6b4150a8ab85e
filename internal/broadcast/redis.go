package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SiteSign/pkg/logger"
	"SiteSign/storage/redis"
)

// RedisBus publishes events on a per-visit pub/sub channel so they cross
// process boundaries.
type RedisBus struct {
	client *goredis.Client
}

func NewRedisBus(client *goredis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Channel is the pub/sub channel for a visit's events.
func Channel(visitID string) string {
	return redis.Key("visit", visitID, "events")
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal broadcast event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(ev.VisitID), data).Err(); err != nil {
		return fmt.Errorf("publish broadcast event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, visitID string) (<-chan Event, func(), error) {
	ps := b.client.Subscribe(ctx, Channel(visitID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe to visit events: %w", err)
	}

	out := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Logger.Warn("Dropping malformed broadcast event",
						zap.String("channel", msg.Channel),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}
