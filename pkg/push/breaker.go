package push

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"SiteSign/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = errors.New("push circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerClient wraps a Client and stops calling it after maxFailures
// consecutive transport failures, probing again after resetTimeout. A gone
// subscription is a per-device answer, not a transport failure.
type BreakerClient struct {
	next             Client
	name             string
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
	now              func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	lastFailTime  time.Time
	halfOpenCalls int
}

func NewBreakerClient(name string, next Client, maxFailures int, resetTimeout time.Duration) *BreakerClient {
	return &BreakerClient{
		next:             next,
		name:             name,
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: 1,
		now:              time.Now,
	}
}

func (b *BreakerClient) Send(ctx context.Context, sub Subscription, payload []byte) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := b.next.Send(ctx, sub, payload)
	b.recordResult(err)
	return err
}

func (b *BreakerClient) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerClient) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailTime) < b.resetTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	default:
		return false
	}
}

func (b *BreakerClient) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || errors.Is(err, ErrSubscriptionGone) {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	b.lastFailTime = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *BreakerClient) transition(to State) {
	from := b.state
	b.state = to
	b.halfOpenCalls = 0
	if to == StateClosed {
		b.failures = 0
	}

	logger.Logger.Info("Push circuit breaker state changed",
		zap.String("breaker", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", b.failures),
	)
}
