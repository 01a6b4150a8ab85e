package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"SiteSign/internal/model"
	"SiteSign/pkg/logger"
)

// ErrPushUnavailable means the server has push turned off.
var ErrPushUnavailable = errors.New("push notifications unavailable")

// PushKeySource fetches the server's VAPID application key.
type PushKeySource interface {
	PushConfig(ctx context.Context) (*model.PushConfigResult, error)
}

// SubscriptionStore persists a subscription against a visit.
type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, visitID string, sub *model.PushSubscription) error
}

// Registrar is the device side of push: it gets the receiver running and
// creates a subscription bound to the server's application key.
type Registrar interface {
	Register(ctx context.Context) error
	Subscribe(ctx context.Context, publicKey string) (*model.PushSubscription, error)
}

// Manager obtains a push subscription for a visit and saves it on the server.
// A visit whose subscription has already been saved is not saved again.
type Manager struct {
	keys      PushKeySource
	store     SubscriptionStore
	registrar Registrar

	mu    sync.Mutex
	saved map[string]string // visit id -> endpoint
}

func NewManager(keys PushKeySource, store SubscriptionStore, registrar Registrar) *Manager {
	return &Manager{
		keys:      keys,
		store:     store,
		registrar: registrar,
		saved:     make(map[string]string),
	}
}

// Ensure registers the receiver, subscribes and saves the subscription.
func (m *Manager) Ensure(ctx context.Context, visitID string) error {
	if visitID == "" {
		return errors.New("visit id is required")
	}

	cfg, err := m.keys.PushConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch push key: %w", err)
	}
	if !cfg.Enabled || cfg.PublicKey == "" {
		return ErrPushUnavailable
	}

	if err := m.registrar.Register(ctx); err != nil {
		return fmt.Errorf("failed to register push receiver: %w", err)
	}

	sub, err := m.registrar.Subscribe(ctx, cfg.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if !sub.Valid() {
		return errors.New("push subscription has no endpoint")
	}

	m.mu.Lock()
	done := m.saved[visitID] == sub.Endpoint
	m.mu.Unlock()
	if done {
		return nil
	}

	if err := m.store.SaveSubscription(ctx, visitID, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	m.mu.Lock()
	m.saved[visitID] = sub.Endpoint
	m.mu.Unlock()

	logger.Logger.Info("Push subscription saved",
		zap.String("visit_id", visitID),
		zap.String("endpoint", sub.Endpoint),
	)
	return nil
}
