package service

import (
	"context"
	"sync"
	"time"

	"SiteSign/internal/broadcast"
	"SiteSign/internal/model"
	"SiteSign/pkg/errors"
)

// memVisits is an in-memory VisitStore with the same guards as the SQL one.
type memVisits struct {
	mu     sync.Mutex
	visits map[string]*model.Visit
	err    error

	notifyErr error
}

func newMemVisits(visits ...*model.Visit) *memVisits {
	m := &memVisits{visits: make(map[string]*model.Visit)}
	for _, v := range visits {
		m.visits[v.ID] = v
	}
	return m
}

func (m *memVisits) get(id string) *model.Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := *m.visits[id]
	return &v
}

func (m *memVisits) GetByID(ctx context.Context, id string) (*model.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.visits[id]
	if !ok {
		return nil, errors.VisitNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memVisits) UpdatePushSubscription(ctx context.Context, id string, sub *model.PushSubscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	v, ok := m.visits[id]
	if !ok {
		return false, nil
	}
	v.PushSubscription = sub
	return true, nil
}

func (m *memVisits) MarkSignedOut(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	v, ok := m.visits[id]
	if !ok || v.SignedOutAt != nil {
		return false, nil
	}
	v.SignedOutAt = &at
	return true, nil
}

func (m *memVisits) SnoozeUntil(ctx context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if v, ok := m.visits[id]; ok {
		v.GeofenceSnoozedUntil = &until
	}
	return nil
}

func (m *memVisits) MarkNotified(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifyErr != nil {
		return m.notifyErr
	}
	if v, ok := m.visits[id]; ok {
		v.GeofenceNotifiedAt = &at
	}
	return nil
}

type memSites map[string]*model.Site

func (m memSites) GetByID(ctx context.Context, id string) (*model.Site, error) {
	s, ok := m[id]
	if !ok {
		return nil, errors.SiteNotFound
	}
	return s, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev broadcast.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
