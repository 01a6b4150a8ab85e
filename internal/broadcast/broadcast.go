// Package broadcast carries geofence events from whoever completes an action
// (the background handler, the auto sign-out worker) to open foreground
// trackers of the same visit.
package broadcast

import (
	"context"
	"sync"
	"time"
)

// EventType names what happened to a visit.
type EventType string

const (
	SignedOut     EventType = "SIGNED_OUT"
	AutoSignedOut EventType = "AUTO_SIGNED_OUT"
	Snoozed       EventType = "SNOOZED"
)

// Event is the broadcast message. SnoozedUntil is set for Snoozed when known.
type Event struct {
	Type         EventType  `json:"type"`
	VisitID      string     `json:"visitId"`
	SnoozedUntil *time.Time `json:"snoozedUntil,omitempty"`
}

// Terminal reports whether the event ends tracking of the visit.
func (e Event) Terminal() bool {
	return e.Type == SignedOut || e.Type == AutoSignedOut
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber hands out a channel of events for one visit. The returned cancel
// func unsubscribes and closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, visitID string) (<-chan Event, func(), error)
}

type Bus interface {
	Publisher
	Subscriber
}

// Hub is an in-process Bus. Slow subscribers drop events rather than block
// publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*hubSub]struct{}
	buffer int
}

type hubSub struct {
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*hubSub]struct{}), buffer: 16}
}

func (h *Hub) Publish(ctx context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[ev.VisitID] {
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, visitID string) (<-chan Event, func(), error) {
	s := &hubSub{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[visitID] == nil {
		h.subs[visitID] = make(map[*hubSub]struct{})
	}
	h.subs[visitID][s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[visitID], s)
			if len(h.subs[visitID]) == 0 {
				delete(h.subs, visitID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel, nil
}
