package background

import (
	"context"
	"sync"
	"time"
)

// LocalTimer fires in-process. Every schedule gets its own timer; several
// pending timers for one visit all fire.
type LocalTimer struct {
	fire func(ctx context.Context, visitID string)

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	wg      sync.WaitGroup
	stopped bool
}

func NewLocalTimer(fire func(ctx context.Context, visitID string)) *LocalTimer {
	return &LocalTimer{fire: fire, pending: make(map[*time.Timer]struct{})}
}

// ScheduleAutoSignOut is not tied to ctx: the timer outlives the push that
// started it.
func (t *LocalTimer) ScheduleAutoSignOut(ctx context.Context, visitID string, after time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return context.Canceled
	}

	t.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		defer t.wg.Done()

		t.mu.Lock()
		_, live := t.pending[timer]
		delete(t.pending, timer)
		t.mu.Unlock()

		if live {
			t.fire(context.Background(), visitID)
		}
	})
	t.pending[timer] = struct{}{}
	return nil
}

// Pending is the number of timers that have not fired.
func (t *LocalTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop cancels pending timers and waits for running ones.
func (t *LocalTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	for timer := range t.pending {
		if timer.Stop() {
			t.wg.Done()
		}
		delete(t.pending, timer)
	}
	t.mu.Unlock()

	t.wg.Wait()
}
