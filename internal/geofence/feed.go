package geofence

import (
	"context"
	"sync"
	"time"
)

// FeedSource is a PositionSource driven by pushed fixes, such as readings
// arriving from a device bridge. A permission error is sticky: later watches
// and polls fail with it.
type FeedSource struct {
	mu      sync.Mutex
	last    *Sample
	denied  error
	watches map[chan Reading]struct{}
	waiters []chan Reading
	now     func() time.Time
}

func NewFeedSource() *FeedSource {
	return &FeedSource{
		watches: make(map[chan Reading]struct{}),
		now:     time.Now,
	}
}

// Push records a fix and delivers it to every watch and pending poll. Watches
// that are not keeping up miss it.
func (f *FeedSource) Push(s Sample) {
	if s.At.IsZero() {
		s.At = f.now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = &s
	f.deliverLocked(Reading{Sample: s})
}

// Fail delivers a location error.
func (f *FeedSource) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if IsPermissionDenied(err) {
		f.denied = err
	}
	f.deliverLocked(Reading{Err: err})
}

func (f *FeedSource) deliverLocked(r Reading) {
	for ch := range f.watches {
		select {
		case ch <- r:
		default:
		}
	}
	for _, w := range f.waiters {
		w <- r
	}
	f.waiters = nil
}

func (f *FeedSource) fresh(maxAge time.Duration) (Sample, bool) {
	if f.last == nil {
		return Sample{}, false
	}
	if maxAge > 0 && f.now().Sub(f.last.At) > maxAge {
		return Sample{}, false
	}
	return *f.last, true
}

func (f *FeedSource) Watch(ctx context.Context, opts PositionOptions) (<-chan Reading, error) {
	f.mu.Lock()
	if f.denied != nil {
		err := f.denied
		f.mu.Unlock()
		return nil, err
	}

	ch := make(chan Reading, 8)
	if s, ok := f.fresh(opts.MaximumAge); ok {
		ch <- Reading{Sample: s}
	}
	f.watches[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.watches, ch)
		close(ch)
		f.mu.Unlock()
	}()

	return ch, nil
}

// Current returns the last fix if it is younger than opts.MaximumAge, else
// waits up to opts.Timeout for the next one.
func (f *FeedSource) Current(ctx context.Context, opts PositionOptions) (Sample, error) {
	f.mu.Lock()
	if f.denied != nil {
		err := f.denied
		f.mu.Unlock()
		return Sample{}, err
	}
	if s, ok := f.fresh(opts.MaximumAge); ok {
		f.mu.Unlock()
		return s, nil
	}
	w := make(chan Reading, 1)
	f.waiters = append(f.waiters, w)
	f.mu.Unlock()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		t := time.NewTimer(opts.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-w:
		return r.Sample, r.Err
	case <-timeout:
		return Sample{}, &LocationError{Code: PositionTimeout}
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}
}
