package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"SiteSign/internal/broadcast"
	"SiteSign/internal/model"
	"SiteSign/pkg/geo"
	"SiteSign/pkg/logger"
)

// Phase is where the tracker is in the reminder lifecycle.
type Phase string

const (
	PhaseDisabled          Phase = "disabled" // site has no pin
	PhaseIdle              Phase = "idle"     // no fix yet
	PhaseInside            Phase = "tracking-inside"
	PhaseOutsideUnnotified Phase = "tracking-outside-unnotified"
	PhaseOutsideNotified   Phase = "tracking-outside-notified"
	PhaseSnoozed           Phase = "snoozed"
	PhasePermissionDenied  Phase = "permission-denied"
	PhaseError             Phase = "error"
	PhaseSignedOut         Phase = "signed-out"
)

// Status is a snapshot of the tracking session.
type Status struct {
	Phase             Phase
	PermissionGranted *bool
	DistanceKm        *float64
	Outside           bool
	Snoozed           bool
	SnoozeUntil       *time.Time
	Notified          bool
	LastSampleAt      time.Time
	Error             string

	PushEnabled   bool
	PushError     string
	DispatchError string
}

// Actions is the server API the tracker calls.
type Actions interface {
	Action(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error)
	Notify(ctx context.Context, req model.PushNotifyRequest) (*model.PushNotifyResult, error)
}

// SubscriptionSetup registers the device for push once per activation.
type SubscriptionSetup interface {
	Ensure(ctx context.Context, visitID string) error
}

// InPageNotifier shows a reminder in the foreground alongside the push.
type InPageNotifier interface {
	NotifyInPage(visitID string, distanceKm float64)
}

type Config struct {
	VisitID   string
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
	SiteURL   string

	PollInterval time.Duration
	Watch        PositionOptions
	Poll         PositionOptions
	// SnoozeWindow is assumed when a snooze arrives without an expiry.
	SnoozeWindow time.Duration
}

// ConfigFromModel builds a Config from the server's tracker bootstrap.
func ConfigFromModel(tc *model.TrackerConfig) Config {
	return Config{
		VisitID:   tc.VisitID,
		Latitude:  tc.Latitude,
		Longitude: tc.Longitude,
		RadiusKm:  tc.RadiusKm,
		SiteURL:   tc.SiteURL,
	}
}

type Option func(*Tracker)

func WithSubscriptions(s SubscriptionSetup) Option { return func(t *Tracker) { t.subs = s } }

// WithEvents makes the tracker follow sign-out and snooze broadcasts.
func WithEvents(s broadcast.Subscriber) Option { return func(t *Tracker) { t.events = s } }

func WithInPageNotifier(n InPageNotifier) Option { return func(t *Tracker) { t.inPage = n } }

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithStatusHook is called with a fresh snapshot after every change.
func WithStatusHook(fn func(Status)) Option { return func(t *Tracker) { t.onChange = fn } }

// Tracker owns the tracking session of one visit. Position fixes from the
// watch and from the fallback poll go through the same reducer, Observe,
// which is safe to apply in any order and more than once.
type Tracker struct {
	cfg     Config
	center  geo.Point
	enabled bool

	source  PositionSource
	actions Actions
	subs    SubscriptionSetup
	events  broadcast.Subscriber
	inPage  InPageNotifier
	now     func() time.Time
	log     *zap.Logger

	onChange func(Status)

	mu          sync.Mutex
	st          Status
	notified    bool
	snoozeUntil *time.Time

	halt     chan struct{}
	haltOnce sync.Once
	pending  sync.WaitGroup
	runOnce  sync.Once
}

func NewTracker(cfg Config, source PositionSource, actions Actions, opts ...Option) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.Watch == (PositionOptions{}) {
		cfg.Watch = DefaultWatchOptions
	}
	if cfg.Poll == (PositionOptions{}) {
		cfg.Poll = DefaultPollOptions
	}
	if cfg.SnoozeWindow <= 0 {
		cfg.SnoozeWindow = 30 * time.Minute
	}

	t := &Tracker{
		cfg:     cfg,
		enabled: cfg.Latitude != nil && cfg.Longitude != nil,
		source:  source,
		actions: actions,
		now:     time.Now,
		log:     logger.Named("geofence").With(zap.String("visit_id", cfg.VisitID)),
		halt:    make(chan struct{}),
		st:      Status{Phase: PhaseIdle},
	}
	if t.enabled {
		t.center = geo.Point{Lat: *cfg.Latitude, Lon: *cfg.Longitude}
	} else {
		t.st.Phase = PhaseDisabled
	}

	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}

// Wait blocks until in-flight dispatches and subscription setup finish.
func (t *Tracker) Wait() {
	t.pending.Wait()
}

// Run samples until ctx is done, the visit is signed out, or location
// permission is refused. A tracker runs at most once; a disabled tracker
// returns immediately.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.enabled {
		t.log.Info("Geofence tracking disabled, site has no coordinates")
		return nil
	}

	started := false
	t.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("tracker already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if t.subs != nil {
		t.pending.Add(1)
		go func() {
			defer t.pending.Done()
			t.setupPush(ctx)
		}()
	}

	var events <-chan broadcast.Event
	if t.events != nil {
		ch, unsubscribe, err := t.events.Subscribe(ctx, t.cfg.VisitID)
		if err != nil {
			t.log.Warn("Failed to subscribe to visit events", zap.Error(err))
		} else {
			defer unsubscribe()
			events = ch
		}
	}

	watch, err := t.source.Watch(ctx, t.cfg.Watch)
	if err != nil {
		t.fail(err)
		if IsPermissionDenied(err) {
			return nil
		}
	}

	var producers sync.WaitGroup
	producers.Add(1)
	go func() {
		defer producers.Done()
		t.pollLoop(ctx)
	}()
	defer producers.Wait()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.halt:
			return nil
		case r, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			if r.Err != nil {
				t.fail(r.Err)
				continue
			}
			t.Observe(ctx, r.Sample)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			t.Apply(ev)
		}
	}
}

func (t *Tracker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.halt:
			return
		case <-ticker.C:
			s, err := t.source.Current(ctx, t.cfg.Poll)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.fail(err)
				continue
			}
			t.Observe(ctx, s)
		}
	}
}

func (t *Tracker) stop() {
	t.haltOnce.Do(func() { close(t.halt) })
}

// terminal reports whether sampling has ended for good. Caller holds mu.
func (t *Tracker) terminalLocked() bool {
	return t.st.Phase == PhaseSignedOut || t.st.Phase == PhasePermissionDenied || t.st.Phase == PhaseDisabled
}

// Observe applies one position fix. A fix taken before the snooze expiry is
// recorded but never notifies; outside the radius the first fix of an
// excursion dispatches a reminder and later ones do not, until a fix back
// inside or a snooze clears the flag.
func (t *Tracker) Observe(ctx context.Context, s Sample) {
	t.mu.Lock()
	if t.terminalLocked() {
		t.mu.Unlock()
		return
	}

	at := s.At
	if at.IsZero() {
		at = t.now()
	}
	d := geo.DistanceKm(t.center, s.Point)
	granted := true

	t.st.DistanceKm = &d
	t.st.PermissionGranted = &granted
	t.st.LastSampleAt = at
	t.st.Error = ""

	if t.snoozeUntil != nil && at.Before(*t.snoozeUntil) {
		t.st.Phase = PhaseSnoozed
		t.st.Snoozed = true
		t.st.Outside = false
		st := t.st
		t.mu.Unlock()
		t.changed(st)
		return
	}

	t.st.Snoozed = false
	outside := d > t.cfg.RadiusKm
	t.st.Outside = outside

	dispatch := false
	switch {
	case !outside:
		t.notified = false
		t.st.Phase = PhaseInside
	case !t.notified:
		t.notified = true
		dispatch = true
		t.st.Phase = PhaseOutsideUnnotified
		t.st.DispatchError = ""
	case t.st.Phase != PhaseOutsideUnnotified:
		t.st.Phase = PhaseOutsideNotified
	}
	t.st.Notified = t.notified
	st := t.st
	t.mu.Unlock()

	t.changed(st)

	if dispatch {
		t.log.Info("Left the site, dispatching reminder", zap.Float64("distance_km", d))
		if t.inPage != nil {
			t.inPage.NotifyInPage(t.cfg.VisitID, d)
		}
		t.pending.Add(1)
		go func() {
			defer t.pending.Done()
			t.dispatch(ctx)
		}()
	}
}

func (t *Tracker) dispatch(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	res, err := t.actions.Notify(ctx, model.PushNotifyRequest{VisitID: t.cfg.VisitID, SiteURL: t.cfg.SiteURL})

	t.mu.Lock()
	if t.st.Phase == PhaseOutsideUnnotified {
		t.st.Phase = PhaseOutsideNotified
	}
	switch {
	case err != nil:
		t.log.Warn("Failed to dispatch reminder", zap.Error(err))
		t.st.DispatchError = err.Error()
	case res.Skipped && res.Reason == model.SkipAlreadySignedOut:
		t.log.Info("Visit already signed out, stopping tracker")
		t.st.Phase = PhaseSignedOut
		t.stop()
	case res.Skipped:
		t.log.Info("Reminder skipped by server", zap.String("reason", res.Reason))
	}
	st := t.st
	t.mu.Unlock()

	t.changed(st)
}

// fail records a location error. Permission refusal halts sampling.
func (t *Tracker) fail(err error) {
	t.mu.Lock()
	if t.terminalLocked() {
		t.mu.Unlock()
		return
	}

	if IsPermissionDenied(err) {
		denied := false
		t.st.PermissionGranted = &denied
		t.st.Phase = PhasePermissionDenied
		t.st.Error = "Location permission denied"
		t.stop()
		t.log.Warn("Location permission denied, tracking stopped")
	} else if IsTimeout(err) && t.st.DistanceKm != nil {
		// The last fix still stands; a quiet device is not a failure.
		t.st.Error = "Location timeout"
		t.log.Debug("Location timeout, keeping last phase", zap.String("phase", string(t.st.Phase)))
	} else {
		t.st.Phase = PhaseError
		t.st.Error = "Location unavailable"
		t.log.Warn("Location unavailable", zap.Error(err))
	}
	st := t.st
	t.mu.Unlock()

	t.changed(st)
}

// Snooze asks the server to snooze reminders and, once it confirms, stops
// notifying until the returned expiry.
func (t *Tracker) Snooze(ctx context.Context) error {
	res, err := t.actions.Action(ctx, t.cfg.VisitID, model.ActionSnooze)
	if err != nil {
		t.log.Warn("Snooze failed", zap.Error(err))
		return err
	}
	if !res.OK {
		return fmt.Errorf("snooze of visit %s not confirmed", t.cfg.VisitID)
	}

	until := t.now().Add(t.cfg.SnoozeWindow)
	if res.SnoozedUntil != nil {
		until = *res.SnoozedUntil
	}
	t.applySnooze(until)
	return nil
}

// SignOut asks the server to sign the visit out. Local state changes only
// when the sign-out broadcast arrives.
func (t *Tracker) SignOut(ctx context.Context) error {
	if _, err := t.actions.Action(ctx, t.cfg.VisitID, model.ActionSignOut); err != nil {
		t.log.Warn("Sign out failed", zap.Error(err))
		return err
	}
	return nil
}

func (t *Tracker) applySnooze(until time.Time) {
	t.mu.Lock()
	if t.terminalLocked() {
		t.mu.Unlock()
		return
	}
	t.snoozeUntil = &until
	t.notified = false
	t.st.Notified = false
	t.st.Snoozed = true
	t.st.SnoozeUntil = &until
	t.st.Outside = false
	t.st.Phase = PhaseSnoozed
	st := t.st
	t.mu.Unlock()

	t.changed(st)
}

// Apply handles a broadcast for this visit. It reports whether tracking ended.
func (t *Tracker) Apply(ev broadcast.Event) bool {
	if ev.VisitID != t.cfg.VisitID {
		return false
	}

	if ev.Terminal() {
		t.mu.Lock()
		t.st.Phase = PhaseSignedOut
		st := t.st
		t.mu.Unlock()

		t.stop()
		t.log.Info("Visit signed out, tracking stopped", zap.String("event", string(ev.Type)))
		t.changed(st)
		return true
	}

	if ev.Type == broadcast.Snoozed {
		until := t.now().Add(t.cfg.SnoozeWindow)
		if ev.SnoozedUntil != nil {
			until = *ev.SnoozedUntil
		}
		t.applySnooze(until)
	}
	return false
}

func (t *Tracker) setupPush(ctx context.Context) {
	err := t.subs.Ensure(ctx, t.cfg.VisitID)

	t.mu.Lock()
	if err != nil {
		t.st.PushEnabled = false
		t.st.PushError = err.Error()
	} else {
		t.st.PushEnabled = true
		t.st.PushError = ""
	}
	st := t.st
	t.mu.Unlock()

	if err != nil {
		t.log.Warn("Push subscription setup failed, continuing without push", zap.Error(err))
	}
	t.changed(st)
}

func (t *Tracker) changed(st Status) {
	if t.onChange != nil {
		t.onChange(st)
	}
}
