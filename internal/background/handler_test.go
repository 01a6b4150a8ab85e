package background

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SiteSign/internal/broadcast"
	"SiteSign/internal/model"
	"SiteSign/internal/queue"
	"SiteSign/pkg/push"
)

const visitA = "8d0f6b1e-3c1a-4b6e-9a57-2f4d8c1e7b90"

type fakeActions struct {
	mu      sync.Mutex
	calls   []model.GeofenceAction
	err     error
	snoozed time.Time
}

func (f *fakeActions) Action(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	if f.err != nil {
		return nil, f.err
	}
	res := &model.GeofenceActionResult{OK: true, Action: action}
	if action == model.ActionSnooze {
		res.SnoozedUntil = &f.snoozed
	}
	return res, nil
}

func (f *fakeActions) log() []model.GeofenceAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.GeofenceAction(nil), f.calls...)
}

type fakeOpener struct{ urls []string }

func (f *fakeOpener) FocusOrOpen(ctx context.Context, url string) error {
	f.urls = append(f.urls, url)
	return nil
}

type recordedTimer struct {
	visits []string
	after  []time.Duration
}

func (r *recordedTimer) ScheduleAutoSignOut(ctx context.Context, visitID string, after time.Duration) error {
	r.visits = append(r.visits, visitID)
	r.after = append(r.after, after)
	return nil
}

func payload(t *testing.T, visitID string) []byte {
	t.Helper()
	data, err := push.NewPayload(visitID, "", "", "https://sitesign.app/signin?site=north+yard").Marshal()
	require.NoError(t, err)
	return data
}

func subscribe(t *testing.T, hub *broadcast.Hub) <-chan broadcast.Event {
	t.Helper()
	ch, cancel, err := hub.Subscribe(context.Background(), visitA)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return ch
}

func next(t *testing.T, ch <-chan broadcast.Event) broadcast.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast")
		return broadcast.Event{}
	}
}

func TestUnansweredReminderSignsOutOnce(t *testing.T) {
	hub := broadcast.NewHub()
	events := subscribe(t, hub)
	actions := &fakeActions{}
	presenter := NewLogPresenter()
	h := NewHandler(actions, presenter, hub, WithFallback(20*time.Millisecond))
	defer h.Close()

	require.NoError(t, h.HandlePush(context.Background(), payload(t, visitA)))

	n, ok := presenter.Last()
	require.True(t, ok)
	assert.Equal(t, "geofence-"+visitA, n.Tag)
	assert.Equal(t, push.DefaultTitle, n.Title)
	assert.True(t, n.RequireInteraction)
	require.Len(t, n.Actions, 2)
	assert.Equal(t, ClickSignOut, n.Actions[0].Action)
	assert.Equal(t, ClickStillHere, n.Actions[1].Action)

	ev := next(t, events)
	assert.Equal(t, broadcast.AutoSignedOut, ev.Type)
	assert.Equal(t, visitA, ev.VisitID)
	assert.Equal(t, []model.GeofenceAction{model.ActionAutoSignOut}, actions.log())
	assert.Equal(t, 0, h.local.Pending())
}

func TestRepeatPushReplacesNotificationKeepsTimers(t *testing.T) {
	actions := &fakeActions{}
	presenter := NewLogPresenter()
	h := NewHandler(actions, presenter, nil, WithFallback(10*time.Millisecond))
	defer h.Close()

	require.NoError(t, h.HandlePush(context.Background(), payload(t, visitA)))
	require.NoError(t, h.HandlePush(context.Background(), payload(t, visitA)))

	presenter.mu.Lock()
	assert.Len(t, presenter.shown, 1)
	presenter.mu.Unlock()

	require.Eventually(t, func() bool { return len(actions.log()) == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestHandlePushRejectsMissingVisit(t *testing.T) {
	timer := &recordedTimer{}
	presenter := NewLogPresenter()
	h := NewHandler(&fakeActions{}, presenter, nil, WithTimer(timer))

	err := h.HandlePush(context.Background(), []byte(`{"title":"hi","body":"there"}`))
	require.Error(t, err)

	_, shown := presenter.Last()
	assert.False(t, shown)
	assert.Empty(t, timer.visits)

	require.Error(t, h.HandlePush(context.Background(), []byte(`not json`)))
}

func TestHandlePushUsesInjectedTimer(t *testing.T) {
	timer := &recordedTimer{}
	h := NewHandler(&fakeActions{}, NewLogPresenter(), nil, WithTimer(timer))

	require.NoError(t, h.HandlePush(context.Background(), payload(t, visitA)))
	assert.Equal(t, []string{visitA}, timer.visits)
	assert.Equal(t, []time.Duration{DefaultFallback}, timer.after)
	assert.Nil(t, h.local)
}

func TestHandleClick(t *testing.T) {
	until := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	n := notificationFor(push.NewPayload(visitA, "", "", "https://sitesign.app/signin?site=north+yard"))

	t.Run("sign out", func(t *testing.T) {
		hub := broadcast.NewHub()
		events := subscribe(t, hub)
		actions := &fakeActions{}
		presenter := NewLogPresenter()
		require.NoError(t, presenter.Show(context.Background(), n))
		h := NewHandler(actions, presenter, hub, WithTimer(&recordedTimer{}))

		require.NoError(t, h.HandleClick(context.Background(), n, ClickSignOut))

		assert.Equal(t, []model.GeofenceAction{model.ActionSignOut}, actions.log())
		assert.Equal(t, broadcast.SignedOut, next(t, events).Type)
		_, open := presenter.Last()
		assert.False(t, open)
	})

	t.Run("still here", func(t *testing.T) {
		hub := broadcast.NewHub()
		events := subscribe(t, hub)
		actions := &fakeActions{snoozed: until}
		h := NewHandler(actions, NewLogPresenter(), hub, WithTimer(&recordedTimer{}))

		require.NoError(t, h.HandleClick(context.Background(), n, ClickStillHere))

		ev := next(t, events)
		assert.Equal(t, broadcast.Snoozed, ev.Type)
		require.NotNil(t, ev.SnoozedUntil)
		assert.Equal(t, until, *ev.SnoozedUntil)
	})

	t.Run("body click opens site", func(t *testing.T) {
		opener := &fakeOpener{}
		actions := &fakeActions{}
		h := NewHandler(actions, NewLogPresenter(), nil, WithTimer(&recordedTimer{}), WithWindowOpener(opener))

		require.NoError(t, h.HandleClick(context.Background(), n, ""))
		assert.Equal(t, []string{"https://sitesign.app/signin?site=north+yard"}, opener.urls)
		assert.Empty(t, actions.log())
	})

	t.Run("failed action is not broadcast", func(t *testing.T) {
		hub := broadcast.NewHub()
		events := subscribe(t, hub)
		h := NewHandler(&fakeActions{err: errors.New("500")}, NewLogPresenter(), hub, WithTimer(&recordedTimer{}))

		assert.Error(t, h.HandleClick(context.Background(), n, ClickSignOut))
		assert.Error(t, h.AutoSignOut(context.Background(), visitA))

		select {
		case ev := <-events:
			t.Fatalf("unexpected event %v", ev)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		h := NewHandler(&fakeActions{}, NewLogPresenter(), nil, WithTimer(&recordedTimer{}))
		assert.Error(t, h.HandleClick(context.Background(), n, "dismiss"))
	})
}

// serverActions announces accepted actions on the bus the way the server's
// geofence service does.
type serverActions struct {
	fakeActions
	bus broadcast.Publisher
}

func (s *serverActions) Action(ctx context.Context, visitID string, action model.GeofenceAction) (*model.GeofenceActionResult, error) {
	res, err := s.fakeActions.Action(ctx, visitID, action)
	if err != nil {
		return nil, err
	}
	ev := broadcast.Event{Type: broadcast.SignedOut, VisitID: visitID}
	switch action {
	case model.ActionAutoSignOut:
		ev.Type = broadcast.AutoSignedOut
	case model.ActionSnooze:
		ev = broadcast.Event{Type: broadcast.Snoozed, VisitID: visitID, SnoozedUntil: res.SnoozedUntil}
	}
	_ = s.bus.Publish(ctx, ev)
	return res, nil
}

func TestSharedBusAnnouncesOnce(t *testing.T) {
	hub := broadcast.NewHub()
	events := subscribe(t, hub)
	actions := &serverActions{bus: hub}
	n := notificationFor(push.NewPayload(visitA, "", "", ""))
	h := NewHandler(actions, NewLogPresenter(), hub, WithTimer(&recordedTimer{}), WithServerBroadcasts())

	require.NoError(t, h.AutoSignOut(context.Background(), visitA))
	assert.Equal(t, broadcast.AutoSignedOut, next(t, events).Type)

	require.NoError(t, h.HandleClick(context.Background(), n, ClickSignOut))
	assert.Equal(t, broadcast.SignedOut, next(t, events).Type)

	select {
	case ev := <-events:
		t.Fatalf("duplicate event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, []model.GeofenceAction{model.ActionAutoSignOut, model.ActionSignOut}, actions.log())
}

func TestLocalTimerStopCancelsPending(t *testing.T) {
	var fired int
	var mu sync.Mutex
	timer := NewLocalTimer(func(ctx context.Context, visitID string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	require.NoError(t, timer.ScheduleAutoSignOut(context.Background(), visitA, time.Hour))
	require.NoError(t, timer.ScheduleAutoSignOut(context.Background(), visitA, time.Hour))
	assert.Equal(t, 2, timer.Pending())

	timer.Stop()
	assert.Equal(t, 0, timer.Pending())
	assert.Error(t, timer.ScheduleAutoSignOut(context.Background(), visitA, time.Millisecond))

	mu.Lock()
	assert.Equal(t, 0, fired)
	mu.Unlock()
}

func TestAMQPRegistrar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var starts int
	var mu sync.Mutex
	delivered := make(chan []byte, 1)
	r := NewAMQPRegistrar(ctx, "agent-1", func(ctx context.Context, payload []byte) error {
		delivered <- payload
		return nil
	})
	r.consume = func(ctx context.Context, agentID string, handle queue.PushHandler) error {
		mu.Lock()
		starts++
		mu.Unlock()
		_ = handle(ctx, []byte(`{"visitId":"x"}`))
		<-ctx.Done()
		return ctx.Err()
	}
	r.startup = 10 * time.Millisecond

	require.NoError(t, r.Register(context.Background()))
	require.NoError(t, r.Register(context.Background()))
	assert.Equal(t, `{"visitId":"x"}`, string(<-delivered))

	sub, err := r.Subscribe(context.Background(), "BPub")
	require.NoError(t, err)
	assert.Equal(t, queue.AgentEndpoint("agent-1"), sub.Endpoint)

	cancel()
	<-r.Done()
	assert.NoError(t, r.Err())
	mu.Lock()
	assert.Equal(t, 1, starts)
	mu.Unlock()
}

func TestAMQPRegistrarStartupFailure(t *testing.T) {
	declare := errors.New("declare queue: channel closed")
	r := NewAMQPRegistrar(context.Background(), "agent-1", func(ctx context.Context, payload []byte) error { return nil })
	r.consume = func(ctx context.Context, agentID string, handle queue.PushHandler) error {
		return declare
	}
	r.startup = time.Minute

	start := time.Now()
	assert.ErrorIs(t, r.Register(context.Background()), declare)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, r.Register(context.Background()), declare, "later calls report the same failure")
	assert.ErrorIs(t, r.Err(), declare)
}

func TestAMQPRegistrarRegisterHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewAMQPRegistrar(ctx, "agent-1", func(ctx context.Context, payload []byte) error { return nil })
	r.consume = func(ctx context.Context, agentID string, handle queue.PushHandler) error {
		<-ctx.Done()
		return ctx.Err()
	}
	r.startup = time.Minute

	callCtx, callCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer callCancel()
	assert.ErrorIs(t, r.Register(callCtx), context.DeadlineExceeded)
}
