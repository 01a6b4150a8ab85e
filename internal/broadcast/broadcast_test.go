package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubDeliversPerVisit(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	a, cancelA, err := hub.Subscribe(ctx, "visit-a")
	require.NoError(t, err)
	defer cancelA()
	b, cancelB, err := hub.Subscribe(ctx, "visit-b")
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, hub.Publish(ctx, Event{Type: AutoSignedOut, VisitID: "visit-a"}))

	ev := receive(t, a)
	assert.Equal(t, AutoSignedOut, ev.Type)
	assert.True(t, ev.Terminal())

	select {
	case ev := <-b:
		t.Fatalf("unexpected event for other visit: %+v", ev)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel, err := hub.Subscribe(context.Background(), "v")
	require.NoError(t, err)

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.NoError(t, hub.Publish(context.Background(), Event{Type: Snoozed, VisitID: "v"}))
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	ch, cancel, err := hub.Subscribe(context.Background(), "v")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < hub.buffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), Event{Type: Snoozed, VisitID: "v"}))
	}
	assert.Len(t, ch, hub.buffer)
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisBus(client)
	ctx := context.Background()

	ch, cancel, err := bus.Subscribe(ctx, "visit-1")
	require.NoError(t, err)
	defer cancel()

	until := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(ctx, Event{Type: Snoozed, VisitID: "visit-1", SnoozedUntil: &until}))

	ev := receive(t, ch)
	assert.Equal(t, Snoozed, ev.Type)
	assert.Equal(t, "visit-1", ev.VisitID)
	require.NotNil(t, ev.SnoozedUntil)
	assert.True(t, until.Equal(*ev.SnoozedUntil))
	assert.False(t, ev.Terminal())
}

func TestRedisBusSkipsMalformedPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisBus(client)
	ctx := context.Background()

	ch, cancel, err := bus.Subscribe(ctx, "visit-2")
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, Channel("visit-2"), "not json").Err())
	require.NoError(t, bus.Publish(ctx, Event{Type: SignedOut, VisitID: "visit-2"}))

	assert.Equal(t, SignedOut, receive(t, ch).Type)

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
