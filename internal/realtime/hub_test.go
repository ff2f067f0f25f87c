package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

func seatEvent(flight, seat string, status model.SeatStatus, version uint64) model.SeatEvent {
	return model.SeatEvent{FlightID: flight, SeatID: seat, Status: status, Version: version}
}

func receive(t *testing.T, s *Subscriber) model.SeatEvent {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return model.SeatEvent{}
	}
}

func assertNoEvent(t *testing.T, s *Subscriber) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversOnlyToFlightSubscribers(t *testing.T) {
	hub := NewHub(8, nil)
	ctx := context.Background()
	a, b := hub.NewSubscriber(), hub.NewSubscriber()
	require.True(t, hub.Subscribe(a, "FL001"))
	require.True(t, hub.Subscribe(b, "FL002"))

	require.NoError(t, hub.Publish(ctx, seatEvent("FL001", "12A", model.SeatLocked, 1)))

	assert.Equal(t, "12A", receive(t, a).SeatID)
	assertNoEvent(t, b)
	assert.Equal(t, 1, hub.SubscriberCount("FL001"))
}

func TestHubDropsStaleAndDuplicateVersions(t *testing.T) {
	hub := NewHub(8, nil)
	ctx := context.Background()
	s := hub.NewSubscriber()
	hub.Subscribe(s, "FL001")

	_ = hub.Publish(ctx, seatEvent("FL001", "12A", model.SeatReserved, 2))
	_ = hub.Publish(ctx, seatEvent("FL001", "12A", model.SeatLocked, 1))
	_ = hub.Publish(ctx, seatEvent("FL001", "12A", model.SeatReserved, 2))
	_ = hub.Publish(ctx, seatEvent("FL001", "12B", model.SeatLocked, 1))

	first := receive(t, s)
	assert.Equal(t, model.SeatReserved, first.Status)
	assert.Equal(t, "12B", receive(t, s).SeatID)
	assertNoEvent(t, s)
}

func TestHubDisconnectsSlowSubscriber(t *testing.T) {
	hub := NewHub(1, nil)
	ctx := context.Background()
	slow, fast := hub.NewSubscriber(), hub.NewSubscriber()
	hub.Subscribe(slow, "FL001")
	hub.Subscribe(fast, "FL001")

	_ = hub.Publish(ctx, seatEvent("FL001", "12A", model.SeatLocked, 1))
	receive(t, fast)
	_ = hub.Publish(ctx, seatEvent("FL001", "12B", model.SeatLocked, 1))

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscriber was not disconnected")
	}
	assert.Equal(t, "12B", receive(t, fast).SeatID)
	assert.Equal(t, 1, hub.SubscriberCount("FL001"))
	assert.False(t, hub.Subscribe(slow, "FL001"), "removed subscribers cannot resubscribe")
}

func TestHubUnsubscribeAndRemove(t *testing.T) {
	hub := NewHub(8, nil)
	ctx := context.Background()
	s := hub.NewSubscriber()
	hub.Subscribe(s, "FL001")
	hub.Subscribe(s, "FL002")

	hub.Unsubscribe(s, "FL001")
	_ = hub.Publish(ctx, seatEvent("FL001", "1A", model.SeatLocked, 1))
	assertNoEvent(t, s)

	hub.Remove(s)
	assert.Zero(t, hub.SubscriberCount("FL002"))
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Remove")
	}
	hub.Remove(s)
}
