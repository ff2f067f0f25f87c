package kiosk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
	"github.com/iliyamo/kiosk-seat-engine/internal/realtime"
	"github.com/iliyamo/kiosk-seat-engine/internal/repository"
	"github.com/iliyamo/kiosk-seat-engine/internal/service"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// coordAPI serves SeatAPI straight from an in-process coordinator.
type coordAPI struct {
	coord *service.Coordinator

	mu        sync.Mutex
	unlockErr error
	gate      chan struct{} // when set, Lock waits for it
	entered   chan struct{}
}

func mapServiceErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrSeatUnavailable):
		return ErrSeatUnavailable
	case errors.Is(err, service.ErrLockExpired):
		return ErrLockExpired
	case errors.Is(err, service.ErrLockNotHeld):
		return ErrLockNotHeld
	case errors.Is(err, service.ErrInvariantViolation):
		return ErrInvariantViolation
	case errors.Is(err, repository.ErrSeatNotFound), errors.Is(err, repository.ErrFlightNotFound):
		return ErrSeatNotFound
	}
	return err
}

func (a *coordAPI) FetchSeatMap(ctx context.Context, flightID string) (model.SeatMap, error) {
	m, err := a.coord.SeatMap(ctx, flightID)
	return m, mapServiceErr(err)
}

func (a *coordAPI) Lock(ctx context.Context, flightID, seatID string, session SessionIdentity) (model.Seat, error) {
	a.mu.Lock()
	gate, entered := a.gate, a.entered
	a.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	s, err := a.coord.Lock(ctx, flightID, seatID, string(session))
	return s, mapServiceErr(err)
}

func (a *coordAPI) Unlock(ctx context.Context, flightID, seatID string, session SessionIdentity) error {
	a.mu.Lock()
	failure := a.unlockErr
	a.mu.Unlock()
	if failure != nil {
		return failure
	}
	_, err := a.coord.Unlock(ctx, flightID, seatID, string(session))
	return mapServiceErr(err)
}

func (a *coordAPI) Confirm(ctx context.Context, flightID, seatID string, session SessionIdentity, bookingID string) (model.Seat, error) {
	s, err := a.coord.Confirm(ctx, flightID, seatID, string(session), bookingID)
	return s, mapServiceErr(err)
}

// hubConn is an in-memory Conn attached to a realtime.Hub.
type hubConn struct {
	hub    *realtime.Hub
	sub    *realtime.Subscriber
	acks   chan realtime.ServerFrame
	closed chan struct{}
	once   sync.Once
}

func (c *hubConn) Send(f realtime.ClientFrame) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	ack := realtime.ServerFrame{Type: realtime.FrameSubscribed, FlightID: f.FlightID}
	switch f.Action {
	case realtime.ActionSubscribe:
		c.hub.Subscribe(c.sub, f.FlightID)
	case realtime.ActionUnsubscribe:
		c.hub.Unsubscribe(c.sub, f.FlightID)
		ack.Type = realtime.FrameUnsubscribed
	}
	select {
	case c.acks <- ack:
	default:
	}
	return nil
}

func (c *hubConn) Receive() (realtime.ServerFrame, error) {
	select {
	case ev := <-c.sub.Events():
		return realtime.ServerFrame{Type: realtime.FrameSeat, FlightID: ev.FlightID, Event: &ev}, nil
	case a := <-c.acks:
		return a, nil
	case <-c.sub.Done():
		return realtime.ServerFrame{}, errors.New("dropped by hub")
	case <-c.closed:
		return realtime.ServerFrame{}, errors.New("connection closed")
	}
}

func (c *hubConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.hub.Remove(c.sub)
	})
	return nil
}

// hubDialer hands out hubConns and can simulate an outage.
type hubDialer struct {
	hub *realtime.Hub

	mu      sync.Mutex
	offline bool
	conns   []*hubConn
}

func (d *hubDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return nil, ErrTransportUnavailable
	}
	c := &hubConn{hub: d.hub, sub: d.hub.NewSubscriber(), acks: make(chan realtime.ServerFrame, 64), closed: make(chan struct{})}
	d.conns = append(d.conns, c)
	return c, nil
}

// Outage takes the transport down and drops every live connection.
func (d *hubDialer) Outage() {
	d.mu.Lock()
	d.offline = true
	conns := d.conns
	d.conns = nil
	d.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (d *hubDialer) Restore() {
	d.mu.Lock()
	d.offline = false
	d.mu.Unlock()
}

type world struct {
	store *repository.MemoryStore
	hub   *realtime.Hub
	coord *service.Coordinator
	clock *testClock
	api   *coordAPI
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.CreateBulk(context.Background(), repository.GenerateSeats("FL001", repository.Layout{
		{Class: model.ClassEconomy, FirstRow: 12, LastRow: 15, Letters: "ABCD"},
	})))
	hub := realtime.NewHub(64, nil)
	clock := &testClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	coord := service.NewCoordinator(store, hub, 5*time.Minute, nil, service.WithClock(clock.Now))
	return &world{store: store, hub: hub, coord: coord, clock: clock, api: &coordAPI{coord: coord}}
}

type kioskUnderTest struct {
	inv    *Inventory
	ch     *RealtimeChannel
	dialer *hubDialer
	id     SessionIdentity
}

// startKiosk runs a channel and inventory tracking FL001 until the test ends.
func (w *world) startKiosk(t *testing.T, id SessionIdentity) *kioskUnderTest {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dialer := &hubDialer{hub: w.hub}
	ch := NewRealtimeChannel(dialer, ChannelOptions{RetryDelay: 10 * time.Millisecond, Burst: 100}, nil)
	inv := NewInventory(w.api, ch, id, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = ch.Run(ctx) }()
	go func() { defer wg.Done(); _ = inv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	require.NoError(t, inv.Track(ctx, "FL001"))
	require.Eventually(t, func() bool { return !inv.Snapshot().Stale }, waitFor, tick)
	return &kioskUnderTest{inv: inv, ch: ch, dialer: dialer, id: id}
}

// startOffline runs an inventory without a realtime feed.
func (w *world) startOffline(t *testing.T, id SessionIdentity) *Inventory {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	inv := NewInventory(w.api, nil, id, nil)
	done := make(chan struct{})
	go func() { defer close(done); _ = inv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.NoError(t, inv.Track(ctx, "FL001"))
	return inv
}

func seatIn(t *testing.T, inv *Inventory, seatID string) model.Seat {
	t.Helper()
	s, ok := inv.Snapshot().Seat(seatID)
	require.True(t, ok, "seat %s missing from view", seatID)
	return s
}

func seatState(inv *Inventory, seatID string) (model.SeatStatus, string) {
	s, _ := inv.Snapshot().Seat(seatID)
	return s.Status, s.OwnerToken
}

func waitNotice(t *testing.T, inv *Inventory, kind NoticeKind) Notice {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case n := <-inv.Notices():
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("no %s notice", kind)
			return Notice{}
		}
	}
}
