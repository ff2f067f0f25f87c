package kiosk

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/kiosk-seat-engine/internal/handler"
	"github.com/iliyamo/kiosk-seat-engine/internal/model"
	"github.com/iliyamo/kiosk-seat-engine/internal/realtime"
	"github.com/iliyamo/kiosk-seat-engine/internal/router"
)

// startService serves the world's coordinator and hub over real HTTP and
// WebSocket endpoints.
func (w *world) startService(t *testing.T) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	router.RegisterSeats(e, handler.NewSeatHandler(w.coord), router.SeatMiddleware{})
	router.RegisterRealtime(e, realtime.NewEndpoint(w.hub, nil))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func startRemoteKiosk(t *testing.T, srv *httptest.Server, id SessionIdentity) *Inventory {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := NewRealtimeChannel(WebSocketDialer{URL: WebSocketURL(srv.URL)}, ChannelOptions{RetryDelay: 20 * time.Millisecond, Burst: 10}, nil)
	inv := NewInventory(NewHTTPClient(srv.URL, srv.Client()), ch, id, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = ch.Run(ctx) }()
	go func() { defer wg.Done(); _ = inv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	require.NoError(t, inv.Track(ctx, "FL001"))
	return inv
}

func TestTwoKiosksOverHTTPAndWebSocket(t *testing.T) {
	w := newWorld(t)
	srv := w.startService(t)
	a := startRemoteKiosk(t, srv, "session-a")
	b := startRemoteKiosk(t, srv, "session-b")
	require.Eventually(t, func() bool { return w.hub.SubscriberCount("FL001") == 2 }, waitFor, tick)
	ctx := context.Background()

	require.NoError(t, a.SelectSeat(ctx, "12A"))
	require.Eventually(t, func() bool {
		st, owner := seatState(b, "12A")
		return st == model.SeatLocked && owner == "session-a"
	}, waitFor, tick)

	assert.ErrorIs(t, b.SelectSeat(ctx, "12A"), ErrSeatUnavailable)
	require.NoError(t, b.SelectSeat(ctx, "12B"))

	require.NoError(t, a.ConfirmSelection(ctx, "bk100"))
	assert.Equal(t, "BK100", a.Snapshot().BookingID)
	require.Eventually(t, func() bool {
		st, _ := seatState(b, "12A")
		return st == model.SeatReserved
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		st, owner := seatState(a, "12B")
		return st == model.SeatLocked && owner == "session-b"
	}, waitFor, tick)
	assert.Equal(t, 14, b.Snapshot().AvailableCount)
}
