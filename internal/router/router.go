package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/kiosk-seat-engine/internal/handler"
	"github.com/iliyamo/kiosk-seat-engine/internal/middleware"
	"github.com/iliyamo/kiosk-seat-engine/internal/realtime"
)

// RegisterRoutes registers the health check.  Load balancers use it to
// verify that the service and its backing stores are reachable.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// SeatMiddleware carries the optional middleware for the seat routes.  A
// nil entry means the concern is disabled.
type SeatMiddleware struct {
	RateLimit echo.MiddlewareFunc // lock and confirm
	Cache     echo.MiddlewareFunc // assignments listing
}

// RegisterSeats registers the seat endpoints under
// /api/flights/:flightId/seats.  Every route resolves the kiosk session
// first so the rate limiter can key on it.
func RegisterSeats(e *echo.Echo, s *handler.SeatHandler, mw SeatMiddleware) {
	g := e.Group("/api/flights/:flightId/seats", middleware.KioskIdentity())

	g.GET("", s.GetSeatMap)
	g.GET("/assignments", s.GetAssignments, optional(mw.Cache)...)

	limited := optional(mw.RateLimit)
	g.POST("/:seatId/lock", s.LockSeat, limited...)
	// Unlock is never rate limited; a kiosk must always be able to let go.
	g.DELETE("/:seatId/lock", s.UnlockSeat)
	g.POST("/:seatId/confirm", s.ConfirmSeat, limited...)
}

// RegisterRealtime mounts the seat event WebSocket at /ws.
func RegisterRealtime(e *echo.Echo, ws *realtime.Endpoint) {
	e.GET("/ws", ws.Handle)
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}
