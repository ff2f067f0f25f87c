package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/kiosk-seat-engine/internal/model"
    "github.com/iliyamo/kiosk-seat-engine/internal/service"
)

const (
    // SessionHeader carries the kiosk session id on every request.
    SessionHeader = "X-Kiosk-Session"
    // SessionContextKey is where the identity middleware stores the kiosk session.
    SessionContextKey = "kiosk_session"
)

// SeatHandler exposes the lock coordinator over HTTP.  Every mutating
// endpoint identifies the kiosk by sessionId, taken from the JSON body or,
// when absent, from the session the identity middleware put on the context.
type SeatHandler struct {
    Coord *service.Coordinator
}

// NewSeatHandler constructs a SeatHandler.  coord must be non-nil.
func NewSeatHandler(coord *service.Coordinator) *SeatHandler {
    if coord == nil {
        panic("nil coordinator passed to NewSeatHandler")
    }
    return &SeatHandler{Coord: coord}
}

type flightRequest struct {
    FlightID string `param:"flightId" json:"-" validate:"required,max=16,alphanum"`
}

type seatRequest struct {
    FlightID  string `param:"flightId" json:"-" validate:"required,max=16,alphanum"`
    SeatID    string `param:"seatId" json:"-" validate:"required,max=8,alphanum"`
    SessionID string `json:"sessionId" query:"sessionId" validate:"required,max=80,printascii"`
    BookingID string `json:"bookingId"`
}

type confirmRequest struct {
    SessionID string `validate:"required"`
    BookingID string `json:"bookingId" validate:"required,max=32,alphanum"`
}

func sessionFromContext(c echo.Context) string {
    if v, ok := c.Get(SessionContextKey).(string); ok {
        return v
    }
    return ""
}

// bindSeat reads path, body and context into req.  On failure it returns
// the message for a VALIDATION_ERROR response.
func bindSeat(c echo.Context, req *seatRequest) (string, bool) {
    if err := c.Bind(req); err != nil {
        return "invalid request body", false
    }
    req.SessionID = strings.TrimSpace(req.SessionID)
    if req.SessionID == "" {
        req.SessionID = sessionFromContext(c)
    }
    if err := c.Validate(req); err != nil {
        return validationMessage(err), false
    }
    return "", true
}

// GetSeatMap handles GET /api/flights/:flightId/seats.  Seats whose lock
// has lapsed are reported as AVAILABLE.
func (h *SeatHandler) GetSeatMap(c echo.Context) error {
    var req flightRequest
    if err := c.Bind(&req); err != nil {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, "invalid flight id")
    }
    if err := c.Validate(&req); err != nil {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, validationMessage(err))
    }
    m, err := h.Coord.SeatMap(c.Request().Context(), req.FlightID)
    if err != nil {
        return respondServiceError(c, err)
    }
    return respondOK(c, m, "")
}

// GetAssignments handles GET /api/flights/:flightId/seats/assignments.
func (h *SeatHandler) GetAssignments(c echo.Context) error {
    var req flightRequest
    if err := c.Bind(&req); err != nil {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, "invalid flight id")
    }
    if err := c.Validate(&req); err != nil {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, validationMessage(err))
    }
    list, err := h.Coord.Assignments(c.Request().Context(), req.FlightID)
    if err != nil {
        return respondServiceError(c, err)
    }
    return respondOK(c, list, "")
}

// LockSeat handles POST /api/flights/:flightId/seats/:seatId/lock.
func (h *SeatHandler) LockSeat(c echo.Context) error {
    var req seatRequest
    if msg, ok := bindSeat(c, &req); !ok {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, msg)
    }
    seat, err := h.Coord.Lock(c.Request().Context(), req.FlightID, req.SeatID, req.SessionID)
    if err != nil {
        return respondServiceError(c, err)
    }
    return respondOK(c, seat, "seat locked")
}

// UnlockSeat handles DELETE /api/flights/:flightId/seats/:seatId/lock.  It
// succeeds whether or not the session held the lock, even for unknown seats.
func (h *SeatHandler) UnlockSeat(c echo.Context) error {
    var req seatRequest
    if msg, ok := bindSeat(c, &req); !ok {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, msg)
    }
    released, err := h.Coord.Unlock(c.Request().Context(), req.FlightID, req.SeatID, req.SessionID)
    if err != nil {
        return respondServiceError(c, err)
    }
    return respondOK(c, echo.Map{"released": released}, "")
}

// ConfirmSeat handles POST /api/flights/:flightId/seats/:seatId/confirm.
func (h *SeatHandler) ConfirmSeat(c echo.Context) error {
    var req seatRequest
    if msg, ok := bindSeat(c, &req); !ok {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, msg)
    }
    conf := confirmRequest{SessionID: req.SessionID, BookingID: service.NormalizeBookingID(req.BookingID)}
    if err := c.Validate(&conf); err != nil {
        return respondError(c, http.StatusBadRequest, model.CodeValidation, validationMessage(err))
    }
    seat, err := h.Coord.Confirm(c.Request().Context(), req.FlightID, req.SeatID, req.SessionID, conf.BookingID)
    if err != nil {
        return respondServiceError(c, err)
    }
    return respondOK(c, seat, "seat confirmed")
}
