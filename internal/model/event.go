package model

import "time"

// SeatEvent is published on a flight's topic after every committed
// transition.  SessionID names the session that caused the transition
// (the new lock owner, the releasing session or the confirming session);
// it is empty for expiry reclamation and seat-change releases.  Version
// is the seat's version after the transition, so consumers can drop
// duplicates and out-of-order deliveries for the same seat.
type SeatEvent struct {
    FlightID      string     `json:"flightId"`
    SeatID        string     `json:"seatId"`
    Status        SeatStatus `json:"status"`
    SessionID     string     `json:"sessionId,omitempty"`
    LockExpiresAt *time.Time `json:"lockExpiry,omitempty"`
    Version       uint64     `json:"version"`
}

// Error codes carried in API error envelopes.  The kiosk client maps
// them back to its own sentinel errors.
const (
    CodeSeatUnavailable    = "SEAT_UNAVAILABLE"
    CodeLockExpired        = "LOCK_EXPIRED"
    CodeLockNotHeld        = "LOCK_NOT_HELD"
    CodeSeatNotFound       = "SEAT_NOT_FOUND"
    CodeFlightNotFound     = "FLIGHT_NOT_FOUND"
    CodeValidation         = "VALIDATION_ERROR"
    CodeInvariantViolation = "INVARIANT_VIOLATION"
    CodeInternal           = "INTERNAL_ERROR"
    CodeRateLimited        = "RATE_LIMITED"
)
