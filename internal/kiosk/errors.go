package kiosk

import (
	"errors"
	"fmt"
)

var (
	// ErrSeatUnavailable means another session holds or has booked the seat.
	ErrSeatUnavailable = errors.New("seat no longer available; choose another")
	// ErrLockExpired means the selection timed out before it was confirmed.
	ErrLockExpired = errors.New("seat hold expired; please select your seat again")
	// ErrLockNotHeld means this session no longer holds the selected seat.
	ErrLockNotHeld = errors.New("seat is no longer held by this kiosk; please select again")
	// ErrInvariantViolation is reported by the server for corrupt seat data.
	ErrInvariantViolation = errors.New("seat data inconsistent; ask an agent for help")
	// ErrSeatNotFound is returned for seats or flights the server does not know.
	ErrSeatNotFound = errors.New("seat not found")
	// ErrTransportUnavailable wraps network failures talking to the server.
	ErrTransportUnavailable = errors.New("seat service unreachable")
	// ErrNoSelection is returned by ConfirmSelection without a selected seat.
	ErrNoSelection = errors.New("no seat selected")
	// ErrNotTracking is returned when no flight has been tracked yet.
	ErrNotTracking = errors.New("no flight selected")
	// ErrClosed is returned once the inventory loop has stopped.
	ErrClosed = errors.New("seat inventory closed")
)

// APIError is an error envelope the client has no sentinel for.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("seat service: %d %s: %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether the user can recover by choosing a seat again.
func Retryable(err error) bool {
	return errors.Is(err, ErrSeatUnavailable) || errors.Is(err, ErrLockExpired) ||
		errors.Is(err, ErrLockNotHeld) || errors.Is(err, ErrTransportUnavailable)
}
