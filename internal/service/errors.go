// Package service implements the seat lock coordinator: the state machine
// that moves seats between AVAILABLE, LOCKED and RESERVED, enforces one
// owner per lock, reclaims expired locks and announces every committed
// transition to the broadcaster and the audit trail.
package service

import "errors"

// ErrSeatUnavailable is returned by Lock when the seat is held by another
// live lock or already reserved.  The caller should pick another seat.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrLockExpired is returned by Confirm when the caller's lock has lapsed.
var ErrLockExpired = errors.New("seat lock expired")

// ErrLockNotHeld is returned by Confirm when the caller does not hold the lock.
var ErrLockNotHeld = errors.New("seat lock not held")

// ErrInvariantViolation is returned when the store reports a booking with
// more than one reserved seat on a flight.  It is never corrected silently.
var ErrInvariantViolation = errors.New("seat invariant violation")

// ErrInvalidArgument is returned for empty session or booking identifiers.
var ErrInvalidArgument = errors.New("invalid argument")
