// Package repository defines the seat store contract and its MySQL and
// in-memory implementations.  The sentinel values below allow higher
// layers such as the lock coordinator and handlers to distinguish
// between different failure scenarios.  For example, ErrVersionConflict
// signals that a compare-and-set lost a race and the caller should
// re-read the seat before deciding what to do.
package repository

import "errors"

// ErrSeatNotFound is returned when a seat lookup yields no rows.
// Handlers should translate this into an HTTP 404 response.
var ErrSeatNotFound = errors.New("seat not found")

// ErrFlightNotFound is returned when a flight has no configured seats.
var ErrFlightNotFound = errors.New("flight not found")

// ErrVersionConflict is returned by CompareAndSwap when at least one seat
// no longer carries the expected version.  No change has been applied.
var ErrVersionConflict = errors.New("seat version conflict")
