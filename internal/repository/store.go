package repository

import (
	"context"
	"time"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

// SeatChange is one element of an atomic compare-and-set.  Next carries
// the desired status, owner, expiry and booking of the seat identified by
// Next.FlightID/Next.SeatID; it is applied only when the stored version
// still equals Expected, and the stored version becomes Expected+1.
type SeatChange struct {
	Expected uint64
	Next     model.Seat
}

// SeatStore is the authoritative seat table.  All mutation goes through
// CompareAndSwap; concurrent changes to the same seat are serialised by
// version, different seats never wait on each other.
type SeatStore interface {
	// ListByFlight returns every seat of a flight ordered by seat number.
	// ErrFlightNotFound is returned when the flight has no seats.
	ListByFlight(ctx context.Context, flightID string) ([]model.Seat, error)
	// Get returns a single seat or ErrSeatNotFound.
	Get(ctx context.Context, flightID, seatID string) (model.Seat, error)
	// ReservedByBooking returns the RESERVED/OCCUPIED seats of a booking on a flight.
	ReservedByBooking(ctx context.Context, flightID, bookingID string) ([]model.Seat, error)
	// ExpiredLocks returns LOCKED seats whose expiry is at or before now, across all flights.
	ExpiredLocks(ctx context.Context, now time.Time) ([]model.Seat, error)
	// CompareAndSwap applies all changes or none.  It returns the updated
	// seats in the order of changes, or ErrVersionConflict/ErrSeatNotFound.
	CompareAndSwap(ctx context.Context, changes ...SeatChange) ([]model.Seat, error)
	// CreateBulk inserts seats at flight configuration time.
	CreateBulk(ctx context.Context, seats []model.Seat) error
}
