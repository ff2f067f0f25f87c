package model

import "time"

// SeatStatus is the availability state of a seat on a flight.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "AVAILABLE"
    SeatLocked    SeatStatus = "LOCKED"
    SeatReserved  SeatStatus = "RESERVED"
    SeatOccupied  SeatStatus = "OCCUPIED"
)

// Valid reports whether s is one of the four known statuses.
func (s SeatStatus) Valid() bool {
    switch s {
    case SeatAvailable, SeatLocked, SeatReserved, SeatOccupied:
        return true
    }
    return false
}

// SeatClass is the cabin class of a seat, fixed at flight configuration.
type SeatClass string

const (
    ClassFirst    SeatClass = "FIRST"
    ClassBusiness SeatClass = "BUSINESS"
    ClassEconomy  SeatClass = "ECONOMY"
)

// Seat is one row of the authoritative seat table.  A seat is identified
// by its flight and seat ID; the seat number and class never change after
// the flight has been configured.  Status, owner, expiry and booking are
// mutated only through versioned compare-and-set.
//
// Fields:
//  SeatID        – identity of the seat within the flight (e.g. 12A).
//  FlightID      – owning flight.
//  SeatNumber    – printed seat number.
//  SeatClass     – FIRST, BUSINESS or ECONOMY.
//  Status        – AVAILABLE, LOCKED, RESERVED or OCCUPIED.
//  OwnerToken    – session holding the lock; empty unless LOCKED.
//  LockExpiresAt – end of the lock; only meaningful when LOCKED.
//  BookingID     – set once the seat is RESERVED/OCCUPIED.
//  LastOwner     – session whose lapsed lock was reclaimed; cleared by the
//                  next transition.  Never sent to clients.
//  Version       – incremented on every successful transition.
type Seat struct {
    SeatID        string     `json:"seatId"`               // seats.seat_id
    FlightID      string     `json:"flightId"`             // seats.flight_id
    SeatNumber    string     `json:"seatNumber"`           // seats.seat_number
    SeatClass     SeatClass  `json:"seatClass"`            // seats.seat_class
    Status        SeatStatus `json:"seatStatus"`           // seats.seat_status
    OwnerToken    string     `json:"lockedBy,omitempty"`   // seats.locked_by (nullable)
    LockExpiresAt *time.Time `json:"lockExpiry,omitempty"` // seats.lock_expiry (nullable)
    BookingID     string     `json:"bookingId,omitempty"`  // seats.booking_id (nullable)
    LastOwner     string     `json:"-"`                    // seats.last_locked_by (nullable)
    Version       uint64     `json:"version"`              // seats.version
    CreatedAt     time.Time  `json:"createdAt"`            // seats.created_at
    UpdatedAt     time.Time  `json:"updatedAt"`            // seats.updated_at
}

// LockExpired reports whether the seat is LOCKED with an expiry at or
// before now.  Such a seat is logically AVAILABLE.
func (s Seat) LockExpired(now time.Time) bool {
    return s.Status == SeatLocked && s.LockExpiresAt != nil && !now.Before(*s.LockExpiresAt)
}

// EffectiveStatus is the status readers must act on: an expired lock
// reads as AVAILABLE even before it has been reclaimed in the store.
func (s Seat) EffectiveStatus(now time.Time) SeatStatus {
    if s.LockExpired(now) {
        return SeatAvailable
    }
    return s.Status
}

// HeldBy reports whether token holds a live lock on the seat at now.
func (s Seat) HeldBy(token string, now time.Time) bool {
    return token != "" && s.Status == SeatLocked && s.OwnerToken == token && !s.LockExpired(now)
}

// Effective returns a copy of the seat as readers should see it at now,
// clearing the owner and expiry of a lapsed lock.  Version is untouched.
func (s Seat) Effective(now time.Time) Seat {
    if s.LockExpired(now) {
        s.Status = SeatAvailable
        s.OwnerToken = ""
        s.LockExpiresAt = nil
    }
    return s
}

// SeatMap is the full seat list of a flight plus the number of seats
// currently available.
type SeatMap struct {
    FlightID       string `json:"flightId"`
    Seats          []Seat `json:"seats"`
    AvailableCount int    `json:"availableCount"`
}

// SeatAssignment describes a seat that has been given to a booking.
type SeatAssignment struct {
    FlightID   string     `json:"flightId"`
    SeatID     string     `json:"seatId"`
    SeatNumber string     `json:"seatNumber"`
    SeatClass  SeatClass  `json:"seatClass"`
    Status     SeatStatus `json:"seatStatus"`
    BookingID  string     `json:"bookingId"`
}
