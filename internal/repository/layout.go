package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

// Cabin is a block of consecutive rows sharing a class and seat letters.
type Cabin struct {
	Class    model.SeatClass
	FirstRow int
	LastRow  int
	Letters  string
}

// Layout describes the seating of an aircraft type.
type Layout []Cabin

// DefaultLayout is a narrow-body configuration used to seed flights.
var DefaultLayout = Layout{
	{Class: model.ClassFirst, FirstRow: 1, LastRow: 2, Letters: "ACDF"},
	{Class: model.ClassBusiness, FirstRow: 3, LastRow: 6, Letters: "ACDF"},
	{Class: model.ClassEconomy, FirstRow: 10, LastRow: 30, Letters: "ABCDEF"},
}

// GenerateSeats expands a layout into AVAILABLE seats for a flight.  The
// seat ID equals the seat number (e.g. 12A), unique within the flight.
func GenerateSeats(flightID string, layout Layout) []model.Seat {
	var seats []model.Seat
	for _, cabin := range layout {
		for row := cabin.FirstRow; row <= cabin.LastRow; row++ {
			for _, letter := range cabin.Letters {
				number := strconv.Itoa(row) + string(letter)
				seats = append(seats, model.Seat{
					SeatID:     number,
					FlightID:   flightID,
					SeatNumber: number,
					SeatClass:  cabin.Class,
					Status:     model.SeatAvailable,
				})
			}
		}
	}
	return seats
}

// splitSeatNumber separates "12A" into 12 and "A".  Numbers without a
// leading row sort after those with one.
func splitSeatNumber(n string) (int, string) {
	i := 0
	for i < len(n) && n[i] >= '0' && n[i] <= '9' {
		i++
	}
	row, err := strconv.Atoi(n[:i])
	if err != nil {
		return int(^uint(0) >> 1), n
	}
	return row, strings.ToUpper(n[i:])
}

// SeatNumberLess orders seat numbers by row, then by letter.
func SeatNumberLess(a, b string) bool {
	ra, la := splitSeatNumber(a)
	rb, lb := splitSeatNumber(b)
	if ra != rb {
		return ra < rb
	}
	return la < lb
}

// SortSeats sorts seats in cabin order.
func SortSeats(seats []model.Seat) {
	sort.SliceStable(seats, func(i, j int) bool {
		return SeatNumberLess(seats[i].SeatNumber, seats[j].SeatNumber)
	})
}

// EnsureFlight seeds a flight with layout when it has no seats yet.  It
// reports whether seats were created; an already configured flight is
// left untouched.
func EnsureFlight(ctx context.Context, store SeatStore, flightID string, layout Layout) (bool, error) {
	_, err := store.ListByFlight(ctx, flightID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrFlightNotFound) {
		return false, err
	}
	if err := store.CreateBulk(ctx, GenerateSeats(flightID, layout)); err != nil {
		return false, err
	}
	return true, nil
}
