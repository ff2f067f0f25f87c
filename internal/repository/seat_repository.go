package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

// SeatRepo is the MySQL implementation of SeatStore.  Every transition is
// an UPDATE guarded by the seat's current version, so two requests racing
// for the same seat cannot both succeed.  All timestamps are stored in UTC.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// DB exposes the underlying handle for callers that need their own transactions.
func (r *SeatRepo) DB() *sql.DB { return r.db }

const seatColumns = `flight_id, seat_id, seat_number, seat_class, seat_status,
	locked_by, lock_expiry, booking_id, last_locked_by, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeat(rs rowScanner) (model.Seat, error) {
	var (
		s        model.Seat
		class    string
		status   string
		lockedBy sql.NullString
		expiry   sql.NullTime
		booking  sql.NullString
		last     sql.NullString
	)
	err := rs.Scan(&s.FlightID, &s.SeatID, &s.SeatNumber, &class, &status,
		&lockedBy, &expiry, &booking, &last, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Seat{}, err
	}
	s.SeatClass = model.SeatClass(class)
	s.Status = model.SeatStatus(status)
	if lockedBy.Valid {
		s.OwnerToken = lockedBy.String
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		s.LockExpiresAt = &t
	}
	if booking.Valid {
		s.BookingID = booking.String
	}
	if last.Valid {
		s.LastOwner = last.String
	}
	return s, nil
}

func (r *SeatRepo) querySeats(ctx context.Context, q string, args ...any) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

// ListByFlight retrieves all seats of a flight ordered by seat number.
func (r *SeatRepo) ListByFlight(ctx context.Context, flightID string) ([]model.Seat, error) {
	seats, err := r.querySeats(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE flight_id = ? ORDER BY seat_number`, flightID)
	if err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		return nil, ErrFlightNotFound
	}
	SortSeats(seats)
	return seats, nil
}

// Get fetches a single seat.  It returns ErrSeatNotFound when no row matches.
func (r *SeatRepo) Get(ctx context.Context, flightID, seatID string) (model.Seat, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE flight_id = ? AND seat_id = ?`, flightID, seatID)
	s, err := scanSeat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Seat{}, ErrSeatNotFound
	}
	return s, err
}

// ReservedByBooking returns the seats a booking currently has on a flight.
// Booking IDs are stored normalised, so the comparison is exact.
func (r *SeatRepo) ReservedByBooking(ctx context.Context, flightID, bookingID string) ([]model.Seat, error) {
	return r.querySeats(ctx,
		`SELECT `+seatColumns+` FROM seats
		 WHERE flight_id = ? AND booking_id = ? AND seat_status IN ('RESERVED','OCCUPIED')
		 ORDER BY seat_number`, flightID, bookingID)
}

// ExpiredLocks lists LOCKED seats whose lock_expiry is not after now.
func (r *SeatRepo) ExpiredLocks(ctx context.Context, now time.Time) ([]model.Seat, error) {
	return r.querySeats(ctx,
		`SELECT `+seatColumns+` FROM seats
		 WHERE seat_status = 'LOCKED' AND lock_expiry <= ?
		 ORDER BY flight_id, seat_number`, now.UTC())
}

// CompareAndSwap applies the changes inside one transaction.  Each UPDATE
// matches on the expected version; if any of them touches zero rows the
// transaction is rolled back and ErrVersionConflict (or ErrSeatNotFound
// when the seat does not exist) is returned.
func (r *SeatRepo) CompareAndSwap(ctx context.Context, changes ...SeatChange) ([]model.Seat, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const upd = `UPDATE seats
	             SET seat_status = ?, locked_by = ?, lock_expiry = ?, booking_id = ?,
	                 last_locked_by = ?, version = version + 1, updated_at = ?
	             WHERE flight_id = ? AND seat_id = ? AND version = ?`
	now := time.Now().UTC()
	out := make([]model.Seat, 0, len(changes))
	for _, ch := range changes {
		n := ch.Next
		res, err := tx.ExecContext(ctx, upd,
			string(n.Status), nullString(n.OwnerToken), nullTime(n.LockExpiresAt), nullString(n.BookingID),
			nullString(n.LastOwner), now, n.FlightID, n.SeatID, ch.Expected)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected != 1 {
			var exists int
			err := tx.QueryRowContext(ctx,
				`SELECT 1 FROM seats WHERE flight_id = ? AND seat_id = ?`, n.FlightID, n.SeatID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrSeatNotFound
			}
			return nil, ErrVersionConflict
		}
		n.Version = ch.Expected + 1
		n.UpdatedAt = now
		out = append(out, n)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return out, nil
}

// CreateBulk inserts multiple seats in a single statement.  Version starts
// at zero and status defaults to AVAILABLE when unset.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO seats (flight_id, seat_id, seat_number, seat_class, seat_status) VALUES `)
	args := make([]any, 0, len(seats)*5)
	for i, s := range seats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		status := s.Status
		if status == "" {
			status = model.SeatAvailable
		}
		args = append(args, s.FlightID, s.SeatID, s.SeatNumber, string(s.SeatClass), string(status))
	}
	_, err := r.db.ExecContext(ctx, b.String(), args...)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
