package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

var seatCols = []string{"flight_id", "seat_id", "seat_number", "seat_class", "seat_status",
	"locked_by", "lock_expiry", "booking_id", "last_locked_by", "version", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*SeatRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSeatRepo(db), mock
}

func TestSeatRepoGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	exp := now.Add(5 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("FROM seats WHERE flight_id = ? AND seat_id = ?")).
		WithArgs("FL001", "12A").
		WillReturnRows(sqlmock.NewRows(seatCols).
			AddRow("FL001", "12A", "12A", "ECONOMY", "LOCKED", "session-a", exp, nil, nil, 3, now, now))

	s, err := repo.Get(context.Background(), "FL001", "12A")
	require.NoError(t, err)
	assert.Equal(t, model.SeatLocked, s.Status)
	assert.Equal(t, model.ClassEconomy, s.SeatClass)
	assert.Equal(t, "session-a", s.OwnerToken)
	require.NotNil(t, s.LockExpiresAt)
	assert.True(t, exp.Equal(*s.LockExpiresAt))
	assert.Empty(t, s.BookingID)
	assert.Equal(t, uint64(3), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM seats WHERE flight_id = ? AND seat_id = ?")).
		WithArgs("FL001", "99Z").
		WillReturnRows(sqlmock.NewRows(seatCols))

	_, err := repo.Get(context.Background(), "FL001", "99Z")
	assert.ErrorIs(t, err, ErrSeatNotFound)
}

func TestSeatRepoListByFlightSortsByRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM seats WHERE flight_id = ? ORDER BY seat_number")).
		WithArgs("FL001").
		WillReturnRows(sqlmock.NewRows(seatCols).
			AddRow("FL001", "10A", "10A", "ECONOMY", "AVAILABLE", nil, nil, nil, "session-z", 0, now, now).
			AddRow("FL001", "9C", "9C", "ECONOMY", "RESERVED", nil, nil, "BK1", nil, 2, now, now))

	seats, err := repo.ListByFlight(context.Background(), "FL001")
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, "9C", seats[0].SeatID)
	assert.Equal(t, "BK1", seats[0].BookingID)
	assert.Equal(t, "10A", seats[1].SeatID)
	assert.Equal(t, "session-z", seats[1].LastOwner)

	mock.ExpectQuery("FROM seats WHERE flight_id").
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows(seatCols))
	_, err = repo.ListByFlight(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrFlightNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoCompareAndSwapCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	exp := time.Date(2026, 5, 1, 8, 5, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seats")).
		WithArgs("LOCKED", "session-a", exp, nil, nil, sqlmock.AnyArg(), "FL001", "12A", uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := repo.CompareAndSwap(context.Background(), SeatChange{
		Expected: 4,
		Next:     model.Seat{FlightID: "FL001", SeatID: "12A", Status: model.SeatLocked, OwnerToken: "session-a", LockExpiresAt: &exp},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(5), out[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoCompareAndSwapConflictRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seats")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seats")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM seats")).
		WithArgs("FL001", "14C").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.CompareAndSwap(context.Background(),
		SeatChange{Expected: 1, Next: model.Seat{FlightID: "FL001", SeatID: "14D", Status: model.SeatReserved, BookingID: "BK1"}},
		SeatChange{Expected: 7, Next: model.Seat{FlightID: "FL001", SeatID: "14C", Status: model.SeatAvailable}},
	)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoCompareAndSwapMissingSeat(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seats")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM seats")).
		WithArgs("FL001", "99Z").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	_, err := repo.CompareAndSwap(context.Background(),
		SeatChange{Expected: 0, Next: model.Seat{FlightID: "FL001", SeatID: "99Z", Status: model.SeatLocked}})
	assert.ErrorIs(t, err, ErrSeatNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoCreateBulk(t *testing.T) {
	repo, mock := newMockRepo(t)
	seats := GenerateSeats("FL001", Layout{{Class: model.ClassFirst, FirstRow: 1, LastRow: 1, Letters: "AC"}})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seats (flight_id, seat_id, seat_number, seat_class, seat_status) VALUES (?, ?, ?, ?, ?),(?, ?, ?, ?, ?)")).
		WithArgs("FL001", "1A", "1A", "FIRST", "AVAILABLE", "FL001", "1C", "1C", "FIRST", "AVAILABLE").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.CreateBulk(context.Background(), seats))
	assert.NoError(t, mock.ExpectationsWereMet())
}
