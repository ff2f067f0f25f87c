package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

type seatKey struct {
	flightID string
	seatID   string
}

func (k seatKey) less(o seatKey) bool {
	if k.flightID != o.flightID {
		return k.flightID < o.flightID
	}
	return k.seatID < o.seatID
}

// seatRow guards a single seat.  Compare-and-set locks only the rows it
// touches, in key order, so different seats never block each other.
type seatRow struct {
	mu   sync.Mutex
	seat model.Seat
}

// MemoryStore is an in-process SeatStore used for single-node deployments
// and tests.  The table mutex only protects the shape of the maps (seats
// are added at configuration time); seat state lives behind per-row locks.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[seatKey]*seatRow
	flights map[string][]seatKey
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[seatKey]*seatRow),
		flights: make(map[string][]seatKey),
	}
}

// CreateBulk adds seats.  Existing seats with the same key are left untouched.
func (m *MemoryStore) CreateBulk(_ context.Context, seats []model.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range seats {
		k := seatKey{s.FlightID, s.SeatID}
		if _, ok := m.rows[k]; ok {
			continue
		}
		if s.Status == "" {
			s.Status = model.SeatAvailable
		}
		s.CreatedAt, s.UpdatedAt = now, now
		m.rows[k] = &seatRow{seat: s}
		m.flights[s.FlightID] = append(m.flights[s.FlightID], k)
	}
	for flightID, keys := range m.flights {
		sort.Slice(keys, func(i, j int) bool {
			return SeatNumberLess(m.rows[keys[i]].seat.SeatNumber, m.rows[keys[j]].seat.SeatNumber)
		})
		m.flights[flightID] = keys
	}
	return nil
}

func (m *MemoryStore) row(k seatKey) (*seatRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[k]
	return r, ok
}

func (r *seatRow) load() model.Seat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seat
}

// ListByFlight returns copies of all seats of a flight.
func (m *MemoryStore) ListByFlight(_ context.Context, flightID string) ([]model.Seat, error) {
	m.mu.RLock()
	keys := m.flights[flightID]
	rows := make([]*seatRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, m.rows[k])
	}
	m.mu.RUnlock()
	if len(rows) == 0 {
		return nil, ErrFlightNotFound
	}
	seats := make([]model.Seat, 0, len(rows))
	for _, r := range rows {
		seats = append(seats, r.load())
	}
	return seats, nil
}

// Get returns a copy of one seat.
func (m *MemoryStore) Get(_ context.Context, flightID, seatID string) (model.Seat, error) {
	r, ok := m.row(seatKey{flightID, seatID})
	if !ok {
		return model.Seat{}, ErrSeatNotFound
	}
	return r.load(), nil
}

// ReservedByBooking scans the flight for seats assigned to bookingID.
func (m *MemoryStore) ReservedByBooking(ctx context.Context, flightID, bookingID string) ([]model.Seat, error) {
	seats, err := m.ListByFlight(ctx, flightID)
	if err == ErrFlightNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []model.Seat
	for _, s := range seats {
		if s.BookingID == bookingID && (s.Status == model.SeatReserved || s.Status == model.SeatOccupied) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ExpiredLocks scans every flight for lapsed locks.
func (m *MemoryStore) ExpiredLocks(_ context.Context, now time.Time) ([]model.Seat, error) {
	m.mu.RLock()
	flightIDs := make([]string, 0, len(m.flights))
	for id := range m.flights {
		flightIDs = append(flightIDs, id)
	}
	m.mu.RUnlock()
	sort.Strings(flightIDs)

	var out []model.Seat
	for _, id := range flightIDs {
		m.mu.RLock()
		keys := append([]seatKey(nil), m.flights[id]...)
		m.mu.RUnlock()
		for _, k := range keys {
			r, _ := m.row(k)
			if s := r.load(); s.LockExpired(now) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// CompareAndSwap locks the affected rows in key order, verifies every
// expected version and only then applies the changes.
func (m *MemoryStore) CompareAndSwap(_ context.Context, changes ...SeatChange) ([]model.Seat, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	type target struct {
		key seatKey
		row *seatRow
	}
	targets := make([]target, 0, len(changes))
	seen := make(map[seatKey]struct{}, len(changes))
	for _, ch := range changes {
		k := seatKey{ch.Next.FlightID, ch.Next.SeatID}
		r, ok := m.row(k)
		if !ok {
			return nil, ErrSeatNotFound
		}
		if _, dup := seen[k]; dup {
			return nil, ErrVersionConflict
		}
		seen[k] = struct{}{}
		targets = append(targets, target{k, r})
	}
	locked := append([]target(nil), targets...)
	sort.Slice(locked, func(i, j int) bool { return locked[i].key.less(locked[j].key) })
	for _, t := range locked {
		t.row.mu.Lock()
	}
	defer func() {
		for _, t := range locked {
			t.row.mu.Unlock()
		}
	}()

	for i, ch := range changes {
		if targets[i].row.seat.Version != ch.Expected {
			return nil, ErrVersionConflict
		}
	}
	now := time.Now().UTC()
	out := make([]model.Seat, 0, len(changes))
	for i, ch := range changes {
		cur := &targets[i].row.seat
		cur.Status = ch.Next.Status
		cur.OwnerToken = ch.Next.OwnerToken
		cur.LockExpiresAt = nil
		if ch.Next.LockExpiresAt != nil {
			t := ch.Next.LockExpiresAt.UTC()
			cur.LockExpiresAt = &t
		}
		cur.BookingID = ch.Next.BookingID
		cur.LastOwner = ch.Next.LastOwner
		cur.Version = ch.Expected + 1
		cur.UpdatedAt = now
		out = append(out, *cur)
	}
	return out, nil
}
