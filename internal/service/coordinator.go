package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/labstack/gommon/log"

    "github.com/iliyamo/kiosk-seat-engine/internal/model"
    "github.com/iliyamo/kiosk-seat-engine/internal/queue"
    "github.com/iliyamo/kiosk-seat-engine/internal/repository"
)

// Broadcaster fans a committed seat event out to every session subscribed
// to the seat's flight.
type Broadcaster interface {
    Publish(ctx context.Context, ev model.SeatEvent) error
}

// AuditSink receives one record per committed transition.  Record must
// not block the request path.
type AuditSink interface {
    Record(ev queue.SeatAuditEvent)
}

// DefaultLockTTL is used when the coordinator is built with a zero TTL.
const DefaultLockTTL = 5 * time.Minute

const defaultMaxRetries = 3

// Coordinator is the seat lock state machine.  It holds no per-session
// state: ownership lives on the seat row, and every transition is a
// versioned compare-and-set against the store, so concurrent requests for
// one seat serialise at that seat only.
type Coordinator struct {
    store      repository.SeatStore
    bus        Broadcaster
    audit      AuditSink
    ttl        time.Duration
    now        func() time.Time
    maxRetries int
    log        *log.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now; tests use it to move past lock expiry.
func WithClock(now func() time.Time) Option {
    return func(c *Coordinator) { c.now = now }
}

// WithAudit attaches an audit sink.
func WithAudit(a AuditSink) Option {
    return func(c *Coordinator) { c.audit = a }
}

// WithMaxRetries bounds how often a transition is re-read and retried
// after losing a compare-and-set race.
func WithMaxRetries(n int) Option {
    return func(c *Coordinator) {
        if n > 0 {
            c.maxRetries = n
        }
    }
}

// NewCoordinator wires a coordinator to its store and broadcaster.
func NewCoordinator(store repository.SeatStore, bus Broadcaster, ttl time.Duration, logger *log.Logger, opts ...Option) *Coordinator {
    if ttl <= 0 {
        ttl = DefaultLockTTL
    }
    if logger == nil {
        logger = log.New("coordinator")
    }
    c := &Coordinator{
        store:      store,
        bus:        bus,
        ttl:        ttl,
        now:        time.Now,
        maxRetries: defaultMaxRetries,
        log:        logger,
    }
    for _, o := range opts {
        o(c)
    }
    return c
}

// TTL returns the lock duration.
func (c *Coordinator) TTL() time.Duration { return c.ttl }

// Now returns the coordinator's current time in UTC.
func (c *Coordinator) Now() time.Time { return c.now().UTC() }

// NormalizeBookingID trims and upper-cases a booking reference.
func NormalizeBookingID(id string) string {
    return strings.ToUpper(strings.TrimSpace(id))
}

// Lock claims a seat for session until now+TTL.  An expired lock counts as
// AVAILABLE.  Locking a seat the session already holds extends the lock.
// Every other contender gets ErrSeatUnavailable.
func (c *Coordinator) Lock(ctx context.Context, flightID, seatID, session string) (model.Seat, error) {
    if session == "" {
        return model.Seat{}, fmt.Errorf("%w: session id is required", ErrInvalidArgument)
    }
    for attempt := 0; attempt < c.maxRetries; attempt++ {
        cur, err := c.store.Get(ctx, flightID, seatID)
        if err != nil {
            return model.Seat{}, err
        }
        now := c.Now()
        if !cur.HeldBy(session, now) && cur.EffectiveStatus(now) != model.SeatAvailable {
            return model.Seat{}, ErrSeatUnavailable
        }
        next := cur
        exp := now.Add(c.ttl)
        next.Status = model.SeatLocked
        next.OwnerToken = session
        next.LockExpiresAt = &exp
        next.BookingID = ""
        next.LastOwner = ""

        out, err := c.store.CompareAndSwap(ctx, repository.SeatChange{Expected: cur.Version, Next: next})
        if errors.Is(err, repository.ErrVersionConflict) {
            continue
        }
        if err != nil {
            return model.Seat{}, err
        }
        c.announce(ctx, queue.ActionLock, session, cur, out[0])
        return out[0], nil
    }
    // Every retry lost to a concurrent writer; the winner owns the seat.
    return model.Seat{}, ErrSeatUnavailable
}

// Unlock releases a lock held by session.  It never fails for seats the
// session does not hold, unknown seats included; released reports whether
// anything changed.
func (c *Coordinator) Unlock(ctx context.Context, flightID, seatID, session string) (released bool, err error) {
    for attempt := 0; attempt < c.maxRetries; attempt++ {
        cur, err := c.store.Get(ctx, flightID, seatID)
        if errors.Is(err, repository.ErrSeatNotFound) {
            return false, nil
        }
        if err != nil {
            return false, err
        }
        if session == "" || cur.Status != model.SeatLocked || cur.OwnerToken != session {
            return false, nil
        }
        next := cur
        next.Status = model.SeatAvailable
        next.OwnerToken = ""
        next.LockExpiresAt = nil
        next.LastOwner = ""

        out, err := c.store.CompareAndSwap(ctx, repository.SeatChange{Expected: cur.Version, Next: next})
        if errors.Is(err, repository.ErrVersionConflict) {
            continue
        }
        if err != nil {
            return false, err
        }
        c.announce(ctx, queue.ActionUnlock, session, cur, out[0])
        return true, nil
    }
    return false, nil
}

// Confirm turns session's lock into a reservation for bookingID.  If the
// booking already holds another seat on the flight, that seat is released
// in the same compare-and-set.  Confirming a seat already reserved for the
// same booking is a no-op success.
func (c *Coordinator) Confirm(ctx context.Context, flightID, seatID, session, bookingID string) (model.Seat, error) {
    booking := NormalizeBookingID(bookingID)
    if session == "" || booking == "" {
        return model.Seat{}, fmt.Errorf("%w: session id and booking id are required", ErrInvalidArgument)
    }
    for attempt := 0; attempt < c.maxRetries; attempt++ {
        cur, err := c.store.Get(ctx, flightID, seatID)
        if err != nil {
            return model.Seat{}, err
        }
        if isAssigned(cur.Status) && cur.BookingID == booking {
            return cur, nil
        }
        if cur.Status == model.SeatAvailable && cur.LastOwner == session {
            // The sweeper got to this session's lapsed lock first.
            return model.Seat{}, ErrLockExpired
        }
        if cur.Status != model.SeatLocked || cur.OwnerToken != session {
            return model.Seat{}, ErrLockNotHeld
        }
        if cur.LockExpired(c.Now()) {
            if _, err := c.Reclaim(ctx, cur); err != nil {
                c.log.Warnf("coordinator: reclaim on confirm failed flight=%s seat=%s: %v", flightID, seatID, err)
            }
            return model.Seat{}, ErrLockExpired
        }

        held, err := c.store.ReservedByBooking(ctx, flightID, booking)
        if err != nil {
            return model.Seat{}, err
        }
        var previous []model.Seat
        for _, s := range held {
            if s.SeatID != seatID {
                previous = append(previous, s)
            }
        }
        if len(previous) > 1 {
            c.log.Errorf("coordinator: booking %s holds %d seats on flight %s", booking, len(previous), flightID)
            return model.Seat{}, ErrInvariantViolation
        }

        next := cur
        next.Status = model.SeatReserved
        next.OwnerToken = ""
        next.LockExpiresAt = nil
        next.BookingID = booking
        next.LastOwner = ""
        changes := []repository.SeatChange{{Expected: cur.Version, Next: next}}
        if len(previous) == 1 {
            old := previous[0]
            freed := old
            freed.Status = model.SeatAvailable
            freed.OwnerToken = ""
            freed.LockExpiresAt = nil
            freed.BookingID = ""
            freed.LastOwner = ""
            changes = append(changes, repository.SeatChange{Expected: old.Version, Next: freed})
        }

        out, err := c.store.CompareAndSwap(ctx, changes...)
        if errors.Is(err, repository.ErrVersionConflict) {
            continue
        }
        if err != nil {
            return model.Seat{}, err
        }
        c.announce(ctx, queue.ActionConfirm, session, cur, out[0])
        if len(out) == 2 {
            c.log.Infof("coordinator: booking %s moved from seat %s to %s on flight %s", booking, previous[0].SeatID, seatID, flightID)
            c.announce(ctx, queue.ActionRelease, "", previous[0], out[1])
        }
        return out[0], nil
    }
    return model.Seat{}, ErrLockNotHeld
}

// Reclaim frees a seat whose lock has lapsed.  The former holder is kept
// as LastOwner so a late confirm can still be told its lock expired.  It
// reports false when the seat is not expired any more or another writer
// moved it first.
func (c *Coordinator) Reclaim(ctx context.Context, seat model.Seat) (bool, error) {
    if !seat.LockExpired(c.Now()) {
        return false, nil
    }
    next := seat
    next.Status = model.SeatAvailable
    next.OwnerToken = ""
    next.LockExpiresAt = nil
    next.LastOwner = seat.OwnerToken

    out, err := c.store.CompareAndSwap(ctx, repository.SeatChange{Expected: seat.Version, Next: next})
    if errors.Is(err, repository.ErrVersionConflict) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    c.announce(ctx, queue.ActionExpire, "", seat, out[0])
    return true, nil
}

// ReclaimExpired sweeps every lapsed lock in the store.
func (c *Coordinator) ReclaimExpired(ctx context.Context) (int, error) {
    seats, err := c.store.ExpiredLocks(ctx, c.Now())
    if err != nil {
        return 0, err
    }
    n := 0
    for _, s := range seats {
        ok, err := c.Reclaim(ctx, s)
        if err != nil {
            return n, err
        }
        if ok {
            n++
        }
    }
    return n, nil
}

// SeatMap returns a flight's seats as readers should see them: expired
// locks read as AVAILABLE.
func (c *Coordinator) SeatMap(ctx context.Context, flightID string) (model.SeatMap, error) {
    seats, err := c.store.ListByFlight(ctx, flightID)
    if err != nil {
        return model.SeatMap{}, err
    }
    now := c.Now()
    m := model.SeatMap{FlightID: flightID, Seats: make([]model.Seat, 0, len(seats))}
    for _, s := range seats {
        s = s.Effective(now)
        if s.Status == model.SeatAvailable {
            m.AvailableCount++
        }
        m.Seats = append(m.Seats, s)
    }
    return m, nil
}

// Assignments lists reserved and occupied seats with their bookings.  A
// booking found on two seats is reported as ErrInvariantViolation and left
// as it is.
func (c *Coordinator) Assignments(ctx context.Context, flightID string) ([]model.SeatAssignment, error) {
    seats, err := c.store.ListByFlight(ctx, flightID)
    if err != nil {
        return nil, err
    }
    out := []model.SeatAssignment{}
    owner := make(map[string]string)
    for _, s := range seats {
        if !isAssigned(s.Status) || s.BookingID == "" {
            continue
        }
        if prev, dup := owner[s.BookingID]; dup {
            c.log.Errorf("coordinator: booking %s reserved on seats %s and %s of flight %s", s.BookingID, prev, s.SeatID, flightID)
            return nil, ErrInvariantViolation
        }
        owner[s.BookingID] = s.SeatID
        out = append(out, model.SeatAssignment{
            FlightID:   s.FlightID,
            SeatID:     s.SeatID,
            SeatNumber: s.SeatNumber,
            SeatClass:  s.SeatClass,
            Status:     s.Status,
            BookingID:  s.BookingID,
        })
    }
    return out, nil
}

// announce runs after the store has committed.  Broadcast and audit are
// best-effort: a failure is logged, the transition stands.
func (c *Coordinator) announce(ctx context.Context, action, session string, before, after model.Seat) {
    ctx = context.WithoutCancel(ctx)
    ev := model.SeatEvent{
        FlightID:      after.FlightID,
        SeatID:        after.SeatID,
        Status:        after.Status,
        SessionID:     session,
        LockExpiresAt: after.LockExpiresAt,
        Version:       after.Version,
    }
    if c.bus != nil {
        if err := c.bus.Publish(ctx, ev); err != nil {
            c.log.Warnf("coordinator: broadcast failed flight=%s seat=%s version=%d: %v", ev.FlightID, ev.SeatID, ev.Version, err)
        }
    }
    if c.audit != nil {
        c.audit.Record(queue.SeatAuditEvent{
            Action:    action,
            FlightID:  after.FlightID,
            SeatID:    after.SeatID,
            OldStatus: string(before.EffectiveStatus(c.Now())),
            NewStatus: string(after.Status),
            SessionID: session,
            BookingID: after.BookingID,
            Version:   after.Version,
            At:        c.Now(),
        })
    }
    c.log.Debugf("coordinator: %s flight=%s seat=%s status=%s version=%d", action, ev.FlightID, ev.SeatID, ev.Status, ev.Version)
}

func isAssigned(s model.SeatStatus) bool {
    return s == model.SeatReserved || s == model.SeatOccupied
}
