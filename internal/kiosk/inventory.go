package kiosk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

const unlockTimeout = 10 * time.Second

// NoticeKind classifies what the inventory tells the presentation layer.
type NoticeKind int

const (
	// NoticeSeatLost: the selected seat was taken or expired.
	NoticeSeatLost NoticeKind = iota
	NoticeStale
	NoticeFresh
	NoticeConfirmed
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeSeatLost:
		return "seat-lost"
	case NoticeStale:
		return "stale"
	case NoticeFresh:
		return "fresh"
	case NoticeConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// Notice is an upward signal from the inventory.
type Notice struct {
	Kind     NoticeKind
	FlightID string
	SeatID   string
	Message  string
}

// View is a copy of the inventory state for rendering.
type View struct {
	Session        SessionIdentity
	FlightID       string
	Seats          []model.Seat
	AvailableCount int
	Selected       string
	Confirmed      string
	BookingID      string
	Stale          bool
}

// Seat returns the seat with the given ID from the view.
func (v View) Seat(seatID string) (model.Seat, bool) {
	for _, s := range v.Seats {
		if s.SeatID == seatID {
			return s, true
		}
	}
	return model.Seat{}, false
}

// Inventory is the kiosk's seat cache and the reconciliation between the
// user's optimistic choices and what the server says.  All state below
// the marker is owned by the Run goroutine: callers hand it closures
// through the inbox, and realtime deliveries are applied by the same
// loop, so the cache is never mutated concurrently.  Network calls are
// made by the calling goroutine between two such closures.
type Inventory struct {
	api     SeatAPI
	feed    Feed
	log     *log.Logger
	inbox   chan func()
	notices chan Notice
	stopped chan struct{}
	bg      sync.WaitGroup // added to only from the loop

	// owned by Run
	session   SessionIdentity
	flightID  string
	seats     map[string]model.Seat // last authoritative state
	order     []string
	overlay   map[string]model.Seat // speculative state of seats with a request in flight
	pending   map[string]int
	selected  string
	confirmed string
	booking   string
	stale     bool
}

// NewInventory builds an inventory.  feed may be nil, in which case the
// cache only changes through fetches and the inventory's own requests.
func NewInventory(api SeatAPI, feed Feed, id SessionIdentity, logger *log.Logger) *Inventory {
	if id == "" {
		id = NewSessionIdentity()
	}
	if logger == nil {
		logger = log.New("inventory")
	}
	return &Inventory{
		api:     api,
		feed:    feed,
		log:     logger,
		inbox:   make(chan func()),
		notices: make(chan Notice, 32),
		stopped: make(chan struct{}),
		session: id,
		seats:   make(map[string]model.Seat),
		overlay: make(map[string]model.Seat),
		pending: make(map[string]int),
		stale:   feed != nil,
	}
}

// Notices delivers seat-lost conflicts, staleness changes and confirmations.
func (inv *Inventory) Notices() <-chan Notice { return inv.notices }

// Run is the single consumer of the inventory state.  It returns when ctx
// is cancelled, after outstanding best-effort unlocks have finished.
func (inv *Inventory) Run(ctx context.Context) error {
	defer func() {
		close(inv.stopped)
		inv.bg.Wait()
	}()
	var deliveries <-chan Delivery
	if inv.feed != nil {
		deliveries = inv.feed.Deliveries()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-inv.inbox:
			fn()
		case d, ok := <-deliveries:
			if !ok {
				deliveries = nil
				continue
			}
			inv.handleDelivery(ctx, d)
		}
	}
}

func (inv *Inventory) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case inv.inbox <- func() { defer close(done); fn() }:
	case <-inv.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Track switches the kiosk to a flight: any selection on the previous
// flight is released, the flight is subscribed and its seat map fetched.
// The map is fetched again once the subscription is acknowledged.
func (inv *Inventory) Track(ctx context.Context, flightID string) error {
	var prev string
	if err := inv.exec(ctx, func() {
		prev = inv.flightID
		if prev == flightID {
			return
		}
		inv.leave()
		inv.flightID = flightID
		inv.seats = make(map[string]model.Seat)
		inv.order = nil
		inv.overlay = make(map[string]model.Seat)
		inv.pending = make(map[string]int)
		inv.confirmed, inv.booking = "", ""
	}); err != nil {
		return err
	}
	if inv.feed != nil {
		if prev != "" && prev != flightID {
			inv.feed.Unsubscribe(prev)
		}
		inv.feed.Subscribe(flightID)
	}
	return inv.refresh(ctx, flightID)
}

// FetchSeatMap replaces the cache with a fresh server snapshot.
func (inv *Inventory) FetchSeatMap(ctx context.Context) error {
	var flightID string
	if err := inv.exec(ctx, func() { flightID = inv.flightID }); err != nil {
		return err
	}
	if flightID == "" {
		return ErrNotTracking
	}
	return inv.refresh(ctx, flightID)
}

func (inv *Inventory) refresh(ctx context.Context, flightID string) error {
	m, err := inv.api.FetchSeatMap(ctx, flightID)
	if err != nil {
		return err
	}
	return inv.exec(context.WithoutCancel(ctx), func() { inv.applySnapshot(flightID, m) })
}

// SelectSeat moves the selection to seatID.  A previous selection is
// released without waiting for the result; the new seat is shown as ours
// until the server answers, and rolled back if it refuses.
func (inv *Inventory) SelectSeat(ctx context.Context, seatID string) error {
	var (
		flightID string
		session  SessionIdentity
		startErr error
	)
	err := inv.exec(ctx, func() {
		if inv.flightID == "" {
			startErr = ErrNotTracking
			return
		}
		seat, ok := inv.seats[seatID]
		if !ok {
			startErr = ErrSeatNotFound
			return
		}
		flightID, session = inv.flightID, inv.session
		if old := inv.selected; old != "" && old != seatID {
			inv.releaseAsync(flightID, old, session)
		}
		speculative := seat
		speculative.Status = model.SeatLocked
		speculative.OwnerToken = string(session)
		speculative.BookingID = ""
		inv.overlay[seatID] = speculative
		inv.pending[seatID]++
		inv.selected = seatID
	})
	if err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	locked, lockErr := inv.api.Lock(ctx, flightID, seatID, session)

	err = inv.exec(context.WithoutCancel(ctx), func() {
		inv.settle(seatID)
		if lockErr != nil {
			if inv.selected == seatID {
				inv.selected = ""
			}
			return
		}
		if locked.FlightID == inv.flightID {
			inv.applySeat(locked)
		}
		if inv.selected != seatID || inv.session != session || inv.flightID != flightID {
			// The user moved on while the lock was in flight.
			inv.releaseAsync(flightID, seatID, session)
			return
		}
		inv.checkSelection()
	})
	if err != nil {
		return err
	}
	return lockErr
}

// ConfirmSelection reserves the selected seat for bookingID.  When the
// lock has expired or is held by someone else the selection is cleared
// and the user must pick again; the seat is never re-locked implicitly.
func (inv *Inventory) ConfirmSelection(ctx context.Context, bookingID string) error {
	var (
		flightID, seatID string
		session          SessionIdentity
		startErr         error
	)
	err := inv.exec(ctx, func() {
		switch {
		case inv.flightID == "":
			startErr = ErrNotTracking
		case inv.selected == "":
			startErr = ErrNoSelection
		default:
			flightID, seatID, session = inv.flightID, inv.selected, inv.session
			inv.pending[seatID]++
		}
	})
	if err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	seat, confirmErr := inv.api.Confirm(ctx, flightID, seatID, session, bookingID)

	err = inv.exec(context.WithoutCancel(ctx), func() {
		inv.settle(seatID)
		if inv.flightID != flightID {
			return
		}
		switch {
		case confirmErr == nil:
			inv.applySeat(seat)
			if inv.selected == seatID {
				inv.selected = ""
			}
			inv.confirmed, inv.booking = seatID, seat.BookingID
			inv.notify(Notice{Kind: NoticeConfirmed, FlightID: flightID, SeatID: seatID, Message: "seat " + seat.SeatNumber + " confirmed"})
		case errors.Is(confirmErr, ErrLockExpired), errors.Is(confirmErr, ErrLockNotHeld):
			if inv.selected == seatID {
				inv.selected = ""
			}
		default:
			inv.checkSelection()
		}
	})
	if err != nil {
		return err
	}
	return confirmErr
}

// Leave abandons the seat-selection step.  The held seat is released on a
// best-effort basis; if that fails the server lock simply expires.
func (inv *Inventory) Leave() error {
	return inv.exec(context.Background(), inv.leave)
}

// Reset ends the kiosk session: the selection is released and a new
// identity is minted.
func (inv *Inventory) Reset() (SessionIdentity, error) {
	var id SessionIdentity
	err := inv.exec(context.Background(), func() {
		inv.leave()
		inv.session = NewSessionIdentity()
		inv.confirmed, inv.booking = "", ""
		id = inv.session
	})
	return id, err
}

// Snapshot returns a copy of the current view.
func (inv *Inventory) Snapshot() View {
	var v View
	_ = inv.exec(context.Background(), func() {
		v = View{
			Session:   inv.session,
			FlightID:  inv.flightID,
			Seats:     make([]model.Seat, 0, len(inv.order)),
			Selected:  inv.selected,
			Confirmed: inv.confirmed,
			BookingID: inv.booking,
			Stale:     inv.stale,
		}
		for _, id := range inv.order {
			s := inv.seats[id]
			if o, ok := inv.overlay[id]; ok {
				s = o
			}
			if s.Status == model.SeatAvailable {
				v.AvailableCount++
			}
			v.Seats = append(v.Seats, s)
		}
	})
	return v
}

// The methods below run on the Run goroutine only.

func (inv *Inventory) handleDelivery(ctx context.Context, d Delivery) {
	switch d.Kind {
	case DeliveryEvent:
		inv.applyEvent(d.Event)
	case DeliveryConnected:
		inv.stale = false
		inv.notify(Notice{Kind: NoticeFresh, FlightID: inv.flightID, Message: "live seat updates restored"})
		if inv.flightID != "" {
			inv.refetch(ctx, inv.flightID, "reconnect")
		}
	case DeliverySubscribed:
		// Events from here on reach us; the snapshot taken by Track may
		// predate the server registering the flight.
		if d.FlightID != "" && d.FlightID == inv.flightID {
			inv.refetch(ctx, d.FlightID, "subscribe")
		}
	case DeliveryDisconnected:
		if !inv.stale {
			inv.stale = true
			inv.notify(Notice{Kind: NoticeStale, FlightID: inv.flightID, Message: "seat map may be out of date"})
		}
	}
}

func (inv *Inventory) refetch(ctx context.Context, flightID, after string) {
	inv.bg.Add(1)
	go func() {
		defer inv.bg.Done()
		if err := inv.refresh(ctx, flightID); err != nil && ctx.Err() == nil {
			inv.log.Warnf("inventory: refetch after %s failed flight=%s: %v", after, flightID, err)
		}
	}()
}

func (inv *Inventory) applySnapshot(flightID string, m model.SeatMap) {
	if inv.flightID != flightID {
		return
	}
	seats := make(map[string]model.Seat, len(m.Seats))
	order := make([]string, 0, len(m.Seats))
	for _, s := range m.Seats {
		if cur, ok := inv.seats[s.SeatID]; ok && cur.Version > s.Version {
			s = cur
		}
		seats[s.SeatID] = s
		order = append(order, s.SeatID)
	}
	inv.seats, inv.order = seats, order
	inv.checkSelection()
}

func (inv *Inventory) applyEvent(ev model.SeatEvent) {
	if ev.FlightID != inv.flightID {
		return
	}
	cur, ok := inv.seats[ev.SeatID]
	if !ok || ev.Version <= cur.Version {
		return
	}
	cur.Status = ev.Status
	cur.OwnerToken = ""
	cur.LockExpiresAt = nil
	if ev.Status == model.SeatLocked {
		cur.OwnerToken = ev.SessionID
		cur.LockExpiresAt = ev.LockExpiresAt
	}
	if ev.Status == model.SeatAvailable || ev.Status == model.SeatLocked {
		cur.BookingID = ""
	}
	cur.Version = ev.Version
	inv.seats[ev.SeatID] = cur
	inv.checkSelection()
}

func (inv *Inventory) applySeat(s model.Seat) {
	if cur, ok := inv.seats[s.SeatID]; ok && cur.Version >= s.Version {
		return
	}
	if _, ok := inv.seats[s.SeatID]; !ok {
		inv.order = append(inv.order, s.SeatID)
	}
	inv.seats[s.SeatID] = s
}

// checkSelection drops a selection the authoritative state no longer
// backs.  Seats with a request in flight are left alone until it settles.
func (inv *Inventory) checkSelection() {
	id := inv.selected
	if id == "" || inv.pending[id] > 0 {
		return
	}
	if s, ok := inv.seats[id]; ok && s.Status == model.SeatLocked && s.OwnerToken == string(inv.session) {
		return
	}
	inv.selected = ""
	inv.notify(Notice{Kind: NoticeSeatLost, FlightID: inv.flightID, SeatID: id, Message: "seat no longer available; choose another"})
}

func (inv *Inventory) settle(seatID string) {
	inv.pending[seatID]--
	if inv.pending[seatID] <= 0 {
		delete(inv.pending, seatID)
		delete(inv.overlay, seatID)
	}
}

func (inv *Inventory) leave() {
	if inv.selected == "" {
		return
	}
	inv.releaseAsync(inv.flightID, inv.selected, inv.session)
	inv.selected = ""
}

func (inv *Inventory) releaseAsync(flightID, seatID string, session SessionIdentity) {
	inv.bg.Add(1)
	go func() {
		defer inv.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if err := inv.api.Unlock(ctx, flightID, seatID, session); err != nil {
			inv.log.Warnf("inventory: best-effort unlock failed flight=%s seat=%s: %v", flightID, seatID, err)
		}
	}()
}

func (inv *Inventory) notify(n Notice) {
	select {
	case inv.notices <- n:
	default:
		inv.log.Debugf("inventory: notice dropped: %s %s", n.Kind, n.SeatID)
	}
}
