package kiosk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
	"github.com/iliyamo/kiosk-seat-engine/internal/realtime"
)

// DeliveryKind tells seat events apart from connection changes.
type DeliveryKind int

const (
	DeliveryEvent DeliveryKind = iota
	DeliveryConnected
	DeliveryDisconnected
	// DeliverySubscribed follows a Subscribe made while connected, once
	// the server has acknowledged it.
	DeliverySubscribed
)

// Delivery is one item read from a RealtimeChannel.
type Delivery struct {
	Kind     DeliveryKind
	Event    model.SeatEvent
	FlightID string // set on DeliverySubscribed
	Err      error  // set on DeliveryDisconnected
}

// Feed is what the inventory needs from a realtime channel.
type Feed interface {
	Subscribe(flightID string)
	Unsubscribe(flightID string)
	Deliveries() <-chan Delivery
}

// ChannelOptions tune reconnection.
type ChannelOptions struct {
	// RetryDelay is the fixed pause after a failed dial or a dropped
	// connection.
	RetryDelay time.Duration
	// Burst caps how many connection attempts may happen back to back
	// before attempts are spaced RetryDelay apart by the limiter.
	Burst int
	// Buffer is the length of the delivery queue.
	Buffer int
}

// RealtimeChannel keeps one connection to the event transport open and
// replays the current subscription set every time it connects.  It never
// clears seat state: a drop is reported as DeliveryDisconnected, and the
// consumer must refetch on the following DeliveryConnected because events
// missed in between are gone.  DeliveryConnected is held back until the
// server has acknowledged every replayed subscription, so a snapshot taken
// after it cannot miss an event published before the server registered
// the flight.
type RealtimeChannel struct {
	dialer     Dialer
	retryDelay time.Duration
	limiter    *rate.Limiter
	log        *log.Logger
	deliveries chan Delivery

	mu      sync.Mutex
	flights map[string]struct{}
	conn    Conn
	stale   bool
}

// NewRealtimeChannel returns a channel that is stale until Run connects.
func NewRealtimeChannel(dialer Dialer, opts ChannelOptions, logger *log.Logger) *RealtimeChannel {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 3
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if logger == nil {
		logger = log.New("realtime")
	}
	return &RealtimeChannel{
		dialer:     dialer,
		retryDelay: opts.RetryDelay,
		limiter:    rate.NewLimiter(rate.Every(opts.RetryDelay), opts.Burst),
		log:        logger,
		deliveries: make(chan Delivery, opts.Buffer),
		flights:    make(map[string]struct{}),
		stale:      true,
	}
}

// Deliveries returns the stream of events and connection changes.
func (c *RealtimeChannel) Deliveries() <-chan Delivery { return c.deliveries }

// Stale reports whether the channel is disconnected or still waiting for
// its replayed subscriptions to be acknowledged.
func (c *RealtimeChannel) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// Subscribe adds a flight to the subscription set and, when connected,
// subscribes right away.
func (c *RealtimeChannel) Subscribe(flightID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flights[flightID] = struct{}{}
	if c.conn != nil {
		if err := c.conn.Send(realtime.ClientFrame{Action: realtime.ActionSubscribe, FlightID: flightID}); err != nil {
			c.log.Warnf("realtime: subscribe %s failed: %v", flightID, err)
		}
	}
}

// Unsubscribe removes a flight from the subscription set.
func (c *RealtimeChannel) Unsubscribe(flightID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flights, flightID)
	if c.conn != nil {
		if err := c.conn.Send(realtime.ClientFrame{Action: realtime.ActionUnsubscribe, FlightID: flightID}); err != nil {
			c.log.Warnf("realtime: unsubscribe %s failed: %v", flightID, err)
		}
	}
}

// Run connects, reads and reconnects until ctx is cancelled.
func (c *RealtimeChannel) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warnf("realtime: connect failed: %v; retrying in %s", err, c.retryDelay)
		} else {
			err = c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warnf("realtime: connection lost: %v; reconnecting in %s", err, c.retryDelay)
			c.deliver(ctx, Delivery{Kind: DeliveryDisconnected, Err: err})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *RealtimeChannel) serve(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.stale = true
		c.mu.Unlock()
		_ = conn.Close()
	}()

	c.mu.Lock()
	flights := make([]string, 0, len(c.flights))
	for id := range c.flights {
		flights = append(flights, id)
	}
	sort.Strings(flights)
	for _, id := range flights {
		if err := conn.Send(realtime.ClientFrame{Action: realtime.ActionSubscribe, FlightID: id}); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.conn = conn
	c.mu.Unlock()
	c.log.Infof("realtime: connected, restoring %d flight subscriptions", len(flights))

	restoring := make(map[string]struct{}, len(flights))
	for _, id := range flights {
		restoring[id] = struct{}{}
	}
	if len(restoring) == 0 {
		c.goLive(ctx, 0)
	}
	// settle reports whether the frame answered a replayed subscription.
	settle := func(flightID string) bool {
		if _, ok := restoring[flightID]; !ok {
			return false
		}
		delete(restoring, flightID)
		if len(restoring) == 0 {
			c.goLive(ctx, len(flights))
		}
		return true
	}

	for {
		f, err := conn.Receive()
		if err != nil {
			return err
		}
		switch f.Type {
		case realtime.FrameSeat:
			if f.Event != nil {
				c.deliver(ctx, Delivery{Kind: DeliveryEvent, Event: *f.Event})
			}
		case realtime.FrameSubscribed:
			if !settle(f.FlightID) {
				c.deliver(ctx, Delivery{Kind: DeliverySubscribed, FlightID: f.FlightID})
			}
		case realtime.FrameError:
			c.log.Warnf("realtime: server rejected frame for %q: %s", f.FlightID, f.Message)
			settle(f.FlightID)
		default:
			c.log.Debugf("realtime: %s %s", f.Type, f.FlightID)
		}
	}
}

func (c *RealtimeChannel) goLive(ctx context.Context, restored int) {
	c.mu.Lock()
	c.stale = false
	c.mu.Unlock()
	c.log.Infof("realtime: live, %d flight subscriptions restored", restored)
	c.deliver(ctx, Delivery{Kind: DeliveryConnected})
}

func (c *RealtimeChannel) deliver(ctx context.Context, d Delivery) {
	select {
	case c.deliveries <- d:
	case <-ctx.Done():
	}
}
