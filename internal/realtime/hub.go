// Package realtime fans committed seat events out to the kiosks watching
// a flight.  A Hub keeps the per-flight topics of one process; RedisBus
// carries events between processes and feeds every Hub; Endpoint exposes
// a Hub over WebSocket.
package realtime

import (
	"context"
	"sync"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscriber is one consumer of flight topics, typically a WebSocket
// connection.  Events arrive on Events; Done is closed when the hub drops
// the subscriber because it fell behind or was removed.
type Subscriber struct {
	events    chan model.SeatEvent
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the delivery channel.
func (s *Subscriber) Events() <-chan model.SeatEvent { return s.events }

// Done is closed once the subscriber no longer receives events.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

type seatRef struct {
	flightID string
	seatID   string
}

// Hub is an in-process ChangeBroadcaster.  Delivery to a subscriber never
// blocks the publisher: a subscriber whose queue is full is disconnected,
// and recovers by reconnecting and refetching the seat map.  Publish holds
// the hub lock while enqueueing, so events for one seat reach every
// subscriber in publish order, and an event whose version is not newer
// than the last one seen for that seat is dropped.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*Subscriber]struct{}
	subs   map[*Subscriber]map[string]struct{}
	last   map[seatRef]uint64
	buffer int
	log    *log.Logger
}

// NewHub returns a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, logger *log.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = log.New("hub")
	}
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		subs:   make(map[*Subscriber]map[string]struct{}),
		last:   make(map[seatRef]uint64),
		buffer: buffer,
		log:    logger,
	}
}

// NewSubscriber registers a subscriber with no topics.
func (h *Hub) NewSubscriber() *Subscriber {
	s := &Subscriber{
		events: make(chan model.SeatEvent, h.buffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = make(map[string]struct{})
	h.mu.Unlock()
	return s
}

// Subscribe adds flightID to the subscriber's topics.  It reports false if
// the subscriber has already been removed.
func (h *Hub) Subscribe(s *Subscriber, flightID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	flights, ok := h.subs[s]
	if !ok {
		return false
	}
	flights[flightID] = struct{}{}
	topic := h.topics[flightID]
	if topic == nil {
		topic = make(map[*Subscriber]struct{})
		h.topics[flightID] = topic
	}
	topic[s] = struct{}{}
	return true
}

// Unsubscribe drops one topic.
func (h *Hub) Unsubscribe(s *Subscriber, flightID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if flights, ok := h.subs[s]; ok {
		delete(flights, flightID)
	}
	h.detach(s, flightID)
}

// Remove drops every topic of the subscriber and closes Done.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	h.removeLocked(s)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(s *Subscriber) {
	for flightID := range h.subs[s] {
		h.detach(s, flightID)
	}
	delete(h.subs, s)
	s.close()
}

func (h *Hub) detach(s *Subscriber, flightID string) {
	topic := h.topics[flightID]
	delete(topic, s)
	if len(topic) == 0 {
		delete(h.topics, flightID)
	}
}

// Publish delivers ev to every subscriber of ev.FlightID.  It never fails.
func (h *Hub) Publish(_ context.Context, ev model.SeatEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ref := seatRef{ev.FlightID, ev.SeatID}
	if last, seen := h.last[ref]; seen && ev.Version <= last {
		return nil
	}
	h.last[ref] = ev.Version

	for s := range h.topics[ev.FlightID] {
		select {
		case s.events <- ev:
		default:
			h.log.Warnf("hub: subscriber too slow on flight %s, disconnecting", ev.FlightID)
			h.removeLocked(s)
		}
	}
	return nil
}

// SubscriberCount returns the number of subscribers of a flight.
func (h *Hub) SubscriberCount(flightID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[flightID])
}
