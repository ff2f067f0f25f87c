package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

const channelPattern = "flights:*:seats"

// ChannelName is the Redis channel carrying a flight's seat events.
func ChannelName(flightID string) string {
	return fmt.Sprintf("flights:%s:seats", flightID)
}

func flightFromChannel(ch string) string {
	return strings.TrimSuffix(strings.TrimPrefix(ch, "flights:"), ":seats")
}

// RedisBus publishes seat events on Redis so that every server instance
// sees them, and relays what it receives into the local Hub.  The Hub's
// version filter removes the duplicate created when an event published
// here comes back through the relay.
type RedisBus struct {
	rdb *redis.Client
	hub *Hub
	log *log.Logger
}

// NewRedisBus builds a bus bound to a local hub.
func NewRedisBus(rdb *redis.Client, hub *Hub, logger *log.Logger) *RedisBus {
	if logger == nil {
		logger = log.New("redis-bus")
	}
	return &RedisBus{rdb: rdb, hub: hub, log: logger}
}

// Publish sends ev to the flight channel.  If Redis refuses it the event
// is still delivered to local subscribers and the error is returned.
func (b *RedisBus) Publish(ctx context.Context, ev model.SeatEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, ChannelName(ev.FlightID), payload).Err(); err != nil {
		_ = b.hub.Publish(ctx, ev)
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Relay subscribes to every flight channel and forwards events into the
// hub until ctx is cancelled.  ready, when non-nil, is closed once the
// subscription is confirmed.
func (b *RedisBus) Relay(ctx context.Context, ready chan<- struct{}) error {
	ps := b.rdb.PSubscribe(ctx, channelPattern)
	defer func() { _ = ps.Close() }()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	b.log.Infof("redis-bus: relaying %s", channelPattern)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev model.SeatEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warnf("redis-bus: bad payload on %s: %v", msg.Channel, err)
				continue
			}
			if ev.FlightID == "" {
				ev.FlightID = flightFromChannel(msg.Channel)
			}
			_ = b.hub.Publish(ctx, ev)
		}
	}
}
