package realtime

import "github.com/iliyamo/kiosk-seat-engine/internal/model"

// Client frame actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Server frame types.
const (
	FrameSeat         = "seat"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameError        = "error"
)

// ClientFrame is sent by a kiosk to change its topics.
type ClientFrame struct {
	Action   string `json:"action"`
	FlightID string `json:"flightId"`
}

// ServerFrame is sent to a kiosk: a seat event, a subscription
// acknowledgement or an error.
type ServerFrame struct {
	Type     string           `json:"type"`
	FlightID string           `json:"flightId,omitempty"`
	Event    *model.SeatEvent `json:"event,omitempty"`
	Message  string           `json:"message,omitempty"`
}
