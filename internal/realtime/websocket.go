package realtime

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"golang.org/x/net/websocket"
)

// Endpoint serves the flight topics over WebSocket.  A connection starts
// with no topics; closing it drops all of them.
type Endpoint struct {
	hub *Hub
	log *log.Logger
}

// NewEndpoint returns an endpoint backed by hub.
func NewEndpoint(hub *Hub, logger *log.Logger) *Endpoint {
	if logger == nil {
		logger = log.New("ws")
	}
	return &Endpoint{hub: hub, log: logger}
}

// Handle upgrades the request.  Kiosks are not browsers, so no Origin
// check is performed.
func (e *Endpoint) Handle(c echo.Context) error {
	srv := websocket.Server{Handler: e.serve}
	srv.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (e *Endpoint) serve(ws *websocket.Conn) {
	sub := e.hub.NewSubscriber()
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	defer func() {
		e.hub.Remove(sub)
		close(stop)
		_ = ws.Close()
		<-writerDone
	}()

	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stop:
				return
			case <-sub.Done():
				// Dropped by the hub; closing the socket ends the reader.
				_ = ws.Close()
				return
			case ev := <-sub.Events():
				if err := websocket.JSON.Send(ws, ServerFrame{Type: FrameSeat, FlightID: ev.FlightID, Event: &ev}); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		var f ClientFrame
		if err := websocket.JSON.Receive(ws, &f); err != nil {
			return
		}
		flightID := strings.TrimSpace(f.FlightID)
		var reply ServerFrame
		switch {
		case flightID == "":
			reply = ServerFrame{Type: FrameError, Message: "flightId is required"}
		case f.Action == ActionSubscribe:
			if !e.hub.Subscribe(sub, flightID) {
				return
			}
			reply = ServerFrame{Type: FrameSubscribed, FlightID: flightID}
		case f.Action == ActionUnsubscribe:
			e.hub.Unsubscribe(sub, flightID)
			reply = ServerFrame{Type: FrameUnsubscribed, FlightID: flightID}
		default:
			reply = ServerFrame{Type: FrameError, FlightID: flightID, Message: "unknown action " + f.Action}
		}
		if err := websocket.JSON.Send(ws, reply); err != nil {
			return
		}
	}
}
