package kiosk

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/iliyamo/kiosk-seat-engine/internal/realtime"
)

// Conn is one live connection to the event transport.  Send may be called
// concurrently with Receive; Close unblocks a pending Receive.
type Conn interface {
	Send(f realtime.ClientFrame) error
	Receive() (realtime.ServerFrame, error)
	Close() error
}

// Dialer opens connections for a RealtimeChannel.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebSocketDialer connects to the server's /ws endpoint.
type WebSocketDialer struct {
	URL    string // ws://host:port/ws
	Origin string
}

// WebSocketURL derives the topic endpoint from the API base URL.
func WebSocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	origin := d.Origin
	if origin == "" {
		u, err := url.Parse(d.URL)
		if err != nil {
			return nil, err
		}
		origin = "http://" + u.Host
	}
	cfg, err := websocket.NewConfig(d.URL, origin)
	if err != nil {
		return nil, err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(f realtime.ClientFrame) error {
	return websocket.JSON.Send(c.ws, f)
}

func (c *wsConn) Receive() (realtime.ServerFrame, error) {
	var f realtime.ServerFrame
	err := websocket.JSON.Receive(c.ws, &f)
	return f, err
}

func (c *wsConn) Close() error { return c.ws.Close() }
