package kiosk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

// SeatAPI is the request/response half of the seat service.
type SeatAPI interface {
	FetchSeatMap(ctx context.Context, flightID string) (model.SeatMap, error)
	Lock(ctx context.Context, flightID, seatID string, session SessionIdentity) (model.Seat, error)
	Unlock(ctx context.Context, flightID, seatID string, session SessionIdentity) error
	Confirm(ctx context.Context, flightID, seatID string, session SessionIdentity, bookingID string) (model.Seat, error)
}

// SessionHeader carries the kiosk session on every request.
const SessionHeader = "X-Kiosk-Session"

// HTTPClient talks to the seat service's JSON API.
type HTTPClient struct {
	base string
	hc   *http.Client
}

// NewHTTPClient returns a client for baseURL (e.g. http://localhost:8080).
// A nil hc gets a client with a 10 second timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type seatRequest struct {
	SessionID string `json:"sessionId"`
	BookingID string `json:"bookingId,omitempty"`
}

func seatsPath(flightID string) string {
	return "/api/flights/" + url.PathEscape(flightID) + "/seats"
}

func seatPath(flightID, seatID, action string) string {
	return seatsPath(flightID) + "/" + url.PathEscape(seatID) + "/" + action
}

// FetchSeatMap loads the full seat map of a flight.
func (c *HTTPClient) FetchSeatMap(ctx context.Context, flightID string) (model.SeatMap, error) {
	var m model.SeatMap
	err := c.do(ctx, http.MethodGet, seatsPath(flightID), "", nil, &m)
	return m, err
}

// Lock asks the server to lock a seat for session.
func (c *HTTPClient) Lock(ctx context.Context, flightID, seatID string, session SessionIdentity) (model.Seat, error) {
	var s model.Seat
	err := c.do(ctx, http.MethodPost, seatPath(flightID, seatID, "lock"), session, seatRequest{SessionID: string(session)}, &s)
	return s, err
}

// Unlock releases a lock.  The server treats it as idempotent.
func (c *HTTPClient) Unlock(ctx context.Context, flightID, seatID string, session SessionIdentity) error {
	return c.do(ctx, http.MethodDelete, seatPath(flightID, seatID, "lock"), session, seatRequest{SessionID: string(session)}, nil)
}

// Confirm reserves the locked seat for bookingID.
func (c *HTTPClient) Confirm(ctx context.Context, flightID, seatID string, session SessionIdentity, bookingID string) (model.Seat, error) {
	var s model.Seat
	err := c.do(ctx, http.MethodPost, seatPath(flightID, seatID, "confirm"), session,
		seatRequest{SessionID: string(session), BookingID: bookingID}, &s)
	return s, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, session SessionIdentity, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set(SessionHeader, string(session))
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", ErrTransportUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if !env.Success || resp.StatusCode >= 400 {
		code, msg := "", env.Message
		if env.Error != nil {
			code, msg = env.Error.Code, env.Error.Message
		}
		return codeError(resp.StatusCode, code, msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func codeError(status int, code, msg string) error {
	switch code {
	case model.CodeSeatUnavailable:
		return ErrSeatUnavailable
	case model.CodeLockExpired:
		return ErrLockExpired
	case model.CodeLockNotHeld:
		return ErrLockNotHeld
	case model.CodeSeatNotFound, model.CodeFlightNotFound:
		return ErrSeatNotFound
	case model.CodeInvariantViolation:
		return ErrInvariantViolation
	}
	if code == model.CodeRateLimited || status == http.StatusTooManyRequests ||
		status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout {
		return fmt.Errorf("%w: status %d", ErrTransportUnavailable, status)
	}
	return &APIError{Status: status, Code: code, Message: msg}
}
