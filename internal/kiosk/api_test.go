package kiosk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

func replyWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func errorBody(code string) string {
	return `{"success":false,"error":{"code":"` + code + `","message":"nope"}}`
}

func TestHTTPClientMapsErrorCodes(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusConflict, errorBody(model.CodeSeatUnavailable), ErrSeatUnavailable},
		{http.StatusConflict, errorBody(model.CodeLockExpired), ErrLockExpired},
		{http.StatusConflict, errorBody(model.CodeLockNotHeld), ErrLockNotHeld},
		{http.StatusNotFound, errorBody(model.CodeFlightNotFound), ErrSeatNotFound},
		{http.StatusInternalServerError, errorBody(model.CodeInvariantViolation), ErrInvariantViolation},
		{http.StatusTooManyRequests, errorBody(model.CodeRateLimited), ErrTransportUnavailable},
		{http.StatusBadGateway, `<html>bad gateway</html>`, ErrTransportUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(replyWith(tc.status, tc.body))
		c := NewHTTPClient(srv.URL, srv.Client())
		_, err := c.Lock(context.Background(), "FL001", "12A", "session-a")
		assert.ErrorIs(t, err, tc.want, "status %d body %s", tc.status, tc.body)
		srv.Close()
	}
}

func TestHTTPClientUnknownCodeIsAPIError(t *testing.T) {
	srv := httptest.NewServer(replyWith(http.StatusBadRequest, errorBody(model.CodeValidation)))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, srv.Client()).Unlock(context.Background(), "FL001", "12A", "session-a")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, model.CodeValidation, apiErr.Code)
	assert.False(t, Retryable(err))
}

func TestHTTPClientSendsSessionAndBooking(t *testing.T) {
	var (
		gotPath, gotHeader string
		gotBody            map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotHeader = r.Header.Get(SessionHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		replyWith(http.StatusOK, `{"success":true,"data":{"seatId":"14C","flightId":"FL001","seatStatus":"RESERVED","bookingId":"BK7","version":3}}`)(w, r)
	}))
	defer srv.Close()

	seat, err := NewHTTPClient(srv.URL+"/", srv.Client()).Confirm(context.Background(), "FL001", "14C", "session-a", "BK7")
	require.NoError(t, err)
	assert.Equal(t, "POST /api/flights/FL001/seats/14C/confirm", gotPath)
	assert.Equal(t, "session-a", gotHeader)
	assert.Equal(t, map[string]string{"sessionId": "session-a", "bookingId": "BK7"}, gotBody)
	assert.Equal(t, model.SeatReserved, seat.Status)
	assert.Equal(t, uint64(3), seat.Version)
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(replyWith(http.StatusOK, `{}`))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, nil).FetchSeatMap(context.Background(), "FL001")
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.True(t, Retryable(err))
}

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws", WebSocketURL("http://localhost:8080/"))
	assert.Equal(t, "wss://seats.example.com/ws", WebSocketURL("https://seats.example.com"))
}
