package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/kiosk-seat-engine/internal/config"
    "github.com/iliyamo/kiosk-seat-engine/internal/handler"
)

func newRedis(t *testing.T) *redis.Client {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return rdb
}

func do(e *echo.Echo, method, target, session string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, target, nil)
    if session != "" {
        req.Header.Set(handler.SessionHeader, session)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestKioskIdentityFromHeaderOrQuery(t *testing.T) {
    e := echo.New()
    e.Use(KioskIdentity())
    e.GET("/who", func(c echo.Context) error { return c.String(http.StatusOK, sessionID(c)) })

    assert.Equal(t, "session-a", do(e, http.MethodGet, "/who", " session-a ").Body.String())
    assert.Equal(t, "session-q", do(e, http.MethodGet, "/who?sessionId=session-q", "").Body.String())
    assert.Equal(t, "anon", do(e, http.MethodGet, "/who", "").Body.String())
}

func TestTokenBucketPerSession(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            5 * time.Hour,
        KeyStrategy:    "session_route",
        Prefix:         "rl",
    }
    e := echo.New()
    e.Use(KioskIdentity())
    e.POST("/api/flights/:flightId/seats/:seatId/lock", func(c echo.Context) error {
        return c.NoContent(http.StatusOK)
    }, NewTokenBucket(cfg, rdb))

    for i := 0; i < 2; i++ {
        rec := do(e, http.MethodPost, "/api/flights/FL001/seats/12A/lock", "session-a")
        require.Equal(t, http.StatusOK, rec.Code)
    }
    rec := do(e, http.MethodPost, "/api/flights/FL001/seats/12B/lock", "session-a")
    assert.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
    assert.NotEmpty(t, rec.Header().Get("Retry-After"))

    rec = do(e, http.MethodPost, "/api/flights/FL001/seats/12A/lock", "session-b")
    assert.Equal(t, http.StatusOK, rec.Code, "other kiosks have their own bucket")
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
        NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil))
    for i := 0; i < 3; i++ {
        assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/x", "").Code)
    }
}

func TestRedisCacheHitPerFlight(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.CacheConfig{
        Enabled:     true,
        Methods:     map[string]bool{http.MethodGet: true},
        TTL:         time.Minute,
        KeyStrategy: "route_query",
        Prefix:      "seatcache",
    }
    calls := 0
    e := echo.New()
    e.GET("/api/flights/:flightId/seats/assignments", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusOK, map[string]string{"flight": c.Param("flightId")})
    }, NewRedisCache(cfg, rdb))

    first := do(e, http.MethodGet, "/api/flights/FL001/seats/assignments", "")
    assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
    second := do(e, http.MethodGet, "/api/flights/FL001/seats/assignments", "")
    assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
    assert.Equal(t, first.Body.String(), second.Body.String())

    other := do(e, http.MethodGet, "/api/flights/FL002/seats/assignments", "")
    assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
    assert.Contains(t, other.Body.String(), "FL002")
    assert.Equal(t, 2, calls)
}

func TestRedisCacheSkipsErrors(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "c"}
    calls := 0
    e := echo.New()
    e.GET("/boom", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "x"})
    }, NewRedisCache(cfg, rdb))

    do(e, http.MethodGet, "/boom", "")
    do(e, http.MethodGet, "/boom", "")
    assert.Equal(t, 2, calls)
}

func TestPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)
    status, got, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "application/json", got.Get("Content-Type"))
    assert.Equal(t, `{"ok":true}`, string(body))

    _, _, _, ok = decodePayload([]byte{1, 2})
    assert.False(t, ok)
}
