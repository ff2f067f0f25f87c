package middleware

import (
    "context"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/kiosk-seat-engine/internal/config"
    "github.com/iliyamo/kiosk-seat-engine/internal/model"
)

// tokenBucket refills whole intervals lazily on each call, takes one token
// if there is one, and reports {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
    tokens = capacity
    last = now_ms
end

local elapsed = math.max(0, now_ms - last)
local steps = math.floor(elapsed / interval_ms)
if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    last = last + steps * interval_ms
end

local allowed = 0
local wait_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    wait_ms = math.max(0, interval_ms - (now_ms - last))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last)
redis.call('EXPIRE', key, ttl)
return { allowed, tokens, wait_ms }
`)

type bucketState struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

func takeToken(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (bucketState, error) {
    res, err := tokenBucket.Run(ctx, rdb, []string{key},
        now.UnixMilli(), cfg.Capacity, cfg.RefillTokens,
        cfg.RefillInterval.Milliseconds(), int64(cfg.TTL/time.Second)).Int64Slice()
    if err != nil {
        return bucketState{}, err
    }
    if len(res) != 3 {
        return bucketState{}, fmt.Errorf("token bucket: unexpected reply %v", res)
    }
    return bucketState{
        allowed:   res[0] == 1,
        remaining: res[1],
        retry:     time.Duration(res[2]) * time.Millisecond,
    }, nil
}

// NewTokenBucket limits lock and confirm traffic with a token bucket kept in
// Redis, so every instance of the service draws from the same buckets.  A
// Redis failure lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            st, err := takeToken(c.Request().Context(), rdb, cfg, key, time.Now())
            if err != nil {
                c.Logger().Warnf("ratelimit: bucket %s unavailable, letting request through: %v", key, err)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(st.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if st.allowed {
                return next(c)
            }

            secs := int((st.retry + time.Second - 1) / time.Second)
            h.Set("Retry-After", strconv.Itoa(secs))
            if cfg.Debug {
                c.Logger().Infof("ratelimit: blocked key=%s retry=%s", key, st.retry)
            }
            return c.JSON(http.StatusTooManyRequests, map[string]any{
                "success":     false,
                "message":     "too many seat requests, slow down",
                "timestamp":   time.Now().UTC(),
                "error":       map[string]string{"code": model.CodeRateLimited, "message": "too many seat requests, slow down"},
                "retry_after": secs,
            })
        }
    }
}

// buildRateKey derives the bucket key.  Strategies combine the client IP,
// the kiosk session and the route; the route is the registered pattern so
// every seat of a flight shares one bucket.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    sid := sessionID(c)
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "session":
        parts = append(parts, "session", sid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "session_route":
        parts = append(parts, "session", sid, "route", route)
    default:
        parts = append(parts, "ip", ip, "session", sid, "route", route)
    }
    return strings.Join(parts, ":")
}
