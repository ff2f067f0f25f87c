package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/kiosk-seat-engine/internal/config"
)

// recorder tees the response into a bounded buffer.
type recorder struct {
    http.ResponseWriter
    status    int
    body      bytes.Buffer
    limit     int
    truncated bool
}

func (r *recorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
    if !r.truncated {
        if r.limit > 0 && r.body.Len()+len(b) > r.limit {
            r.truncated = true
        } else {
            r.body.Write(b)
        }
    }
    return r.ResponseWriter.Write(b)
}

// cacheKeyFrom builds a stable key honoring prefix and strategy.  The
// concrete URL path is used, not the route pattern, so each flight gets its
// own entry.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    var tail string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "path":
        tail = "path:" + r.URL.Path
    case "method_path":
        tail = "method:" + r.Method + ":path:" + r.URL.Path
    default: // "route_query"
        tail = "path:" + r.URL.Path + ":q:" + r.URL.Query().Encode()
    }
    return fmt.Sprintf("%s:%x", cfg.Prefix, sha1.Sum([]byte(tail)))
}

// encodePayload packs [status u32][header length u32][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdr, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8, 8+len(hdr)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
    out = append(out, hdr...)
    return append(out, body...), nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    n := int(binary.BigEndian.Uint32(bs[4:8]))
    if n < 0 || 8+n > len(bs) {
        return 0, nil, nil, false
    }
    header = make(http.Header)
    if n > 0 {
        if err := json.Unmarshal(bs[8:8+n], &header); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, header, bs[8+n:], true
}

// skipOnReplay lists headers that belong to the original exchange only.
var skipOnReplay = map[string]bool{
    "Content-Length":        true,
    "X-Cache":               true,
    "X-Request-Id":          true,
    "X-Ratelimit-Limit":     true,
    "X-Ratelimit-Remaining": true,
}

func replay(c echo.Context, payload []byte) bool {
    status, hdr, body, ok := decodePayload(payload)
    if !ok {
        return false
    }
    out := c.Response().Header()
    for k, vals := range hdr {
        if skipOnReplay[http.CanonicalHeaderKey(k)] {
            continue
        }
        for _, v := range vals {
            out.Add(k, v)
        }
    }
    out.Set("X-Cache", "HIT")
    c.Response().WriteHeader(status)
    if len(body) > 0 {
        _, _ = c.Response().Write(body)
    }
    return true
}

// NewRedisCache serves repeated reads from Redis.  Headers and body are
// stored together so a hit replays the original response byte for byte.
// Only complete 200 responses are kept; errors such as an invariant
// violation are never cached.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 5 * time.Second
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            ctx := c.Request().Context()
            key := cacheKeyFrom(cfg, c)

            payload, err := rdb.Get(ctx, key).Bytes()
            switch {
            case err == nil:
                if replay(c, payload) {
                    return nil
                }
            case !errors.Is(err, redis.Nil):
                c.Logger().Warnf("cache: get %s: %v", key, err)
            }

            rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.truncated {
                return nil
            }
            payload, err = encodePayload(rec.status, c.Response().Header().Clone(), rec.body.Bytes())
            if err != nil {
                return nil
            }
            if err := rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
                c.Logger().Warnf("cache: set %s: %v", key, err)
            }
            return nil
        }
    }
}
