package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "database/sql"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
    "github.com/redis/go-redis/v9"
)

// HealthHandler reports whether the service and its optional backing
// stores are reachable.  A nil DB or Redis client is simply not checked.
type HealthHandler struct {
    DB    *sql.DB
    Redis *redis.Client
}

// Health is the health‑check endpoint used by load balancers and
// monitoring systems.  It answers 200 with "ok" for every dependency, or
// 503 naming the dependency that failed.
func (h *HealthHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    checks := echo.Map{"service": "ok"}
    status := http.StatusOK
    if h != nil && h.DB != nil {
        checks["mysql"] = "ok"
        if err := h.DB.PingContext(ctx); err != nil {
            checks["mysql"] = err.Error()
            status = http.StatusServiceUnavailable
        }
    }
    if h != nil && h.Redis != nil {
        checks["redis"] = "ok"
        if err := h.Redis.Ping(ctx).Err(); err != nil {
            checks["redis"] = err.Error()
            status = http.StatusServiceUnavailable
        }
    }
    return c.JSON(status, checks)
}
