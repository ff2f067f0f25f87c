package middleware

// identity.go resolves which kiosk is calling.  There are no accounts: a
// kiosk names itself with an opaque session id, sent in the X-Kiosk-Session
// header or the sessionId query parameter.  The id is stored on the echo
// context for handlers and for the rate limiter.

import (
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/kiosk-seat-engine/internal/handler"
)

const maxSessionLen = 80

// KioskIdentity copies the caller's session id onto the context.  A missing
// id is not an error here; mutating handlers reject it during validation.
func KioskIdentity() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id := strings.TrimSpace(c.Request().Header.Get(handler.SessionHeader))
            if id == "" {
                id = strings.TrimSpace(c.QueryParam("sessionId"))
            }
            if id != "" && len(id) <= maxSessionLen {
                c.Set(handler.SessionContextKey, id)
            }
            return next(c)
        }
    }
}

// sessionID returns the kiosk session on the context, or "anon".
func sessionID(c echo.Context) string {
    if s, ok := c.Get(handler.SessionContextKey).(string); ok && s != "" {
        return s
    }
    return "anon"
}
