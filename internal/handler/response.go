package handler

import (
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/kiosk-seat-engine/internal/model"
    "github.com/iliyamo/kiosk-seat-engine/internal/repository"
    "github.com/iliyamo/kiosk-seat-engine/internal/service"
)

// Response is the envelope every seat endpoint answers with.
type Response struct {
    Success   bool       `json:"success"`
    Data      any        `json:"data,omitempty"`
    Message   string     `json:"message,omitempty"`
    Timestamp time.Time  `json:"timestamp"`
    Error     *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable code the kiosk maps back to an error.
type ErrorBody struct {
    Code    string `json:"code"`
    Message string `json:"message"`
}

func respondOK(c echo.Context, data any, message string) error {
    return c.JSON(http.StatusOK, Response{Success: true, Data: data, Message: message, Timestamp: time.Now().UTC()})
}

func respondError(c echo.Context, status int, code, message string) error {
    return c.JSON(status, Response{
        Success:   false,
        Message:   message,
        Timestamp: time.Now().UTC(),
        Error:     &ErrorBody{Code: code, Message: message},
    })
}

// respondServiceError maps coordinator and store errors onto HTTP.
func respondServiceError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, service.ErrSeatUnavailable):
        return respondError(c, http.StatusConflict, model.CodeSeatUnavailable, "seat is not available")
    case errors.Is(err, service.ErrLockExpired):
        return respondError(c, http.StatusConflict, model.CodeLockExpired, "seat lock has expired")
    case errors.Is(err, service.ErrLockNotHeld):
        return respondError(c, http.StatusConflict, model.CodeLockNotHeld, "seat lock is not held by this session")
    case errors.Is(err, repository.ErrSeatNotFound):
        return respondError(c, http.StatusNotFound, model.CodeSeatNotFound, "seat not found")
    case errors.Is(err, repository.ErrFlightNotFound):
        return respondError(c, http.StatusNotFound, model.CodeFlightNotFound, "flight not found")
    case errors.Is(err, service.ErrInvalidArgument):
        return respondError(c, http.StatusBadRequest, model.CodeValidation, err.Error())
    case errors.Is(err, service.ErrInvariantViolation):
        return respondError(c, http.StatusInternalServerError, model.CodeInvariantViolation, "seat data is inconsistent")
    }
    c.Logger().Errorf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
    return respondError(c, http.StatusInternalServerError, model.CodeInternal, "internal error")
}
