// Package queue defines the seat audit payload exchanged over RabbitMQ and
// the background consumer that turns it into an append-only audit log.
package queue

import "time"

// AuditQueueName is the durable queue every instance publishes seat
// transitions to.
const AuditQueueName = "seat.audit"

// Audit actions.
const (
    ActionLock    = "LOCK"
    ActionUnlock  = "UNLOCK"
    ActionConfirm = "CONFIRM"
    ActionRelease = "RELEASE" // old seat freed by a seat change
    ActionExpire  = "EXPIRE"  // lapsed lock reclaimed
)

// SeatAuditEvent is published after a seat transition has been committed.
// It carries enough information for the audit log to be read without
// querying the seat table.
type SeatAuditEvent struct {
    Action    string    `json:"action"`
    FlightID  string    `json:"flightId"`
    SeatID    string    `json:"seatId"`
    OldStatus string    `json:"oldStatus"`
    NewStatus string    `json:"newStatus"`
    SessionID string    `json:"sessionId,omitempty"`
    BookingID string    `json:"bookingId,omitempty"`
    Version   uint64    `json:"version"`
    At        time.Time `json:"at"`
}
