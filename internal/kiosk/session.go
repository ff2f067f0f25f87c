// Package kiosk is the client half of the seat engine: the session
// identity of one kiosk, the HTTP client for the seat API, the realtime
// channel that keeps flight subscriptions alive, and the inventory that
// reconciles the local seat cache with the server.
package kiosk

import "github.com/google/uuid"

// SessionIdentity tells this kiosk's locks apart from everyone else's.  It
// is minted per app lifetime and replaced on reset; it is not a credential.
type SessionIdentity string

// NewSessionIdentity mints a fresh random identity.
func NewSessionIdentity() SessionIdentity {
	return SessionIdentity("session-" + uuid.NewString())
}

func (s SessionIdentity) String() string { return string(s) }
