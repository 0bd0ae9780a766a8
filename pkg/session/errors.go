package session

import "errors"

// Common error variables returned by the session manager and transports.
var (
	// ErrNotConnected is returned when a send is attempted with no connected
	// transport attached.
	ErrNotConnected = errors.New("session not connected")

	// ErrMalformedMessage wraps inbound payloads that are not well-formed
	// JSON objects and therefore match neither recognized wire shape.
	ErrMalformedMessage = errors.New("malformed inbound message")
)
