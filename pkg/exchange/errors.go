package exchange

import "errors"

var (
	// ErrTimeout is returned when no matching response arrives within
	// the request timeout.
	ErrTimeout = errors.New("exchange: request timed out")

	// ErrStopped is returned for requests pending when the transport
	// closes.
	ErrStopped = errors.New("exchange: protocol stopped")

	// ErrHandshakeBusy is returned when an auth request is issued while
	// another request on the same response frame type is pending.
	// Handshakes are strictly serial.
	ErrHandshakeBusy = errors.New("exchange: handshake already in progress")

	// ErrRemote is the base error for responses carrying an _em error
	// message.
	ErrRemote = errors.New("exchange: remote error")

	// ErrNoSender is returned when a Manager is created without a
	// transport sender.
	ErrNoSender = errors.New("exchange: no sender configured")

	// ErrNotOPACK is returned when sending an OPACK request on a
	// non-OPACK frame type, or an auth request on a non-auth type.
	ErrNotOPACK = errors.New("exchange: frame type mismatch for request")

	// ErrInvalidResponse is returned when an inbound OPACK frame does
	// not decode to the expected envelope shape.
	ErrInvalidResponse = errors.New("exchange: invalid response payload")
)
