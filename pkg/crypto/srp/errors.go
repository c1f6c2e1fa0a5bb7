package srp

import "errors"

var (
	// ErrInvalidEphemeral is returned when the caller-supplied ephemeral
	// secret is not 32 bytes.
	ErrInvalidEphemeral = errors.New("srp: ephemeral secret must be 32 bytes")

	// ErrInvalidServerKey is returned when the server public key is zero
	// modulo N, which would leak the session key.
	ErrInvalidServerKey = errors.New("srp: invalid server public key")

	// ErrInvalidState is returned when methods are called out of order.
	ErrInvalidState = errors.New("srp: server parameters not set")

	// ErrProofMismatch is returned when the server's proof M2 does not
	// match the expected value. The PIN or the peer is wrong.
	ErrProofMismatch = errors.New("srp: server proof mismatch")
)
