package companion

import "errors"

var (
	// ErrNotConnected is returned when an operation requires an
	// established session.
	ErrNotConnected = errors.New("companion: not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("companion: already connected")

	// ErrNoAddress is returned when no device address is configured.
	ErrNoAddress = errors.New("companion: no device address configured")

	// ErrNoCredentials is returned when Connect is attempted without
	// pairing credentials.
	ErrNoCredentials = errors.New("companion: no credentials, pair first")

	// ErrUnexpectedResponse is returned when a response lacks the
	// expected content shape.
	ErrUnexpectedResponse = errors.New("companion: unexpected response shape")
)
