package transport

import "errors"

var (
	// ErrClosed is returned when operating on a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrNoHandler is returned when Start is called before SetHandler.
	ErrNoHandler = errors.New("transport: no frame handler set")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrKeysInstalled is returned when InstallKeys is called twice;
	// session keys live for exactly one session.
	ErrKeysInstalled = errors.New("transport: session keys already installed")

	// ErrInvalidKey is returned when a session key is not 32 bytes.
	ErrInvalidKey = errors.New("transport: invalid session key length")
)
