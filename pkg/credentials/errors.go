package credentials

import "errors"

var (
	// ErrInvalidCredentials is returned for credentials with missing or
	// mis-sized fields.
	ErrInvalidCredentials = errors.New("credentials: invalid credential set")

	// ErrNotFound is returned by a Store when no credentials are saved.
	ErrNotFound = errors.New("credentials: not found")
)
