package discovery

import "errors"

var (
	// ErrServiceNotFound is returned when no matching service appears
	// before the timeout.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrTimeout is returned when a lookup deadline expires.
	ErrTimeout = errors.New("discovery: timeout")
)
