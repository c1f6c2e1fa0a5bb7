package tlv8

import "errors"

var (
	// ErrTruncated is returned when the input ends in the middle of a triple.
	ErrTruncated = errors.New("tlv8: truncated record")

	// ErrTagNotFound is returned when a requested tag is absent.
	ErrTagNotFound = errors.New("tlv8: tag not found")
)
