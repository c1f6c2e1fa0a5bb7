package opack

import "errors"

var (
	// ErrUnknownTag is returned when the decoder encounters a tag outside
	// the supported ranges.
	ErrUnknownTag = errors.New("opack: unknown tag")

	// ErrTruncated is returned when the input ends inside a value.
	ErrTruncated = errors.New("opack: truncated input")

	// ErrTrailingData is returned when bytes remain after the top-level value.
	ErrTrailingData = errors.New("opack: trailing data after value")

	// ErrBadReference is returned for a back-reference to an index that has
	// not been defined yet.
	ErrBadReference = errors.New("opack: back-reference to undefined index")

	// ErrUnsupportedType is returned when encoding a Go value with no OPACK
	// representation.
	ErrUnsupportedType = errors.New("opack: unsupported type")

	// ErrInvalidMapKey is returned when a decoded map key is not a string.
	ErrInvalidMapKey = errors.New("opack: map key is not a string")

	// ErrUnterminated is returned when an endless array or map is missing
	// its 0x03 terminator.
	ErrUnterminated = errors.New("opack: unterminated container")
)
