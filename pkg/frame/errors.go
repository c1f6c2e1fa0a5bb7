package frame

import "errors"

var (
	// ErrShortHeader is returned when fewer than 4 header bytes are available.
	ErrShortHeader = errors.New("frame: short header")

	// ErrPayloadTooLarge is returned when a payload does not fit the
	// 3-byte length field.
	ErrPayloadTooLarge = errors.New("frame: payload exceeds 3-byte length")
)
