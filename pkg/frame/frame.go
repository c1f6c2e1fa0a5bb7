// Package frame implements the Companion protocol wire framing: a
// 4-byte header holding a 1-byte frame type and a 3-byte big-endian
// payload length, followed by the payload.
package frame

import "fmt"

// Type identifies the kind of payload a frame carries.
type Type uint8

// Frame types used by the protocol.
const (
	TypeNoOp Type = 0x00

	// Pair-Setup handshake frames.
	TypePSStart Type = 0x03
	TypePSNext  Type = 0x04

	// Pair-Verify handshake frames.
	TypePVStart Type = 0x05
	TypePVNext  Type = 0x06

	// OPACK data frames: unencrypted, encrypted, plaintext-with-session.
	TypeUOPACK Type = 0x07
	TypeEOPACK Type = 0x08
	TypePOPACK Type = 0x09
)

// String returns the frame type name.
func (t Type) String() string {
	switch t {
	case TypeNoOp:
		return "NoOp"
	case TypePSStart:
		return "PS_Start"
	case TypePSNext:
		return "PS_Next"
	case TypePVStart:
		return "PV_Start"
	case TypePVNext:
		return "PV_Next"
	case TypeUOPACK:
		return "U_OPACK"
	case TypeEOPACK:
		return "E_OPACK"
	case TypePOPACK:
		return "P_OPACK"
	default:
		return fmt.Sprintf("Type(0x%02X)", uint8(t))
	}
}

// IsAuth reports whether the frame type belongs to a pairing handshake.
func (t Type) IsAuth() bool {
	switch t {
	case TypePSStart, TypePSNext, TypePVStart, TypePVNext:
		return true
	default:
		return false
	}
}

// IsOPACK reports whether the frame carries an OPACK data payload.
func (t Type) IsOPACK() bool {
	switch t {
	case TypeUOPACK, TypeEOPACK, TypePOPACK:
		return true
	default:
		return false
	}
}

// HeaderSize is the wire size of a frame header.
const HeaderSize = 4

// MaxPayload is the largest payload a frame can carry (3-byte length).
const MaxPayload = 1<<24 - 1

// Frame is a decoded wire frame.
type Frame struct {
	Type    Type
	Payload []byte
}

// EncodeHeader serializes a frame header for the given payload length.
// The length is the transmitted length and includes the authentication
// tag when the payload is sealed.
func EncodeHeader(t Type, length int) ([]byte, error) {
	if length < 0 || length > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	return []byte{
		byte(t),
		byte(length >> 16),
		byte(length >> 8),
		byte(length),
	}, nil
}

// DecodeHeader parses a frame header.
func DecodeHeader(header []byte) (Type, int, error) {
	if len(header) < HeaderSize {
		return 0, 0, ErrShortHeader
	}
	length := int(header[1])<<16 | int(header[2])<<8 | int(header[3])
	return Type(header[0]), length, nil
}
