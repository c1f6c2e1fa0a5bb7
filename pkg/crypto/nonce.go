package crypto

import "encoding/binary"

// NonceSize is the ChaCha20-Poly1305 nonce length.
const NonceSize = 12

// The protocol uses three nonce constructions:
//
//   - 8-byte logical: 4 zero bytes followed by a little-endian counter.
//     Used for pairing-phase encryptions.
//   - 12-byte logical: a little-endian counter followed by 4 zero bytes.
//     Used on the data channel.
//   - string label: an ASCII label right-aligned in the 12-byte nonce
//     with zero padding on the left. Used where the HAP pairing spec
//     mandates fixed nonces ("PS-Msg05", "PV-Msg02", ...).

// Nonce8 builds a 12-byte AEAD nonce from an 8-byte logical counter.
func Nonce8(counter uint64) []byte {
	nonce := make([]byte, NonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// Nonce12 builds a 12-byte AEAD nonce from a 12-byte logical counter.
func Nonce12(counter uint64) []byte {
	nonce := make([]byte, NonceSize)
	binary.LittleEndian.PutUint64(nonce[:8], counter)
	return nonce
}

// NonceLabel builds a fixed nonce from an ASCII label, right-aligned in
// 12 bytes with left zero-padding.
func NonceLabel(label string) ([]byte, error) {
	if len(label) > NonceSize {
		return nil, ErrNonceLabelTooLong
	}
	nonce := make([]byte, NonceSize)
	copy(nonce[NonceSize-len(label):], label)
	return nonce, nil
}

// Counter is a per-direction nonce counter. It increments exactly once
// per sealed or opened frame and refuses to wrap: a session that would
// reuse a nonce must fail instead.
type Counter struct {
	value     uint64
	exhausted bool
}

// Next returns the current counter value and advances it.
func (c *Counter) Next() (uint64, error) {
	if c.exhausted {
		return 0, ErrNonceExhausted
	}
	v := c.value
	if c.value == ^uint64(0) {
		c.exhausted = true
	} else {
		c.value++
	}
	return v, nil
}

// Value returns the counter value that Next will return, without
// advancing.
func (c *Counter) Value() uint64 {
	return c.value
}
