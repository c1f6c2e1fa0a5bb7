package crypto

import "errors"

var (
	// ErrInvalidKeySize is returned when a key has the wrong length.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidNonceSize is returned when a nonce is not 12 bytes.
	ErrInvalidNonceSize = errors.New("crypto: invalid nonce size")

	// ErrNonceLabelTooLong is returned when a string nonce label exceeds
	// the 12-byte nonce.
	ErrNonceLabelTooLong = errors.New("crypto: nonce label too long")

	// ErrNonceExhausted is returned when a nonce counter would wrap.
	// The session must be torn down and re-established.
	ErrNonceExhausted = errors.New("crypto: nonce counter exhausted")

	// ErrAuthentication is returned when AEAD open fails. The session
	// keys or counters are out of sync and the session is unusable.
	ErrAuthentication = errors.New("crypto: message authentication failed")

	// ErrSignature is returned when an Ed25519 signature does not verify.
	ErrSignature = errors.New("crypto: signature verification failed")
)
