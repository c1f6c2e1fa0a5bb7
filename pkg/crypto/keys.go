// Package crypto provides the cryptographic primitives used by the
// Companion protocol: Ed25519 signatures, X25519 key agreement,
// HKDF-SHA512 key derivation and ChaCha20-Poly1305 authenticated
// encryption, together with the protocol's nonce constructions.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// Key sizes used throughout the protocol.
const (
	// KeySize is the length of symmetric keys, public keys and key seeds.
	KeySize = 32

	// SignatureSize is the length of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// TagSize is the length of a Poly1305 authentication tag.
	TagSize = 16
)

// NewSigningKeypair generates a fresh Ed25519 keypair. The returned
// private key is the 32-byte seed; Sign and SigningPublicKey take the
// seed directly.
func NewSigningKeypair() (pub, seed []byte, err error) {
	seed = make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), seed, nil
}

// SigningPublicKey derives the Ed25519 public key from a 32-byte seed.
func SigningPublicKey(seed []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeySize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), nil
}

// Sign signs msg with the 32-byte Ed25519 seed.
func Sign(seed, msg []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeySize
	}
	return ed25519.Sign(ed25519.NewKeyFromSeed(seed), msg), nil
}

// Verify checks an Ed25519 signature.
func Verify(pub, msg, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidKeySize
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return ErrSignature
	}
	return nil
}

// NewECDHKeypair generates a fresh X25519 keypair.
func NewECDHKeypair() (pub, priv []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, err
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// ECDH computes the X25519 shared secret.
func ECDH(priv, peerPub []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize || len(peerPub) != curve25519.PointSize {
		return nil, ErrInvalidKeySize
	}
	return curve25519.X25519(priv, peerPub)
}
